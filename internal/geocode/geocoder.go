package geocode

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/example/bus-tracking/internal/models"
)

// ErrUnresolved means every tier was exhausted without a usable result.
// An expected outcome for colloquial place names, not a system fault.
var ErrUnresolved = errors.New("place name could not be resolved")

// Tier identifies which strategy level produced a resolution.
type Tier string

const (
	TierGazetteer Tier = "gazetteer"
	TierRemote    Tier = "remote"
)

// Client is the external text-to-coordinate capability.
type Client interface {
	Geocode(ctx context.Context, query string) ([]Result, error)
	Reverse(ctx context.Context, c models.Coord) (string, error)
}

// Result is a single candidate returned by the remote geocoder.
type Result struct {
	Loc        models.Coord
	Confidence float64
	Display    string
}

// BoundingBox rejects remote results in the wrong country/region.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

func (b BoundingBox) Contains(c models.Coord) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lon >= b.MinLon && c.Lon <= b.MaxLon
}

// Geocoder resolves a place name to coordinates through a tiered
// strategy: the static gazetteer first, then an ordered list of query
// variants against the remote geocoder, keeping the first in-bounds hit.
// Free-text geocoders are unreliable for names like "X Bus Stand"; the
// gazetteer keeps known stops deterministic and the bounding box keeps a
// wrong-continent match from slipping through.
type Geocoder struct {
	Gazetteer Gazetteer
	Client    Client
	Bounds    BoundingBox
	// RegionSuffix is appended to variant queries, e.g. "Tamil Nadu, India".
	RegionSuffix string
	// RegionalContext narrows ambiguous names further, e.g.
	// "Coimbatore, Tamil Nadu, India".
	RegionalContext string
	Logger          *slog.Logger
}

// Resolve returns coordinates for name, reporting the tier that
// produced them. Failed tiers fall through silently; only total
// exhaustion surfaces as ErrUnresolved.
func (g *Geocoder) Resolve(ctx context.Context, name string) (models.Coord, Tier, error) {
	if c, ok := g.Gazetteer.Lookup(name); ok {
		return c, TierGazetteer, nil
	}
	if g.Client == nil {
		return models.Coord{}, "", ErrUnresolved
	}
	for _, q := range g.variants(name) {
		results, err := g.Client.Geocode(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return models.Coord{}, "", ErrUnresolved
			}
			g.log().Debug("geocode variant failed", "query", q, "error", err)
			continue
		}
		for _, r := range results {
			if g.Bounds.Contains(r.Loc) {
				return r.Loc, TierRemote, nil
			}
			g.log().Debug("geocode result out of bounds", "query", q, "lat", r.Loc.Lat, "lon", r.Loc.Lon)
		}
	}
	return models.Coord{}, "", ErrUnresolved
}

// Reverse resolves coordinates back to a display name via the remote
// geocoder. No gazetteer tier; reverse lookups are display-only.
func (g *Geocoder) Reverse(ctx context.Context, c models.Coord) (string, error) {
	if g.Client == nil {
		return "", ErrUnresolved
	}
	name, err := g.Client.Reverse(ctx, c)
	if err != nil || name == "" {
		return "", ErrUnresolved
	}
	return name, nil
}

// variants returns the fixed, ordered list of query strings tried
// against the remote geocoder. Order matters: regional qualifiers
// first, the raw name as a last resort.
func (g *Geocoder) variants(name string) []string {
	name = strings.TrimSpace(name)
	out := make([]string, 0, 6)
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" {
			return
		}
		for _, seen := range out {
			if strings.EqualFold(seen, q) {
				return
			}
		}
		out = append(out, q)
	}

	suffix := func(s string) string {
		if g.RegionSuffix == "" {
			return s
		}
		return s + ", " + g.RegionSuffix
	}

	add(suffix(name))
	if stripped := strings.ReplaceAll(name, " Bus Stand", ""); stripped != name {
		add(suffix(stripped))
		add(suffix(strings.ReplaceAll(name, " Bus Stand", " Bus Station")))
	}
	if g.RegionalContext != "" {
		add(name + ", " + g.RegionalContext)
	}
	if fields := strings.Fields(name); len(fields) > 1 {
		add(suffix(fields[0]))
	}
	add(name)
	return out
}

func (g *Geocoder) log() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}
