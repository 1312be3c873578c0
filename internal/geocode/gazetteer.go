package geocode

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/example/bus-tracking/internal/models"
)

// Gazetteer is a static table of well-known place names. Names present
// here resolve deterministically without touching the network. Seed
// data is configuration, not code: see config/gazetteer.json.
type Gazetteer map[string]models.Coord

// LoadGazetteer reads a JSON object of name -> {lat, lon}.
func LoadGazetteer(path string) (Gazetteer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gazetteer: %w", err)
	}
	var raw map[string]models.Coord
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse gazetteer %s: %w", path, err)
	}
	g := make(Gazetteer, len(raw))
	for name, c := range raw {
		g[normalizeName(name)] = c
	}
	return g, nil
}

// Lookup is an exact case-insensitive match.
func (g Gazetteer) Lookup(name string) (models.Coord, bool) {
	c, ok := g[normalizeName(name)]
	return c, ok
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
