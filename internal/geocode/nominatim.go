package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/example/bus-tracking/internal/models"
)

// NominatimClient talks to a Nominatim-compatible geocoding endpoint.
// A single attempt is bounded by the HTTP client timeout; the Geocoder
// above decides how many attempts to spend on a name.
type NominatimClient struct {
	BaseURL   string
	UserAgent string
	HTTP      *http.Client
}

var _ Client = (*NominatimClient)(nil)

func NewNominatimClient(baseURL, userAgent string, timeout time.Duration) *NominatimClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NominatimClient{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		HTTP:      &http.Client{Timeout: timeout},
	}
}

type nominatimPlace struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
}

func (c *NominatimClient) Geocode(ctx context.Context, query string) ([]Result, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", "3")

	var places []nominatimPlace
	if err := c.get(ctx, "/search", q, &places); err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(places))
	for _, p := range places {
		lat, errLat := strconv.ParseFloat(p.Lat, 64)
		lon, errLon := strconv.ParseFloat(p.Lon, 64)
		if errLat != nil || errLon != nil {
			continue
		}
		out = append(out, Result{
			Loc:        models.Coord{Lat: lat, Lon: lon},
			Confidence: p.Importance,
			Display:    p.DisplayName,
		})
	}
	return out, nil
}

func (c *NominatimClient) Reverse(ctx context.Context, loc models.Coord) (string, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(loc.Lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(loc.Lon, 'f', 6, 64))
	q.Set("format", "json")

	var place nominatimPlace
	if err := c.get(ctx, "/reverse", q, &place); err != nil {
		return "", err
	}
	return place.DisplayName, nil
}

func (c *NominatimClient) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build geocode request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode geocode response: %w", err)
	}
	return nil
}
