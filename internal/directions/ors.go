package directions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/bus-tracking/internal/models"
)

// ORSClient queries an OpenRouteService-compatible directions endpoint.
// A zero-value API key makes every call report ErrUnavailable, which is
// exactly how the resolver wants missing credentials to behave.
type ORSClient struct {
	BaseURL string
	APIKey  string
	Profile string
	HTTP    *http.Client
}

var _ Client = (*ORSClient)(nil)

func NewORSClient(baseURL, apiKey string, timeout time.Duration) *ORSClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ORSClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Profile: "driving-car",
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// geojson response, trimmed to the fields we read
type orsResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"` // [lon, lat]
		} `json:"geometry"`
		Properties struct {
			Segments []struct {
				Distance float64 `json:"distance"` // meters
				Duration float64 `json:"duration"` // seconds
			} `json:"segments"`
		} `json:"properties"`
	} `json:"features"`
}

func (c *ORSClient) Route(ctx context.Context, waypoints []models.Coord) (*RouteResponse, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("%w: no API key configured", ErrUnavailable)
	}
	if len(waypoints) < 2 {
		return nil, fmt.Errorf("%w: need at least two waypoints", ErrUnavailable)
	}

	// ORS expects [lon, lat]
	coords := make([][]float64, len(waypoints))
	for i, w := range waypoints {
		coords[i] = []float64{w.Lon, w.Lat}
	}
	body, err := json.Marshal(map[string]any{"coordinates": coords})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrUnavailable, err)
	}

	url := fmt.Sprintf("%s/v2/directions/%s/geojson", c.BaseURL, c.Profile)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, b)
	}

	var out orsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(out.Features) == 0 {
		return nil, fmt.Errorf("%w: no route in response", ErrUnavailable)
	}

	f := out.Features[0]
	rr := &RouteResponse{
		Geometry: make([]models.Coord, 0, len(f.Geometry.Coordinates)),
		Segments: make([]Segment, 0, len(f.Properties.Segments)),
	}
	for _, c := range f.Geometry.Coordinates {
		if len(c) < 2 {
			continue
		}
		rr.Geometry = append(rr.Geometry, models.Coord{Lat: c[1], Lon: c[0]})
	}
	for _, s := range f.Properties.Segments {
		rr.Segments = append(rr.Segments, Segment{DistanceMeters: s.Distance, DurationSeconds: s.Duration})
	}
	return rr, nil
}
