package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/example/bus-tracking/internal/models"
)

// PushDispatcher delivers proximity alerts to the driver's device: the
// live websocket session when one is connected, falling back to an HTTP
// push endpoint otherwise.
type PushDispatcher struct {
	Endpoint string // e.g. provider HTTP endpoint
	Client   *http.Client
	WS       *WSRegistry
}

func NewPushDispatcher(endpoint string, ws *WSRegistry) *PushDispatcher {
	return &PushDispatcher{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}, WS: ws}
}

func (p *PushDispatcher) Alert(driverID string, alert models.ProximityAlert) error {
	if p.WS != nil {
		err := p.WS.Alert(driverID, alert)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNoSession) {
			return err
		}
	}
	if p.Endpoint == "" {
		return ErrNoSession
	}
	b, _ := json.Marshal(map[string]interface{}{"driver_id": driverID, "alert": alert})
	resp, err := p.Client.Post(p.Endpoint, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
