package tydom

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/nerrad567/tydom2mqtt/internal/cover"
)

// Data point names understood by cover endpoints.
const (
	DataPointPosition    = "position"
	DataPointPositionCmd = "positionCmd"
)

// ID is a hub identifier. The hub encodes ids as JSON numbers in some
// payloads and as strings in others; both decode to the same text.
type ID string

// UnmarshalJSON accepts a JSON number or string.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a number or string: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// DeviceID returns the id in the registry's canonical form.
func (id ID) DeviceID() cover.DeviceID {
	return cover.NormalizeID(string(id))
}

// DataPoint is one named value reported by an endpoint.
type DataPoint struct {
	Name     string `json:"name"`
	Validity string `json:"validity,omitempty"`
	Value    any    `json:"value"`
}

// Endpoint is the point-in-time state of one device endpoint. Covers
// expose exactly one endpoint whose id equals the device id.
type Endpoint struct {
	ID    ID          `json:"id"`
	Error int         `json:"error"`
	Data  []DataPoint `json:"data"`
}

// DeviceData groups the endpoints of one device.
type DeviceData struct {
	ID        ID         `json:"id"`
	Endpoints []Endpoint `json:"endpoints"`
}

// ChangeEvent is a push notification that passed the device-data filter.
type ChangeEvent struct {
	Type    MessageType
	URI     string
	Method  string
	Status  int
	Body    []DeviceData
	Headers http.Header
}

// PositionOf returns the endpoint's position data point. When the hub
// repeats the data point the last one wins. It reports false when the
// point is absent or its value is not an integer.
func PositionOf(ep Endpoint) (cover.Position, bool) {
	for i := len(ep.Data) - 1; i >= 0; i-- {
		if ep.Data[i].Name != DataPointPosition {
			continue
		}
		return positionValue(ep.Data[i].Value)
	}
	return 0, false
}

func positionValue(v any) (cover.Position, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return cover.Position(int(n)), true
	case int:
		return cover.Position(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return cover.Position(int(i)), true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return cover.Position(i), true
	default:
		return 0, false
	}
}

// dataWrite is the request body for a single data point mutation.
type dataWrite struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}
