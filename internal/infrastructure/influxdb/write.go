package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/tydom2mqtt/internal/cover"
)

const measurementCoverPosition = "cover_position"

// RecordPosition writes one cover position point. It implements
// bridge.PositionRecorder. Source tells where the position came from
// (snapshot or event).
func (c *Client) RecordPosition(name cover.Name, pos cover.Position, source string) {
	c.writePoint(measurementCoverPosition,
		map[string]string{
			"cover":  name.String(),
			"source": source,
		},
		map[string]any{
			"position": int(pos),
		},
		time.Now(),
	)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
