// Package telemetry forwards decoded device frames to a Redis pub/sub
// channel for dashboards.
package telemetry

import (
	"encoding/json"
	"time"

	"github.com/danmuck/edgebridge/internal/bridge"
	"github.com/danmuck/edgebridge/internal/protocol/frame"
)

// Record is the JSON document published for one decoded frame.
type Record struct {
	ConnID      string          `json:"conn_id"`
	Remote      string          `json:"remote"`
	Kind        string          `json:"kind"`
	Value       *uint32         `json:"value,omitempty"`
	Hex         string          `json:"hex,omitempty"`
	Binary      string          `json:"binary,omitempty"`
	A1          json.RawMessage `json:"a1,omitempty"`
	TimestampMS int64           `json:"ts_ms"`
}

// RecordFor builds the published record. Only scalar and anchor report
// frames carry telemetry.
func RecordFor(dev bridge.Device, in frame.Inbound, at time.Time) (Record, bool) {
	rec := Record{
		ConnID:      dev.ConnID,
		Remote:      dev.Remote,
		Kind:        in.Kind.String(),
		TimestampMS: at.UnixMilli(),
	}
	switch in.Kind {
	case frame.KindScalar:
		v := in.Scalar.Value
		rec.Value = &v
		rec.Hex = in.Scalar.Hex
		rec.Binary = in.Scalar.Binary
	case frame.KindAnchorReport:
		rec.A1 = in.A1
	default:
		return Record{}, false
	}
	return rec, true
}
