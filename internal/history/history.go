// Package history turns synchronisation events into time-series points.
//
// Recorder implements bridge.Observer and forwards every event to a
// Writer; *influxdb.Client is the production writer. Writes are
// non-blocking, so the recorder is safe to call from the engine's
// dispatch path.
package history

import (
	"github.com/nerrad567/gray-logic-matterbridge/internal/bridge"
	"github.com/nerrad567/gray-logic-matterbridge/internal/device"
)

// Writer stores history points. *influxdb.Client satisfies it.
type Writer interface {
	WriteRemoteUpdate(entityID, attribute string, value any)
	WriteCommand(entityID, domain, service string, err error)
	WriteConversion(entityID, family, kind string, err error)
	WriteRemoval(entityID string)
	WriteEchoSuppressed(entityID, attribute string)
}

// Recorder records synchronisation events.
type Recorder struct {
	w Writer

	// suppressed controls whether echo suppressions are recorded. They are
	// frequent and rarely interesting once the bridge is known to work.
	suppressed bool
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithEchoSuppressions records suppressed echoes as well.
func WithEchoSuppressions() Option {
	return func(r *Recorder) { r.suppressed = true }
}

// NewRecorder creates a recorder writing to w.
func NewRecorder(w Writer, opts ...Option) *Recorder {
	r := &Recorder{w: w}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) EntityConverted(entityID string, family bridge.Family, kind device.Kind) {
	r.w.WriteConversion(entityID, string(family), string(kind), nil)
}

func (r *Recorder) ConversionFailed(entityID string, err error) {
	r.w.WriteConversion(entityID, "", "", err)
}

func (r *Recorder) DeviceRemoved(entityID string) {
	r.w.WriteRemoval(entityID)
}

func (r *Recorder) RemoteUpdateApplied(entityID, attribute string, value any) {
	r.w.WriteRemoteUpdate(entityID, attribute, value)
}

func (r *Recorder) CommandSent(entityID, domain, service string, _ map[string]any, err error) {
	r.w.WriteCommand(entityID, domain, service, err)
}

func (r *Recorder) LocalUpdateSuppressed(entityID, attribute string) {
	if r.suppressed {
		r.w.WriteEchoSuppressed(entityID, attribute)
	}
}
