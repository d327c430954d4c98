package influxdb

import (
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurements of the synchronisation history.
const (
	MeasurementRemoteUpdate   = "remote_update"
	MeasurementCommand        = "command"
	MeasurementConversion     = "conversion"
	MeasurementRemoval        = "device_removal"
	MeasurementEchoSuppressed = "echo_suppressed"
)

// Outcome tag values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// WriteRemoteUpdate records a Home Assistant change written into a device
// attribute.
//
// Parameters:
//   - entityID: Source entity (e.g., "light.kitchen")
//   - attribute: Device attribute name (e.g., "current_level")
//   - value: New attribute value; bools and integers are stored as such,
//     anything else as its string form
func (c *Client) WriteRemoteUpdate(entityID, attribute string, value any) {
	c.WritePoint(MeasurementRemoteUpdate,
		map[string]string{
			"entity_id": entityID,
			"attribute": attribute,
		},
		map[string]interface{}{
			"value": fieldValue(value),
		},
	)
}

// WriteCommand records a service call sent to Home Assistant. A nil err is
// tagged ok; otherwise the error text is kept in the "error" field.
func (c *Client) WriteCommand(entityID, domain, service string, err error) {
	outcome := OutcomeOK
	fields := map[string]interface{}{"count": 1}
	if err != nil {
		outcome = OutcomeError
		fields["error"] = err.Error()
	}
	c.WritePoint(MeasurementCommand,
		map[string]string{
			"entity_id": entityID,
			"domain":    domain,
			"service":   service,
			"outcome":   outcome,
		},
		fields,
	)
}

// WriteConversion records the outcome of converting an entity. family and
// kind are empty for failures.
func (c *Client) WriteConversion(entityID, family, kind string, err error) {
	tags := map[string]string{
		"entity_id": entityID,
		"outcome":   OutcomeOK,
	}
	fields := map[string]interface{}{"count": 1}
	if family != "" {
		tags["family"] = family
	}
	if kind != "" {
		tags["kind"] = kind
	}
	if err != nil {
		tags["outcome"] = OutcomeError
		fields["error"] = err.Error()
	}
	c.WritePoint(MeasurementConversion, tags, fields)
}

// WriteRemoval records a device being torn down.
func (c *Client) WriteRemoval(entityID string) {
	c.WritePoint(MeasurementRemoval,
		map[string]string{"entity_id": entityID},
		map[string]interface{}{"count": 1},
	)
}

// WriteEchoSuppressed records a device write that was not sent back to
// Home Assistant because it came from Home Assistant.
func (c *Client) WriteEchoSuppressed(entityID, attribute string) {
	c.WritePoint(MeasurementEchoSuppressed,
		map[string]string{
			"entity_id": entityID,
			"attribute": attribute,
		},
		map[string]interface{}{"count": 1},
	)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if c.closed.Load() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}

// fieldValue narrows an attribute value to a type line protocol stores
// natively.
func fieldValue(v any) interface{} {
	switch x := v.(type) {
	case bool, string, float64:
		return x
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case int:
		return int64(x)
	default:
		return fmt.Sprint(v)
	}
}
