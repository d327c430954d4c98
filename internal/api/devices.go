package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-matterbridge/internal/device"
	"github.com/nerrad567/gray-logic-matterbridge/internal/exposure"
)

// DeviceResponse is the API view of one exposed device.
type DeviceResponse struct {
	device.Metadata
	Kind         device.Kind  `json:"kind"`
	Capabilities []string     `json:"capabilities"`
	State        device.State `json:"state"`
	AddedAt      time.Time    `json:"added_at"`
}

func deviceResponse(e exposure.Exposed) DeviceResponse {
	return DeviceResponse{
		Metadata:     e.Metadata,
		Kind:         e.Device.Kind(),
		Capabilities: e.Device.Capabilities(),
		State:        e.Device.State(),
		AddedAt:      e.AddedAt,
	}
}

// handleListDevices returns every device currently exposed by the
// aggregator, sorted by serial number.
//
// Query parameters:
//   - kind: filter by device kind (on_off_light, dimmable_light, ...)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	kind := device.Kind(r.URL.Query().Get("kind"))

	exposed := s.aggregator.Devices()
	out := make([]DeviceResponse, 0, len(exposed))
	for _, e := range exposed {
		if kind != "" && e.Device.Kind() != kind {
			continue
		}
		out = append(out, deviceResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": out, "count": len(out)})
}

// handleGetDevice returns one exposed device by serial number.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	e, ok := s.aggregator.Lookup(chi.URLParam(r, "serial"))
	if !ok {
		writeNotFound(w, "device not exposed")
		return
	}
	writeJSON(w, http.StatusOK, deviceResponse(e))
}

// handleGetDeviceState returns the attribute values of one exposed device.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	e, ok := s.aggregator.Lookup(serial)
	if !ok {
		writeNotFound(w, "device not exposed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"serial_number": serial,
		"state":         e.Device.State(),
	})
}

// handleSetDeviceState applies a local command to an exposed device, as a
// controller would. The bridge forwards the resulting attribute changes to
// Home Assistant.
//
// Request body: a device.Command, e.g. {"on": true, "level": 128}
func (s *Server) handleSetDeviceState(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	e, ok := s.aggregator.Lookup(serial)
	if !ok {
		writeNotFound(w, "device not exposed")
		return
	}

	var cmd device.Command
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := e.Device.ApplyCommand(cmd); err != nil {
		switch {
		case errors.Is(err, device.ErrEmptyCommand):
			writeBadRequest(w, err.Error())
		case errors.Is(err, device.ErrUnsupported), errors.Is(err, device.ErrOutOfRange):
			writeValidationError(w, err.Error())
		default:
			writeInternalError(w, "failed to apply command")
		}
		return
	}

	s.logger.Debug("local command applied via API", "serial", serial)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"serial_number": serial,
		"state":         e.Device.State(),
	})
}

// handleDeviceLedger returns every device the bridge has ever exposed,
// most recently seen first.
func (s *Server) handleDeviceLedger(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeUnavailable(w, "device ledger not configured")
		return
	}
	devices, err := s.ledger.Devices(r.Context())
	if err != nil {
		s.logger.Error("listing device ledger failed", "error", err)
		writeInternalError(w, "failed to list device ledger")
		return
	}
	if devices == nil {
		devices = []exposure.DeviceIdentity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}
