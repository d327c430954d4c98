package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-matterbridge/internal/bridge"
)

// EntityResponse is the API view of one tracked Home Assistant entity.
type EntityResponse struct {
	EntityID     string         `json:"entity_id"`
	Name         string         `json:"name"`
	Domain       string         `json:"domain"`
	State        string         `json:"state"`
	Converted    bool           `json:"converted"`
	Family       string         `json:"family,omitempty"`
	Kind         string         `json:"kind,omitempty"`
	SerialNumber string         `json:"serial_number,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	LastUpdated  time.Time      `json:"last_updated"`
}

func entityResponse(e bridge.Entry, withAttributes bool) EntityResponse {
	resp := EntityResponse{
		EntityID:    e.EntityID,
		Name:        e.Entity.FriendlyName(),
		Domain:      e.Entity.Domain(),
		State:       e.Entity.State,
		Converted:   e.Converted,
		LastUpdated: e.Entity.LastUpdated,
	}
	if e.Converted {
		resp.Family = string(e.Family)
		resp.SerialNumber = e.Metadata.SerialNumber
		if e.Device != nil {
			resp.Kind = string(e.Device.Kind())
		}
	}
	if withAttributes {
		resp.Attributes = e.Entity.Attributes
	}
	return resp
}

// handleListEntities returns every tracked entity.
//
// Query parameters:
//   - domain: filter by Home Assistant domain (light, switch, ...)
//   - family: filter by converter family
//   - converted: "true" or "false"
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	domain := q.Get("domain")
	family := q.Get("family")

	var converted *bool
	if v := q.Get("converted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "converted must be true or false")
			return
		}
		converted = &b
	}

	entries := s.registry.Entries()
	out := make([]EntityResponse, 0, len(entries))
	for _, e := range entries {
		if domain != "" && e.Entity.Domain() != domain {
			continue
		}
		if family != "" && string(e.Family) != family {
			continue
		}
		if converted != nil && e.Converted != *converted {
			continue
		}
		out = append(out, entityResponse(e, false))
	}

	writeJSON(w, http.StatusOK, map[string]any{"entities": out, "count": len(out)})
}

// handleGetEntity returns one tracked entity with its attributes.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, ok := s.registry.Entry(id)
	if !ok {
		writeNotFound(w, "entity not tracked")
		return
	}
	writeJSON(w, http.StatusOK, entityResponse(entry, true))
}

// handleEntityStats returns the tracked and converted counts.
func (s *Server) handleEntityStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Stats())
}
