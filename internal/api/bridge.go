package api

import (
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-matterbridge/internal/bridge"
	"github.com/nerrad567/gray-logic-matterbridge/internal/exposure"
)

// BridgeInfo describes the aggregator node and how to pair with it.
type BridgeInfo struct {
	Name          string    `json:"name"`
	UniqueID      string    `json:"unique_id"`
	NodeID        string    `json:"node_id"`
	CreatedAt     time.Time `json:"created_at"`
	Version       string    `json:"version,omitempty"`
	SerialPrefix  string    `json:"serial_prefix"`
	Converters    []string  `json:"converters"`
	Passcode      uint32    `json:"passcode"`
	Discriminator uint16    `json:"discriminator"`
	VendorID      uint16    `json:"vendor_id"`
	ProductID     uint16    `json:"product_id"`
	Port          int       `json:"port"`
	ManualCode    string    `json:"manual_pairing_code,omitempty"`
	Devices       int       `json:"devices"`
}

// handleBridgeInfo returns the node identity and commissioning parameters.
func (s *Server) handleBridgeInfo(w http.ResponseWriter, _ *http.Request) {
	c := s.bridgeCfg.Commissioning

	converters := s.bridgeCfg.Converters
	if len(converters) == 0 {
		converters = bridge.Families()
	}

	info := BridgeInfo{
		Name:          s.bridgeCfg.Name,
		UniqueID:      s.identity.UniqueID,
		NodeID:        s.identity.NodeID,
		CreatedAt:     s.identity.CreatedAt,
		Version:       s.version,
		SerialPrefix:  s.bridgeCfg.SerialPrefix,
		Converters:    converters,
		Passcode:      c.Passcode,
		Discriminator: c.Discriminator,
		VendorID:      c.VendorID,
		ProductID:     c.ProductID,
		Port:          c.Port,
		Devices:       s.aggregator.Len(),
	}
	if code, err := exposure.ManualPairingCode(c.Passcode, c.Discriminator); err == nil {
		info.ManualCode = exposure.FormatPairingCode(code)
	}

	writeJSON(w, http.StatusOK, info)
}
