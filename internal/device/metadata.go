package device

import (
	"fmt"
	"unicode/utf8"
)

// Protocol limits on display metadata.
const (
	MaxLabelLength        = 32
	MaxProductNameLength  = 32
	MaxProductLabelLength = 64
	MaxSerialNumberLength = 32
)

// Metadata is the display information registered with the aggregator.
type Metadata struct {
	Label        string `json:"label"`
	ProductName  string `json:"product_name"`
	ProductLabel string `json:"product_label"`
	SerialNumber string `json:"serial_number"`
	Reachable    bool   `json:"reachable"`
}

// Validate checks the protocol length limits.
func (m Metadata) Validate() error {
	if m.SerialNumber == "" {
		return fmt.Errorf("%w: serial number is required", ErrInvalidMetadata)
	}
	checks := []struct {
		field string
		value string
		limit int
	}{
		{"label", m.Label, MaxLabelLength},
		{"product name", m.ProductName, MaxProductNameLength},
		{"product label", m.ProductLabel, MaxProductLabelLength},
		{"serial number", m.SerialNumber, MaxSerialNumberLength},
	}
	for _, c := range checks {
		if len(c.value) > c.limit {
			return fmt.Errorf("%w: %s longer than %d bytes", ErrInvalidMetadata, c.field, c.limit)
		}
	}
	return nil
}

// Truncate shortens s to at most limit bytes without splitting a UTF-8
// sequence.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
