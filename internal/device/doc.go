// Package device provides the local device model exposed to the protocol
// aggregator.
//
// A Device is composed of independent capability components rather than a
// type hierarchy. Each component owns typed, observable attributes:
//
//	┌──────────────────────────── Device ─────────────────────────────┐
//	│  Kind: dimmable_light                                           │
//	│                                                                 │
//	│  ┌─────────────┐  ┌──────────────┐  ┌────────────────────────┐  │
//	│  │   *OnOff    │  │ *LevelControl│  │ *ColorTemperature      │  │
//	│  │  On (bool)  │  │ CurrentLevel │  │ Mireds, min/max        │  │
//	│  └─────────────┘  └──────────────┘  └────────────────────────┘  │
//	│  ┌─────────────┐  ┌──────────────┐                              │
//	│  │  *ColorXY   │  │*HueSaturation│   (nil when absent)          │
//	│  │  X, Y       │  │ Hue, Sat     │                              │
//	│  └─────────────┘  └──────────────┘                              │
//	└─────────────────────────────────────────────────────────────────┘
//
// Capabilities are embedded, so a dimmable light exposes dev.On and
// dev.CurrentLevel directly. Check HasLevel (and friends) before touching a
// capability the device may not have.
//
// # Transactions
//
// Every mutation that should be seen as one unit goes through Do. Do holds
// the device's transaction lock, runs the mutation, then runs the commit
// hooks. Attribute listeners fire synchronously inside the transaction and
// must not call Do themselves.
//
//	dev.Do(func() {
//	    dev.X.Set(24939)
//	    dev.Y.Set(24701)
//	}) // one commit: paired listeners see both axes
//
// Thread Safety: attributes are individually safe for concurrent use; Do
// serialises whole transactions per device.
package device
