package types

// Event is a typed state-change notification produced by the native engines.
// Attributes carry hex/decimal string renderings so downstream consumers can
// index them without decoding module internals.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
