package ir

// Version constants for the persisted schema and engine.
const (
	// IRVersion is the canonical record schema version.
	IRVersion = "1"

	// EngineVersion is the Thyxel engine version.
	EngineVersion = "0.3.0"
)
