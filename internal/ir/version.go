package ir

// Version constants for the declaration model and engine.
const (
	// IRVersion is the declaration model version recorded in trace journals.
	IRVersion = "1"

	// EngineVersion is the stagehand engine version.
	EngineVersion = "0.1.0"
)
