package ir

// Version constants for the request contract and the engine.
const (
	// ContractVersion is the request/receipt schema version.
	ContractVersion = "1"

	// EngineVersion is the petadopt engine version.
	EngineVersion = "0.1.0"
)
