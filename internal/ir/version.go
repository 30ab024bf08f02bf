package ir

// EngineVersion is the editledger release, reported by the CLI.
const EngineVersion = "0.1.0"
