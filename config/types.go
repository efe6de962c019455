package config

// Level is one configured pricing tier of the sale ladder.
type Level struct {
	Capacity  uint64 `toml:"Capacity"`
	UnitPrice uint64 `toml:"UnitPrice"`
	SoftCap   uint64 `toml:"SoftCap,omitempty"`
}

// Sale describes the sale the daemon should create at startup when AutoCreate
// is set. Amounts are sale token units; prices are fixed-point payment units
// per token scaled by PriceScale.
type Sale struct {
	AutoCreate    bool    `toml:"AutoCreate"`
	Admin         string  `toml:"Admin"`
	Seed          uint64  `toml:"Seed"`
	Levels        []Level `toml:"Levels"`
	SoftCapAmount uint64  `toml:"SoftCapAmount"`
	HardCapAmount uint64  `toml:"HardCapAmount"`
	PriceScale    uint64  `toml:"PriceScale"`
	StartTime     uint64  `toml:"StartTime"`
	EndTime       uint64  `toml:"EndTime"`
}

// Telemetry holds the OpenTelemetry exporter knobs.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}
