package types

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
}

// PoolConf controls pool capacity and scoring thresholds.
type PoolConf struct {
	MaxSize           int     `ini:"max_size"`
	MinScore          float64 `ini:"min_score"`
	EvictionThreshold float64 `ini:"eviction_threshold"`
}

// SessionConf controls outbound request behavior.
type SessionConf struct {
	TimeoutSeconds int     `ini:"timeout_seconds"`
	MaxRetries     int     `ini:"max_retries"`
	DomainDelayMin float64 `ini:"domain_delay_min"` // seconds
	DomainDelayMax float64 `ini:"domain_delay_max"` // seconds
}

// DiscoveryConf controls public proxy gathering at startup.
type DiscoveryConf struct {
	Enabled             bool   `ini:"enabled"`
	Limit               int    `ini:"limit"`
	Country             string `ini:"country"`
	CheckProxies        bool   `ini:"check_proxies"`
	CheckTimeoutSeconds int    `ini:"check_timeout_seconds"`
	GeoDBPath           string `ini:"geodb_path"`
}

// StorageConf selects the pool snapshot backend.
type StorageConf struct {
	Backend  string `ini:"backend"` // "file" or "postgres"
	FilePath string `ini:"file_path"`
	DSN      string `ini:"dsn"`
}

// Config is the unified configuration structure mapped from the ini file.
type Config struct {
	LogConf       `ini:"log"`
	PoolConf      `ini:"pool"`
	SessionConf   `ini:"session"`
	DiscoveryConf `ini:"discovery"`
	StorageConf   `ini:"storage"`
}
