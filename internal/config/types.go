package config

import "time"

// Config holds all configuration for an estransport-backed client
// (spec.md §4.6 "Configuration" + this pack's ambient logging stack).
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Pool      PoolConfig      `yaml:"pool"`
	Transport TransportConfig `yaml:"transport"`
	Cloud     CloudConfig     `yaml:"cloud"`
}

// PoolConfig describes the seed endpoint set and resurrection policy
// (spec.md §3 "Pool", §4.4).
type PoolConfig struct {
	Seeds             []EndpointConfig `yaml:"seeds"`
	ResurrectStrategy string           `yaml:"resurrect_strategy"` // none | ping | optimistic
	PingTimeout       time.Duration    `yaml:"ping_timeout"`
	SniffEnabled      bool             `yaml:"sniff_enabled"`
	Auth              AuthConfig       `yaml:"auth"`
}

// EndpointConfig describes one seed node.
type EndpointConfig struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Roles   []string          `yaml:"roles"`
	Headers map[string]string `yaml:"headers"`
}

// AuthConfig holds pool-default credentials applied to Connections
// that don't carry their own userinfo or ApiKey.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	APIKey   string `yaml:"api_key"`
}

// TransportConfig mirrors spec.md §6's transport constructor options.
type TransportConfig struct {
	MaxRetries             int           `yaml:"max_retries"`
	RequestTimeout         time.Duration `yaml:"request_timeout"`
	SuggestCompression     bool          `yaml:"suggest_compression"`
	Compression            string        `yaml:"compression"` // "" | "gzip"
	SniffInterval          time.Duration `yaml:"sniff_interval"`
	SniffOnStart           bool          `yaml:"sniff_on_start"`
	SniffOnConnectionFault bool          `yaml:"sniff_on_connection_fault"`
	SniffEndpoint          string        `yaml:"sniff_endpoint"`
	NodeSelector           string        `yaml:"node_selector"` // round-robin | random | least-connections
	Name                   string        `yaml:"name"`
	OpaqueIDPrefix         string        `yaml:"opaque_id_prefix"`
}

// CloudConfig describes the degenerate single-endpoint cloud pool
// variant (spec.md §4.5, §6 "Cloud id format").
type CloudConfig struct {
	ID       string     `yaml:"id"`
	Auth     AuthConfig `yaml:"auth"`
	Enabled  bool       `yaml:"enabled"`
}

// LoggingConfig holds logging configuration, unchanged in shape from
// the teacher's own LoggingConfig.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	LogDir     string `yaml:"log_dir"`
	FileOutput bool   `yaml:"file_output"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}
