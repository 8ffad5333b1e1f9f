package models

// ServerConfig configures the development backend.
type ServerConfig struct {
	Addr     string             `yaml:"addr"`
	Auth     ServerAuthConfig   `yaml:"auth"`
	Executor ServerExecConfig   `yaml:"executor"`
	Store    ServerStoreConfig  `yaml:"store"`
	Stream   ServerStreamConfig `yaml:"stream"`
}

// ServerAuthConfig configures token issuing.
type ServerAuthConfig struct {
	Require    bool   `yaml:"require"`
	Secret     string `yaml:"secret"`
	AccessTTL  string `yaml:"access_ttl"`
	RefreshTTL string `yaml:"refresh_ttl"`
	// Users maps emails to bcrypt hashes.
	Users map[string]string `yaml:"users,omitempty"`
}

// ServerExecConfig configures the scripted executor.
type ServerExecConfig struct {
	StepDelay string       `yaml:"step_delay"`
	Tools     []ToolConfig `yaml:"tools,omitempty"`
}

// ToolConfig is one scripted tool.
type ToolConfig struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// ServerStoreConfig configures event history retention.
type ServerStoreConfig struct {
	ExpireAfterDone string `yaml:"expire_after_done"`
}

// ServerStreamConfig configures event streams.
type ServerStreamConfig struct {
	PingInterval string `yaml:"ping_interval"`
}

// NewServerConfig creates the default development backend config.
func NewServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr: "0.0.0.0:8080",
		Auth: ServerAuthConfig{
			AccessTTL:  "1h",
			RefreshTTL: "24h",
		},
		Executor: ServerExecConfig{StepDelay: "200ms"},
		Store:    ServerStoreConfig{ExpireAfterDone: "10m"},
		Stream:   ServerStreamConfig{PingInterval: "15s"},
	}
}
