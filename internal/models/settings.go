package models

// DefaultBackendURL is the prompt backend used when none is configured.
const DefaultBackendURL = "http://localhost:8080"

// BackendConfig holds the endpoints the client talks to.
type BackendConfig struct {
	URL string `yaml:"url"`
	// SchedulerURL and AuthURL default to URL when empty.
	SchedulerURL string `yaml:"scheduler_url,omitempty"`
	AuthURL      string `yaml:"auth_url,omitempty"`
}

// RunConfig holds defaults for the run command.
type RunConfig struct {
	Timeout     string `yaml:"timeout"`      // Go duration, "0" = no limit
	StreamGrace string `yaml:"stream_grace"` // Go duration, "0" = wait for complete
}

// ScheduleConfig holds defaults for scheduled commands.
type ScheduleConfig struct {
	UserID    string `yaml:"user_id"`
	UTCOffset string `yaml:"utc_offset"` // "+05:30"
	Category  string `yaml:"default_category"`
}

// Settings represents global application settings.
// This corresponds to ~/.promptrunner/settings.yaml.
type Settings struct {
	Version  int            `yaml:"version"`
	Backend  BackendConfig  `yaml:"backend"`
	Run      RunConfig      `yaml:"run"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// NewSettings creates default settings.
func NewSettings() *Settings {
	return &Settings{
		Version: 1,
		Backend: BackendConfig{URL: DefaultBackendURL},
		Run: RunConfig{
			Timeout:     "0",
			StreamGrace: "5s",
		},
		Schedule: ScheduleConfig{
			UTCOffset: "+05:30",
			Category:  CategoryWork,
		},
	}
}
