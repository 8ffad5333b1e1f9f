package config

import (
	"github.com/supremeagent/promptrunner/internal/models"
)

// LoadServerConfig loads the development backend config from path. An empty
// path or a missing file yields the defaults.
func LoadServerConfig(path string) (*models.ServerConfig, error) {
	if path == "" {
		return models.NewServerConfig(), nil
	}
	return LoadYAMLOrDefault(path, models.NewServerConfig)
}
