package models

// Credentials holds the tokens returned by login.
// This corresponds to ~/.promptrunner/credentials.yaml.
type Credentials struct {
	Email   string `yaml:"email"`
	Access  string `yaml:"access"`
	Refresh string `yaml:"refresh"`
}
