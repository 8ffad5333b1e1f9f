package config

import (
	"os"

	"github.com/supremeagent/promptrunner/internal/models"
)

// LoadCredentials loads the saved login tokens. Returns nil if nobody is logged in.
func LoadCredentials() (*models.Credentials, error) {
	path, err := GlobalCredentialsFile()
	if err != nil {
		return nil, err
	}
	if !FileExists(path) {
		return nil, nil
	}

	var creds models.Credentials
	if err := LoadYAML(path, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// SaveCredentials saves login tokens, readable by the owner only.
func SaveCredentials(creds *models.Credentials) error {
	path, err := GlobalCredentialsFile()
	if err != nil {
		return err
	}
	return saveYAML(path, creds, 0600)
}

// RemoveCredentials removes the credentials file.
func RemoveCredentials() error {
	path, err := GlobalCredentialsFile()
	if err != nil {
		return err
	}
	if !FileExists(path) {
		return nil
	}
	return os.Remove(path)
}
