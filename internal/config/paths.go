// Package config handles configuration loading, saving, and path management.
package config

import (
	"os"
	"path/filepath"
)

const (
	// GlobalDirName is the name of the global directory under the home directory.
	GlobalDirName = ".promptrunner"

	// HomeEnv overrides the global directory.
	HomeEnv = "PROMPTRUNNER_HOME"
)

// File names
const (
	SettingsFileName    = "settings.yaml"
	CredentialsFileName = "credentials.yaml"
	ScheduleFileName    = "schedule.yaml"
)

// GlobalDir returns the path to the global directory (~/.promptrunner/ or $PROMPTRUNNER_HOME).
func GlobalDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, GlobalDirName), nil
}

func globalFile(name string) (string, error) {
	dir, err := GlobalDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// GlobalSettingsFile returns the path to the settings.yaml file.
func GlobalSettingsFile() (string, error) {
	return globalFile(SettingsFileName)
}

// GlobalCredentialsFile returns the path to the credentials.yaml file.
func GlobalCredentialsFile() (string, error) {
	return globalFile(CredentialsFileName)
}

// GlobalScheduleFile returns the path to the schedule.yaml file.
func GlobalScheduleFile() (string, error) {
	return globalFile(ScheduleFileName)
}

// EnsureGlobalDir creates the global directory if it doesn't exist.
func EnsureGlobalDir() error {
	dir, err := GlobalDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}
