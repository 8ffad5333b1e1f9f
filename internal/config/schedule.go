package config

import (
	"github.com/supremeagent/promptrunner/internal/models"
)

// LoadScheduleBook loads schedule.yaml, or an empty book if it doesn't exist.
func LoadScheduleBook() (*models.ScheduleBook, error) {
	path, err := GlobalScheduleFile()
	if err != nil {
		return nil, err
	}
	return LoadYAMLOrDefault(path, models.NewScheduleBook)
}

// SaveScheduleBook saves schedule.yaml.
func SaveScheduleBook(book *models.ScheduleBook) error {
	path, err := GlobalScheduleFile()
	if err != nil {
		return err
	}
	return SaveYAML(path, book)
}
