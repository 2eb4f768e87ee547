package batch

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type scheduleFile struct {
	Schedules []Schedule `yaml:"schedules"`
}

// LoadSchedules reads a YAML file with a top-level "schedules" list.
func LoadSchedules(path string) ([]Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedules: %w", err)
	}
	var file scheduleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse schedules %s: %w", path, err)
	}
	for index, schedule := range file.Schedules {
		if schedule.ID == "" || schedule.PipelineID == "" {
			return nil, fmt.Errorf("schedule %d: id and pipelineId are required", index)
		}
		if _, err := ParseCron(schedule.Cron); err != nil {
			return nil, fmt.Errorf("schedule %q: %w", schedule.ID, err)
		}
	}
	return file.Schedules, nil
}
