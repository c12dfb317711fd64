package common

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

// ParseDailyTime parses a wall-clock "HH:MM" value.
// Single-digit hours ("7:05") are accepted; minutes must have two digits.
func ParseDailyTime(value string) (hour int, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 || len(parts[1]) != 2 || parts[0] == "" || len(parts[0]) > 2 {
		return 0, 0, fmt.Errorf("invalid schedule time %q: expected HH:MM", value)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid schedule time %q: hour must be 0-23", value)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid schedule time %q: minute must be 0-59", value)
	}
	return hour, minute, nil
}

// DailyCronSpec converts "HH:MM" into a standard 5-field cron expression
func DailyCronSpec(value string) (string, error) {
	hour, minute, err := ParseDailyTime(value)
	if err != nil {
		return "", err
	}
	spec := fmt.Sprintf("%d %d * * *", minute, hour)

	// Round-trip through the cron parser so an accepted value is always schedulable
	if _, err := cron.ParseStandard(spec); err != nil {
		return "", fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return spec, nil
}
