package training

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const maxVideoRefs = 10

var (
	// ErrInvalidDate indicates the calendar date is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("training: invalid date")
	// ErrInvalidTime indicates a start/end value is not HH:MM.
	ErrInvalidTime = errors.New("training: invalid time of day")
	// ErrInvalidTimeRange indicates end is not after start.
	ErrInvalidTimeRange = errors.New("training: end must be after start")
	// ErrInvalidCondition indicates a condition rating outside 1..5.
	ErrInvalidCondition = errors.New("training: condition rating must be 1-5")
	// ErrTooManyVideos indicates the video reference bound was exceeded.
	ErrTooManyVideos = errors.New("training: video reference limit reached")
	// ErrNotFound indicates no log matches the user id and id pair.
	ErrNotFound = errors.New("training: not found")
	// ErrVersionConflict indicates an update presented a stale base version.
	ErrVersionConflict = errors.New("training: version conflict")
)

// TrainingLog is one calendar-dated training session record.
type TrainingLog struct {
	ID               string   `gorm:"column:id;primaryKey;size:190;not null"`
	UserID           string   `gorm:"column:user_id;size:190;not null;index:idx_training_user_date,priority:1"`
	Date             string   `gorm:"column:date;size:10;not null;index:idx_training_user_date,priority:2"`
	StartTime        string   `gorm:"column:start_time;size:5"`
	EndTime          string   `gorm:"column:end_time;size:5"`
	Condition        int      `gorm:"column:condition;not null"`
	SparringRounds   int      `gorm:"column:sparring_rounds;not null;default:0"`
	Content          string   `gorm:"column:content;type:text"`
	VideoRefs        []string `gorm:"column:video_refs;serializer:json"`
	Version          int64    `gorm:"column:version;not null;default:1"`
	CreatedAtSeconds int64    `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64    `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (TrainingLog) TableName() string {
	return "training_logs"
}

// DurationMinutes derives the session length from the start/end pair.
// A missing pair yields 0; end at or before start clamps to 0.
func (l TrainingLog) DurationMinutes() int {
	start, startErr := parseMinutes(l.StartTime)
	end, endErr := parseMinutes(l.EndTime)
	if startErr != nil || endErr != nil {
		return 0
	}
	if end <= start {
		return 0
	}
	return end - start
}

// HasValidTimeRange reports whether the start/end pair is savable: either
// both absent, or both well formed with end strictly after start.
func (l TrainingLog) HasValidTimeRange() bool {
	if l.StartTime == "" && l.EndTime == "" {
		return true
	}
	start, startErr := parseMinutes(l.StartTime)
	end, endErr := parseMinutes(l.EndTime)
	if startErr != nil || endErr != nil {
		return false
	}
	return end > start
}

// parseMinutes converts an HH:MM string to minutes since midnight.
func parseMinutes(value string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}
	return hour*60 + minute, nil
}
