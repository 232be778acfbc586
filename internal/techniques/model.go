package techniques

import (
	"errors"
	"strings"
)

// TechniqueType is the closed tag classifying a technique.
type TechniqueType string

const (
	TypeSweep      TechniqueType = "sweep"
	TypePass       TechniqueType = "pass"
	TypeSubmission TechniqueType = "submission"
	TypeEscape     TechniqueType = "escape"
	TypeTakedown   TechniqueType = "takedown"
	TypePosition   TechniqueType = "position"
	TypeOther      TechniqueType = "other"
)

// MasteryTier is the user's self-assessed proficiency with a technique.
// The three values are mutually exclusive.
type MasteryTier string

const (
	MasteryLearning MasteryTier = "learning"
	MasteryLearned  MasteryTier = "learned"
	MasteryFavorite MasteryTier = "favorite"
)

// maxVideoRefs bounds the uploaded video references on a technique.
const maxVideoRefs = 10

var (
	// ErrInvalidName indicates an empty display name.
	ErrInvalidName = errors.New("techniques: name must not be empty")
	// ErrInvalidType indicates a type tag outside the closed set.
	ErrInvalidType = errors.New("techniques: unknown technique type")
	// ErrInvalidMastery indicates a tier outside the fixed enumeration.
	ErrInvalidMastery = errors.New("techniques: unknown mastery tier")
	// ErrTooManyVideos indicates the video reference bound was exceeded.
	ErrTooManyVideos = errors.New("techniques: video reference limit reached")
	// ErrNotFound indicates no technique matches the user id and id pair.
	ErrNotFound = errors.New("techniques: not found")
	// ErrVersionConflict indicates an update presented a stale base version.
	ErrVersionConflict = errors.New("techniques: version conflict")
)

// ParseType validates a raw technique type tag.
func ParseType(raw string) (TechniqueType, error) {
	value := TechniqueType(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case TypeSweep, TypePass, TypeSubmission, TypeEscape, TypeTakedown, TypePosition, TypeOther:
		return value, nil
	case "":
		return TypeOther, nil
	default:
		return "", ErrInvalidType
	}
}

// ParseMastery validates a raw mastery tier.
func ParseMastery(raw string) (MasteryTier, error) {
	value := MasteryTier(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case MasteryLearning, MasteryLearned, MasteryFavorite:
		return value, nil
	case "":
		return MasteryLearning, nil
	default:
		return "", ErrInvalidMastery
	}
}

// Technique models one catalog entry owned by a single user.
type Technique struct {
	ID               string   `gorm:"column:id;primaryKey;size:190;not null"`
	UserID           string   `gorm:"column:user_id;size:190;not null;index:idx_techniques_user_updated,priority:1"`
	Name             string   `gorm:"column:name;size:320;not null"`
	EnglishName      string   `gorm:"column:english_name;size:320"`
	Category         string   `gorm:"column:category;size:190"`
	Type             string   `gorm:"column:type;size:32;not null"`
	Description      string   `gorm:"column:description;type:text"`
	VideoURL         string   `gorm:"column:video_url;size:512"`
	VideoRefs        []string `gorm:"column:video_refs;serializer:json"`
	Tags             []string `gorm:"column:tags;serializer:json"`
	Mastery          string   `gorm:"column:mastery;size:16;not null;default:learning"`
	Version          int64    `gorm:"column:version;not null;default:1"`
	CreatedAtSeconds int64    `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64    `gorm:"column:updated_at_s;not null;index:idx_techniques_user_updated,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Technique) TableName() string {
	return "techniques"
}
