package users

import (
	"strings"
	"time"

	"github.com/openmatlab/rollflow/internal/themes"
)

// Profile captures the canonical RollFlow user and the provider identity it
// was provisioned from. Belt rank only drives client theming.
type Profile struct {
	UserID      string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Provider    string    `gorm:"column:provider;size:32;not null;uniqueIndex:uidx_provider_subject,priority:1"`
	Subject     string    `gorm:"column:subject;size:190;not null;uniqueIndex:uidx_provider_subject,priority:2"`
	Email       string    `gorm:"column:email;size:320"`
	DisplayName string    `gorm:"column:display_name;size:320"`
	AvatarURL   string    `gorm:"column:avatar_url;size:512"`
	BeltRank    string    `gorm:"column:belt_rank;size:16;not null;default:white"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user profiles.
func (Profile) TableName() string {
	return "profiles"
}

// Belt returns the profile's belt rank as a themes value.
func (p Profile) Belt() themes.BeltRank {
	return themes.ParseBeltRank(p.BeltRank)
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
