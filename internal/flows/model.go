package flows

import "errors"

var (
	// ErrInvalidName indicates an empty flow name.
	ErrInvalidName = errors.New("flows: name must not be empty")
	// ErrNotFound indicates no flow matches the user id and id pair.
	ErrNotFound = errors.New("flows: not found")
	// ErrVersionConflict indicates an update presented a stale base version.
	ErrVersionConflict = errors.New("flows: version conflict")
)

// Flow is a user-authored directed graph of techniques connected by labeled
// transition conditions. The graph itself lives in the FlowData column.
type Flow struct {
	ID               string   `gorm:"column:id;primaryKey;size:190;not null"`
	UserID           string   `gorm:"column:user_id;size:190;not null;index:idx_flows_user_updated,priority:1"`
	Name             string   `gorm:"column:name;size:320;not null"`
	Description      string   `gorm:"column:description;type:text"`
	Tags             []string `gorm:"column:tags;serializer:json"`
	Favorite         bool     `gorm:"column:favorite;not null;default:false"`
	FlowData         string   `gorm:"column:flow_data;type:text;not null"`
	Version          int64    `gorm:"column:version;not null;default:1"`
	CreatedAtSeconds int64    `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64    `gorm:"column:updated_at_s;not null;index:idx_flows_user_updated,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Flow) TableName() string {
	return "flows"
}
