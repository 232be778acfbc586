package groups

import "errors"

// Role enumerates membership roles inside a group.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

var (
	// ErrInvalidName indicates an empty group name.
	ErrInvalidName = errors.New("groups: name must not be empty")
	// ErrNotFound indicates no group matches the id.
	ErrNotFound = errors.New("groups: not found")
	// ErrNotMember indicates the user does not belong to the group.
	ErrNotMember = errors.New("groups: not a member")
	// ErrNotAdmin indicates the caller lacks the admin role.
	ErrNotAdmin = errors.New("groups: admin role required")
	// ErrAlreadyMember indicates a duplicate membership insert.
	ErrAlreadyMember = errors.New("groups: already a member")
)

// Group is a named collection of users sharing content with each other.
type Group struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null"`
	Name             string `gorm:"column:name;size:320;not null"`
	CreatorID        string `gorm:"column:creator_id;size:190;not null;index"`
	IconURL          string `gorm:"column:icon_url;size:512"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Group) TableName() string {
	return "groups"
}

// GroupMember binds a user to a group with a role.
type GroupMember struct {
	GroupID          string `gorm:"column:group_id;primaryKey;size:190;not null"`
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null;index"`
	Role             Role   `gorm:"column:role;size:16;not null;default:member"`
	JoinedAtSeconds  int64  `gorm:"column:joined_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (GroupMember) TableName() string {
	return "group_members"
}
