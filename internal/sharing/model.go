package sharing

import (
	"errors"
	"strings"
)

// ContentType tags what kind of payload a share carries.
type ContentType string

const (
	ContentTypeTechnique ContentType = "technique"
	ContentTypeFlow      ContentType = "flow"
)

// Visibility tiers for publicly shared content.
type Visibility string

const (
	// VisibilityPublic lists the share in the public feed.
	VisibilityPublic Visibility = "public"
	// VisibilityLink makes the share reachable only by its code.
	VisibilityLink Visibility = "link_only"
)

var (
	// ErrInvalidContentType indicates a tag outside technique/flow.
	ErrInvalidContentType = errors.New("sharing: unknown content type")
	// ErrInvalidVisibility indicates a tier outside public/link_only.
	ErrInvalidVisibility = errors.New("sharing: unknown visibility")
	// ErrInvalidTitle indicates an empty share title.
	ErrInvalidTitle = errors.New("sharing: title must not be empty")
	// ErrNotSharer indicates a group-share delete by someone other than the
	// original sharer.
	ErrNotSharer = errors.New("sharing: only the sharer may delete")
	// ErrNotFound indicates no share matches the lookup.
	ErrNotFound = errors.New("sharing: not found")
	// ErrCodeExhausted indicates repeated collisions while minting a code.
	ErrCodeExhausted = errors.New("sharing: could not mint a unique share code")
)

// ParseContentType validates a raw content-type tag.
func ParseContentType(raw string) (ContentType, error) {
	value := ContentType(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case ContentTypeTechnique, ContentTypeFlow:
		return value, nil
	default:
		return "", ErrInvalidContentType
	}
}

// ParseVisibility validates a raw visibility tier.
func ParseVisibility(raw string) (Visibility, error) {
	value := Visibility(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case VisibilityPublic, VisibilityLink:
		return value, nil
	case "":
		return VisibilityLink, nil
	default:
		return "", ErrInvalidVisibility
	}
}

// SharedContent is one publicly resolvable share row.
type SharedContent struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	ContentType      string `gorm:"column:content_type;size:16;not null" json:"content_type"`
	ContentJSON      string `gorm:"column:content_json;type:text;not null" json:"content_json"`
	ShareCode        string `gorm:"column:share_code;size:16;not null;uniqueIndex" json:"share_code"`
	Visibility       string `gorm:"column:visibility;size:16;not null" json:"visibility"`
	Title            string `gorm:"column:title;size:320;not null" json:"title"`
	Description      string `gorm:"column:description;type:text" json:"description"`
	CreatorID        string `gorm:"column:creator_id;size:190" json:"creator_id"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null" json:"created_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (SharedContent) TableName() string {
	return "shared_content"
}

// GroupSharedContent is a share scoped to a group instead of a visibility
// tier. The sharer identity is mandatory; it gates deletion.
type GroupSharedContent struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	GroupID          string `gorm:"column:group_id;size:190;not null;index" json:"group_id"`
	ContentType      string `gorm:"column:content_type;size:16;not null" json:"content_type"`
	ContentJSON      string `gorm:"column:content_json;type:text;not null" json:"content_json"`
	ShareCode        string `gorm:"column:share_code;size:16;not null;uniqueIndex" json:"share_code"`
	SharerID         string `gorm:"column:sharer_id;size:190;not null" json:"sharer_id"`
	Title            string `gorm:"column:title;size:320;not null" json:"title"`
	Description      string `gorm:"column:description;type:text" json:"description"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null" json:"created_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (GroupSharedContent) TableName() string {
	return "group_shared_content"
}
