package techniques

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/openmatlab/rollflow/internal/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingUserID   = errors.New("user identifier is required")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew  = "techniques.service.new"
	opCreate      = "techniques.create"
	opGet         = "techniques.get"
	opList        = "techniques.list"
	opUpdate      = "techniques.update"
	opDelete      = "techniques.delete"
	opSetMastery  = "techniques.set_mastery"
	opAddVideoRef = "techniques.add_video_ref"
)

// ServiceConfig bundles the dependencies for the technique catalog.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider service.IDProvider
	Logger     *zap.Logger
}

// Service owns CRUD over a user's technique catalog.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider service.IDProvider
	logger     *zap.Logger
}

// NewService validates dependencies and constructs the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, service.NewError(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = service.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, idProvider: idProvider, logger: logger}, nil
}

// CreateInput carries the fields accepted by Create.
type CreateInput struct {
	Name        string
	EnglishName string
	Category    string
	Type        string
	Description string
	VideoURL    string
	Tags        []string
	Mastery     string
}

// Create inserts a new technique owned by the user.
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*Technique, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, service.NewError(opCreate, "missing_user_id", errMissingUserID)
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, service.NewError(opCreate, "invalid_name", ErrInvalidName)
	}
	techniqueType, err := ParseType(input.Type)
	if err != nil {
		return nil, service.NewError(opCreate, "invalid_type", err)
	}
	mastery, err := ParseMastery(input.Mastery)
	if err != nil {
		return nil, service.NewError(opCreate, "invalid_mastery", err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err, zap.String("user_id", userID))
		return nil, service.NewError(opCreate, "id_generation_failed", err)
	}

	now := s.clock().UTC().Unix()
	technique := Technique{
		ID:               id,
		UserID:           userID,
		Name:             name,
		EnglishName:      strings.TrimSpace(input.EnglishName),
		Category:         strings.TrimSpace(input.Category),
		Type:             string(techniqueType),
		Description:      input.Description,
		VideoURL:         strings.TrimSpace(input.VideoURL),
		VideoRefs:        []string{},
		Tags:             normalizeTags(input.Tags),
		Mastery:          string(mastery),
		Version:          1,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := s.db.WithContext(ctx).Create(&technique).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("user_id", userID))
		return nil, service.NewError(opCreate, "insert_failed", err)
	}
	return &technique, nil
}

// Get fetches a single technique scoped by owner.
func (s *Service) Get(ctx context.Context, userID, id string) (*Technique, error) {
	var technique Technique
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		Take(&technique).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("user_id", userID), zap.String("technique_id", id))
		return nil, service.NewError(opGet, "query_failed", err)
	}
	return &technique, nil
}

// List returns the user's techniques, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]Technique, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, service.NewError(opList, "missing_user_id", errMissingUserID)
	}
	var items []Technique
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at_s DESC").
		Find(&items).Error; err != nil {
		s.logError(opList, "query_failed", err, zap.String("user_id", userID))
		return nil, service.NewError(opList, "query_failed", err)
	}
	return items, nil
}

// UpdateInput carries the mutable fields plus the base version the client
// read. A stale base version is rejected with ErrVersionConflict.
type UpdateInput struct {
	Name        string
	EnglishName string
	Category    string
	Type        string
	Description string
	VideoURL    string
	Tags        []string
	BaseVersion int64
}

// Update rewrites the technique when the base version is current.
func (s *Service) Update(ctx context.Context, userID, id string, input UpdateInput) (*Technique, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, service.NewError(opUpdate, "invalid_name", ErrInvalidName)
	}
	techniqueType, err := ParseType(input.Type)
	if err != nil {
		return nil, service.NewError(opUpdate, "invalid_type", err)
	}

	now := s.clock().UTC().Unix()
	result := s.db.WithContext(ctx).Model(&Technique{}).
		Where("user_id = ? AND id = ? AND version = ?", userID, id, input.BaseVersion).
		Updates(map[string]interface{}{
			"name":         name,
			"english_name": strings.TrimSpace(input.EnglishName),
			"category":     strings.TrimSpace(input.Category),
			"type":         string(techniqueType),
			"description":  input.Description,
			"video_url":    strings.TrimSpace(input.VideoURL),
			"tags":         jsonColumn(normalizeTags(input.Tags)),
			"version":      gorm.Expr("version + 1"),
			"updated_at_s": now,
		})
	if result.Error != nil {
		s.logError(opUpdate, "update_failed", result.Error, zap.String("user_id", userID), zap.String("technique_id", id))
		return nil, service.NewError(opUpdate, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, s.staleOrMissing(ctx, userID, id)
	}
	return s.Get(ctx, userID, id)
}

// Delete removes the technique. Removing one of two identically named
// techniques leaves the other untouched; rows are keyed by id alone.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		Delete(&Technique{})
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error, zap.String("user_id", userID), zap.String("technique_id", id))
		return service.NewError(opDelete, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMastery moves the technique to the given tier. Applying the same tier
// twice is a no-op after the first application.
func (s *Service) SetMastery(ctx context.Context, userID, id string, tier MasteryTier) (*Technique, error) {
	if _, err := ParseMastery(string(tier)); err != nil {
		return nil, service.NewError(opSetMastery, "invalid_mastery", err)
	}
	now := s.clock().UTC().Unix()
	result := s.db.WithContext(ctx).Model(&Technique{}).
		Where("user_id = ? AND id = ?", userID, id).
		Updates(map[string]interface{}{
			"mastery":      string(tier),
			"updated_at_s": now,
		})
	if result.Error != nil {
		s.logError(opSetMastery, "update_failed", result.Error, zap.String("user_id", userID), zap.String("technique_id", id))
		return nil, service.NewError(opSetMastery, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, userID, id)
}

// AddVideoRef appends an uploaded video reference, bounded at maxVideoRefs.
func (s *Service) AddVideoRef(ctx context.Context, userID, id, ref string) (*Technique, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, service.NewError(opAddVideoRef, "invalid_ref", ErrInvalidName)
	}
	technique, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if len(technique.VideoRefs) >= maxVideoRefs {
		return nil, service.NewError(opAddVideoRef, "limit_reached", ErrTooManyVideos)
	}
	refs := append(append([]string{}, technique.VideoRefs...), ref)
	now := s.clock().UTC().Unix()
	result := s.db.WithContext(ctx).Model(&Technique{}).
		Where("user_id = ? AND id = ?", userID, id).
		Updates(map[string]interface{}{
			"video_refs":   jsonColumn(refs),
			"updated_at_s": now,
		})
	if result.Error != nil {
		s.logError(opAddVideoRef, "update_failed", result.Error, zap.String("user_id", userID), zap.String("technique_id", id))
		return nil, service.NewError(opAddVideoRef, "update_failed", result.Error)
	}
	return s.Get(ctx, userID, id)
}

func (s *Service) staleOrMissing(ctx context.Context, userID, id string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Technique{}).
		Where("user_id = ? AND id = ?", userID, id).
		Count(&count).Error; err != nil {
		return service.NewError(opUpdate, "query_failed", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrVersionConflict
}

// jsonColumn renders a slice for a map-based update. Map values bypass the
// model's json serializer, so the column text must be built here.
func jsonColumn(values []string) string {
	if values == nil {
		values = []string{}
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("techniques service error", attrs...)
}
