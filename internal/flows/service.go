package flows

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/openmatlab/rollflow/internal/flowgraph"
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
	opServiceNew  = "flows.service.new"
	opCreate      = "flows.create"
	opGet         = "flows.get"
	opList        = "flows.list"
	opUpdate      = "flows.update"
	opDelete      = "flows.delete"
	opSetFavorite = "flows.set_favorite"
)

// ServiceConfig bundles the dependencies for the flow library.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider service.IDProvider
	Logger     *zap.Logger
}

// Service owns CRUD over a user's flows. Graph payloads pass through the
// flowgraph codec on every write so stored rows always hold the current
// versioned envelope.
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

// CreateInput carries the fields accepted by Create. FlowData may hold any
// payload a client produced; it is normalized through the codec.
type CreateInput struct {
	Name        string
	Description string
	Tags        []string
	FlowData    string
}

// Create inserts a new flow owned by the user.
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*Flow, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, service.NewError(opCreate, "missing_user_id", errMissingUserID)
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, service.NewError(opCreate, "invalid_name", ErrInvalidName)
	}
	payload, err := normalizePayload(input.FlowData)
	if err != nil {
		return nil, service.NewError(opCreate, "invalid_flow_data", err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err, zap.String("user_id", userID))
		return nil, service.NewError(opCreate, "id_generation_failed", err)
	}

	now := s.clock().UTC().Unix()
	flow := Flow{
		ID:               id,
		UserID:           userID,
		Name:             name,
		Description:      input.Description,
		Tags:             normalizeTags(input.Tags),
		FlowData:         payload,
		Version:          1,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := s.db.WithContext(ctx).Create(&flow).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("user_id", userID))
		return nil, service.NewError(opCreate, "insert_failed", err)
	}
	return &flow, nil
}

// Get fetches a single flow scoped by owner.
func (s *Service) Get(ctx context.Context, userID, id string) (*Flow, error) {
	var flow Flow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		Take(&flow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("user_id", userID), zap.String("flow_id", id))
		return nil, service.NewError(opGet, "query_failed", err)
	}
	return &flow, nil
}

// Graph decodes the stored payload of a flow. Decoding is permissive per the
// codec: damaged rows come back as an empty canvas, not an error.
func (s *Service) Graph(ctx context.Context, userID, id string) (flowgraph.Graph, error) {
	flow, err := s.Get(ctx, userID, id)
	if err != nil {
		return flowgraph.Empty(), err
	}
	return flowgraph.Decode(flow.FlowData)
}

// List returns the user's flows, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]Flow, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, service.NewError(opList, "missing_user_id", errMissingUserID)
	}
	var items []Flow
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
// read. Saves always carry the full graph; there is no delta form.
type UpdateInput struct {
	Name        string
	Description string
	Tags        []string
	FlowData    string
	BaseVersion int64
}

// Update rewrites the flow when the base version is current.
func (s *Service) Update(ctx context.Context, userID, id string, input UpdateInput) (*Flow, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, service.NewError(opUpdate, "invalid_name", ErrInvalidName)
	}
	payload, err := normalizePayload(input.FlowData)
	if err != nil {
		return nil, service.NewError(opUpdate, "invalid_flow_data", err)
	}

	now := s.clock().UTC().Unix()
	result := s.db.WithContext(ctx).Model(&Flow{}).
		Where("user_id = ? AND id = ? AND version = ?", userID, id, input.BaseVersion).
		Updates(map[string]interface{}{
			"name":         name,
			"description":  input.Description,
			"tags":         jsonColumn(normalizeTags(input.Tags)),
			"flow_data":    payload,
			"version":      gorm.Expr("version + 1"),
			"updated_at_s": now,
		})
	if result.Error != nil {
		s.logError(opUpdate, "update_failed", result.Error, zap.String("user_id", userID), zap.String("flow_id", id))
		return nil, service.NewError(opUpdate, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, s.staleOrMissing(ctx, userID, id)
	}
	return s.Get(ctx, userID, id)
}

// Delete removes the flow.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		Delete(&Flow{})
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error, zap.String("user_id", userID), zap.String("flow_id", id))
		return service.NewError(opDelete, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetFavorite toggles the favorite flag.
func (s *Service) SetFavorite(ctx context.Context, userID, id string, favorite bool) (*Flow, error) {
	now := s.clock().UTC().Unix()
	result := s.db.WithContext(ctx).Model(&Flow{}).
		Where("user_id = ? AND id = ?", userID, id).
		Updates(map[string]interface{}{
			"favorite":     favorite,
			"updated_at_s": now,
		})
	if result.Error != nil {
		s.logError(opSetFavorite, "update_failed", result.Error, zap.String("user_id", userID), zap.String("flow_id", id))
		return nil, service.NewError(opSetFavorite, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, userID, id)
}

func (s *Service) staleOrMissing(ctx context.Context, userID, id string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Flow{}).
		Where("user_id = ? AND id = ?", userID, id).
		Count(&count).Error; err != nil {
		return service.NewError(opUpdate, "query_failed", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrVersionConflict
}

// normalizePayload round-trips client flow_data through the codec. Malformed
// and legacy payloads collapse to the empty envelope; a payload from a newer
// client version is an error.
func normalizePayload(raw string) (string, error) {
	graph, err := flowgraph.Decode(raw)
	if err != nil {
		return "", err
	}
	return flowgraph.Encode(graph)
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
	s.logger.Error("flows service error", attrs...)
}
