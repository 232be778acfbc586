package sharing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/openmatlab/rollflow/internal/cache"
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
	opServiceNew        = "sharing.service.new"
	opShare             = "sharing.share"
	opResolve           = "sharing.resolve"
	opListPublic        = "sharing.list_public"
	opShareToGroup      = "sharing.share_to_group"
	opListGroupShared   = "sharing.list_group_shared"
	opDeleteGroupShared = "sharing.delete_group_shared"
)

// Fallback cache namespaces. One per table so replay knows where a queued
// write belongs.
const (
	nsShared      = "shared_content"
	nsGroupShared = "group_shared_content"
)

// mintAttempts bounds retries when a freshly generated code collides with an
// existing row.
const mintAttempts = 5

// defaultPublicLimit caps the public feed page size.
const defaultPublicLimit = 50

// ShareInput is the caller-provided share payload.
type ShareInput struct {
	ContentType string
	ContentJSON string
	Title       string
	Description string
	Visibility  string
}

// ShareResult reports the minted code and whether the share landed in the
// fallback cache instead of the primary store.
type ShareResult struct {
	Code     string
	Fallback bool
}

// ServiceConfig bundles the dependencies for the sharing service.
// CodeMinter defaults to GenerateCode; tests inject a deterministic minter.
type ServiceConfig struct {
	Database   *gorm.DB
	Fallback   *cache.Store
	Clock      func() time.Time
	IDProvider service.IDProvider
	CodeMinter func() (string, error)
	Logger     *zap.Logger
}

// Service mints share codes and resolves them, falling back to the durable
// cache when the primary store is unavailable.
type Service struct {
	db         *gorm.DB
	fallback   *cache.Store
	clock      func() time.Time
	idProvider service.IDProvider
	mintCode   func() (string, error)
	logger     *zap.Logger
}

// NewService validates dependencies and constructs the service. Fallback is
// optional; without it primary-store failures surface to the caller.
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
	mintCode := cfg.CodeMinter
	if mintCode == nil {
		mintCode = GenerateCode
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		fallback:   cfg.Fallback,
		clock:      clock,
		idProvider: idProvider,
		mintCode:   mintCode,
		logger:     logger,
	}, nil
}

func (s *Service) validateInput(operation string, input ShareInput) (ContentType, Visibility, error) {
	contentType, err := ParseContentType(input.ContentType)
	if err != nil {
		return "", "", service.NewError(operation, "invalid_content_type", err)
	}
	visibility, err := ParseVisibility(input.Visibility)
	if err != nil {
		return "", "", service.NewError(operation, "invalid_visibility", err)
	}
	if strings.TrimSpace(input.Title) == "" {
		return "", "", service.NewError(operation, "invalid_title", ErrInvalidTitle)
	}
	return contentType, visibility, nil
}

// Share snapshots content under a fresh share code. When the primary store
// rejects the write for anything other than a code collision, the share is
// parked in the fallback cache and queued for replay.
func (s *Service) Share(ctx context.Context, creatorID string, input ShareInput) (*ShareResult, error) {
	contentType, visibility, err := s.validateInput(opShare, input)
	if err != nil {
		return nil, err
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opShare, "id_generation_failed", err)
		return nil, service.NewError(opShare, "id_generation_failed", err)
	}

	record := SharedContent{
		ID:               id,
		ContentType:      string(contentType),
		ContentJSON:      input.ContentJSON,
		Visibility:       string(visibility),
		Title:            strings.TrimSpace(input.Title),
		Description:      strings.TrimSpace(input.Description),
		CreatorID:        creatorID,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}

	var lastErr error
	for range mintAttempts {
		code, err := s.mintCode()
		if err != nil {
			s.logError(opShare, "code_generation_failed", err)
			return nil, service.NewError(opShare, "code_generation_failed", err)
		}
		record.ShareCode = code

		insertErr := s.db.WithContext(ctx).Create(&record).Error
		if insertErr == nil {
			return &ShareResult{Code: code}, nil
		}
		if isDuplicateErr(insertErr) {
			lastErr = insertErr
			continue
		}
		return s.shareFallback(ctx, record, insertErr)
	}
	s.logError(opShare, "code_exhausted", lastErr)
	return nil, service.NewError(opShare, "code_exhausted", ErrCodeExhausted)
}

func (s *Service) shareFallback(ctx context.Context, record SharedContent, cause error) (*ShareResult, error) {
	if s.fallback == nil {
		s.logError(opShare, "insert_failed", cause)
		return nil, service.NewError(opShare, "insert_failed", cause)
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, service.NewError(opShare, "encode_failed", err)
	}
	if err := s.fallback.Put(ctx, nsShared, record.CreatorID, record.ShareCode, string(payload)); err != nil {
		s.logError(opShare, "fallback_failed", err)
		return nil, service.NewError(opShare, "fallback_failed", err)
	}
	if err := s.fallback.Enqueue(ctx, nsShared, record.CreatorID, record.ShareCode, string(payload)); err != nil {
		s.logError(opShare, "enqueue_failed", err)
		return nil, service.NewError(opShare, "enqueue_failed", err)
	}
	s.logger.Warn("share parked in fallback cache",
		zap.String("share_code", record.ShareCode),
		zap.Error(cause))
	return &ShareResult{Code: record.ShareCode, Fallback: true}, nil
}

// Resolve looks up a share by code, case-insensitively. An unknown code
// resolves to (nil, nil) rather than an error; the cache is consulted for
// shares not yet replayed to the primary store.
func (s *Service) Resolve(ctx context.Context, rawCode string) (*SharedContent, error) {
	code := NormalizeCode(rawCode)
	if code == "" {
		return nil, nil
	}

	var record SharedContent
	err := s.db.WithContext(ctx).Where("share_code = ?", code).Take(&record).Error
	if err == nil {
		return &record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opResolve, "query_failed", err, zap.String("share_code", code))
	}
	return s.resolveFromCache(ctx, code)
}

func (s *Service) resolveFromCache(ctx context.Context, code string) (*SharedContent, error) {
	if s.fallback == nil {
		return nil, nil
	}
	entries, err := s.fallback.Scan(ctx, nsShared)
	if err != nil {
		s.logError(opResolve, "cache_scan_failed", err)
		return nil, nil
	}
	for _, entry := range entries {
		if entry.Key != code {
			continue
		}
		var record SharedContent
		if err := json.Unmarshal([]byte(entry.ValueJSON), &record); err != nil {
			s.logError(opResolve, "cache_decode_failed", err, zap.String("share_code", code))
			continue
		}
		return &record, nil
	}
	return nil, nil
}

// ListPublic returns the public feed, newest first, optionally filtered by
// content type. The fallback cache serves the feed when the primary query
// fails.
func (s *Service) ListPublic(ctx context.Context, contentType string, limit int) ([]SharedContent, error) {
	if limit <= 0 || limit > defaultPublicLimit {
		limit = defaultPublicLimit
	}
	query := s.db.WithContext(ctx).
		Where("visibility = ?", string(VisibilityPublic)).
		Order("created_at_s DESC").
		Limit(limit)
	if trimmed := strings.ToLower(strings.TrimSpace(contentType)); trimmed != "" {
		if _, err := ParseContentType(trimmed); err != nil {
			return nil, service.NewError(opListPublic, "invalid_content_type", err)
		}
		query = query.Where("content_type = ?", trimmed)
	}

	var items []SharedContent
	if err := query.Find(&items).Error; err != nil {
		s.logError(opListPublic, "query_failed", err)
		return s.listPublicFromCache(ctx, contentType, limit)
	}
	return items, nil
}

func (s *Service) listPublicFromCache(ctx context.Context, contentType string, limit int) ([]SharedContent, error) {
	if s.fallback == nil {
		return []SharedContent{}, nil
	}
	entries, err := s.fallback.Scan(ctx, nsShared)
	if err != nil {
		return []SharedContent{}, nil
	}
	filter := strings.ToLower(strings.TrimSpace(contentType))
	items := make([]SharedContent, 0, len(entries))
	for _, entry := range entries {
		var record SharedContent
		if err := json.Unmarshal([]byte(entry.ValueJSON), &record); err != nil {
			continue
		}
		if record.Visibility != string(VisibilityPublic) {
			continue
		}
		if filter != "" && record.ContentType != filter {
			continue
		}
		items = append(items, record)
		if len(items) == limit {
			break
		}
	}
	return items, nil
}

// ShareToGroup snapshots content into a group's shared feed. Membership is
// checked by the caller; this layer records who shared so deletion can be
// gated on the sharer.
func (s *Service) ShareToGroup(ctx context.Context, sharerID, groupID string, input ShareInput) (*GroupSharedContent, error) {
	if strings.TrimSpace(sharerID) == "" {
		return nil, service.NewError(opShareToGroup, "missing_user_id", errMissingUserID)
	}
	contentType, _, err := s.validateInput(opShareToGroup, input)
	if err != nil {
		return nil, err
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opShareToGroup, "id_generation_failed", err)
		return nil, service.NewError(opShareToGroup, "id_generation_failed", err)
	}
	code, err := s.mintCode()
	if err != nil {
		return nil, service.NewError(opShareToGroup, "code_generation_failed", err)
	}

	record := GroupSharedContent{
		ID:               id,
		GroupID:          groupID,
		ContentType:      string(contentType),
		ContentJSON:      input.ContentJSON,
		ShareCode:        code,
		SharerID:         sharerID,
		Title:            strings.TrimSpace(input.Title),
		Description:      strings.TrimSpace(input.Description),
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}

	insertErr := s.db.WithContext(ctx).Create(&record).Error
	if insertErr == nil {
		return &record, nil
	}

	if s.fallback == nil {
		s.logError(opShareToGroup, "insert_failed", insertErr, zap.String("group_id", groupID))
		return nil, service.NewError(opShareToGroup, "insert_failed", insertErr)
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, service.NewError(opShareToGroup, "encode_failed", err)
	}
	if err := s.fallback.Put(ctx, nsGroupShared, sharerID, record.ID, string(payload)); err != nil {
		return nil, service.NewError(opShareToGroup, "fallback_failed", err)
	}
	if err := s.fallback.Enqueue(ctx, nsGroupShared, sharerID, record.ID, string(payload)); err != nil {
		return nil, service.NewError(opShareToGroup, "enqueue_failed", err)
	}
	s.logger.Warn("group share parked in fallback cache",
		zap.String("group_id", groupID),
		zap.Error(insertErr))
	return &record, nil
}

// ListGroupShared returns a group's shared feed, newest first. Cached shares
// awaiting replay are merged in so the sharer sees their own writes.
func (s *Service) ListGroupShared(ctx context.Context, groupID string) ([]GroupSharedContent, error) {
	var items []GroupSharedContent
	err := s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at_s DESC").
		Find(&items).Error
	if err != nil {
		s.logError(opListGroupShared, "query_failed", err, zap.String("group_id", groupID))
		items = nil
	}

	if s.fallback != nil {
		entries, scanErr := s.fallback.Scan(ctx, nsGroupShared)
		if scanErr == nil {
			seen := make(map[string]struct{}, len(items))
			for _, item := range items {
				seen[item.ID] = struct{}{}
			}
			for _, entry := range entries {
				var record GroupSharedContent
				if err := json.Unmarshal([]byte(entry.ValueJSON), &record); err != nil {
					continue
				}
				if record.GroupID != groupID {
					continue
				}
				if _, ok := seen[record.ID]; ok {
					continue
				}
				items = append(items, record)
			}
		}
	}
	if items == nil {
		if err != nil {
			return nil, service.NewError(opListGroupShared, "query_failed", err)
		}
		items = []GroupSharedContent{}
	}
	return items, nil
}

// DeleteGroupShared removes a group share. Only the original sharer may
// delete; the check applies on both the primary and the cached path.
func (s *Service) DeleteGroupShared(ctx context.Context, callerID, sharedID string) error {
	if strings.TrimSpace(callerID) == "" {
		return service.NewError(opDeleteGroupShared, "missing_user_id", errMissingUserID)
	}

	var record GroupSharedContent
	err := s.db.WithContext(ctx).Where("id = ?", sharedID).Take(&record).Error
	if err == nil {
		if record.SharerID != callerID {
			return ErrNotSharer
		}
		if err := s.db.WithContext(ctx).Where("id = ?", sharedID).Delete(&GroupSharedContent{}).Error; err != nil {
			s.logError(opDeleteGroupShared, "delete_failed", err, zap.String("shared_id", sharedID))
			return service.NewError(opDeleteGroupShared, "delete_failed", err)
		}
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opDeleteGroupShared, "query_failed", err, zap.String("shared_id", sharedID))
	}
	return s.deleteGroupSharedFromCache(ctx, callerID, sharedID)
}

func (s *Service) deleteGroupSharedFromCache(ctx context.Context, callerID, sharedID string) error {
	if s.fallback == nil {
		return ErrNotFound
	}
	entries, err := s.fallback.Scan(ctx, nsGroupShared)
	if err != nil {
		return ErrNotFound
	}
	for _, entry := range entries {
		if entry.Key != sharedID {
			continue
		}
		var record GroupSharedContent
		if err := json.Unmarshal([]byte(entry.ValueJSON), &record); err != nil {
			continue
		}
		if record.SharerID != callerID {
			return ErrNotSharer
		}
		if err := s.fallback.Delete(ctx, nsGroupShared, entry.UserID, sharedID); err != nil {
			return service.NewError(opDeleteGroupShared, "cache_delete_failed", err)
		}
		return nil
	}
	return ErrNotFound
}

func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint")
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
	s.logger.Error("sharing service error", attrs...)
}
