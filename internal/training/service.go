package training

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
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
	datePattern        = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

const (
	opServiceNew = "training.service.new"
	opCreate     = "training.create"
	opGet        = "training.get"
	opList       = "training.list"
	opUpdate     = "training.update"
	opDelete     = "training.delete"
)

// ServiceConfig bundles the dependencies for the training journal.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider service.IDProvider
	Logger     *zap.Logger
}

// Service owns CRUD over a user's training logs.
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

// Input carries the fields accepted by Create and Update.
type Input struct {
	Date           string
	StartTime      string
	EndTime        string
	Condition      int
	SparringRounds int
	Content        string
	VideoRefs      []string
	BaseVersion    int64
}

func (s *Service) validate(input Input) (TrainingLog, error) {
	date := strings.TrimSpace(input.Date)
	if !datePattern.MatchString(date) {
		return TrainingLog{}, ErrInvalidDate
	}
	if input.Condition < 1 || input.Condition > 5 {
		return TrainingLog{}, ErrInvalidCondition
	}
	if len(input.VideoRefs) > maxVideoRefs {
		return TrainingLog{}, ErrTooManyVideos
	}
	log := TrainingLog{
		Date:           date,
		StartTime:      strings.TrimSpace(input.StartTime),
		EndTime:        strings.TrimSpace(input.EndTime),
		Condition:      input.Condition,
		SparringRounds: input.SparringRounds,
		Content:        input.Content,
		VideoRefs:      append([]string{}, input.VideoRefs...),
	}
	if !log.HasValidTimeRange() {
		return TrainingLog{}, ErrInvalidTimeRange
	}
	return log, nil
}

// Create inserts a new training log owned by the user.
func (s *Service) Create(ctx context.Context, userID string, input Input) (*TrainingLog, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, service.NewError(opCreate, "missing_user_id", errMissingUserID)
	}
	log, err := s.validate(input)
	if err != nil {
		return nil, service.NewError(opCreate, "invalid_input", err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err, zap.String("user_id", userID))
		return nil, service.NewError(opCreate, "id_generation_failed", err)
	}

	now := s.clock().UTC().Unix()
	log.ID = id
	log.UserID = userID
	log.Version = 1
	log.CreatedAtSeconds = now
	log.UpdatedAtSeconds = now

	if err := s.db.WithContext(ctx).Create(&log).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("user_id", userID))
		return nil, service.NewError(opCreate, "insert_failed", err)
	}
	return &log, nil
}

// Get fetches a single log scoped by owner.
func (s *Service) Get(ctx context.Context, userID, id string) (*TrainingLog, error) {
	var log TrainingLog
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		Take(&log).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("user_id", userID), zap.String("log_id", id))
		return nil, service.NewError(opGet, "query_failed", err)
	}
	return &log, nil
}

// List returns the user's logs, optionally bounded to [from, to] dates,
// newest first.
func (s *Service) List(ctx context.Context, userID, from, to string) ([]TrainingLog, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, service.NewError(opList, "missing_user_id", errMissingUserID)
	}
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if from = strings.TrimSpace(from); from != "" {
		query = query.Where("date >= ?", from)
	}
	if to = strings.TrimSpace(to); to != "" {
		query = query.Where("date <= ?", to)
	}
	var items []TrainingLog
	if err := query.Order("date DESC, created_at_s DESC").Find(&items).Error; err != nil {
		s.logError(opList, "query_failed", err, zap.String("user_id", userID))
		return nil, service.NewError(opList, "query_failed", err)
	}
	return items, nil
}

// Update rewrites the log when the base version is current.
func (s *Service) Update(ctx context.Context, userID, id string, input Input) (*TrainingLog, error) {
	log, err := s.validate(input)
	if err != nil {
		return nil, service.NewError(opUpdate, "invalid_input", err)
	}

	now := s.clock().UTC().Unix()
	result := s.db.WithContext(ctx).Model(&TrainingLog{}).
		Where("user_id = ? AND id = ? AND version = ?", userID, id, input.BaseVersion).
		Updates(map[string]interface{}{
			"date":            log.Date,
			"start_time":      log.StartTime,
			"end_time":        log.EndTime,
			"condition":       log.Condition,
			"sparring_rounds": log.SparringRounds,
			"content":         log.Content,
			"video_refs":      jsonColumn(log.VideoRefs),
			"version":         gorm.Expr("version + 1"),
			"updated_at_s":    now,
		})
	if result.Error != nil {
		s.logError(opUpdate, "update_failed", result.Error, zap.String("user_id", userID), zap.String("log_id", id))
		return nil, service.NewError(opUpdate, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, s.staleOrMissing(ctx, userID, id)
	}
	return s.Get(ctx, userID, id)
}

// Delete removes the log.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		Delete(&TrainingLog{})
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error, zap.String("user_id", userID), zap.String("log_id", id))
		return service.NewError(opDelete, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) staleOrMissing(ctx context.Context, userID, id string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&TrainingLog{}).
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

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("training service error", attrs...)
}
