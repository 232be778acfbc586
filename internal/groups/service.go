package groups

import (
	"context"
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
	opServiceNew   = "groups.service.new"
	opCreate       = "groups.create"
	opGet          = "groups.get"
	opList         = "groups.list"
	opAddMember    = "groups.add_member"
	opRemoveMember = "groups.remove_member"
	opSetIcon      = "groups.set_icon"
	opDelete       = "groups.delete"
)

// ServiceConfig bundles the dependencies for group management.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider service.IDProvider
	Logger     *zap.Logger
}

// Service owns groups and their membership rows.
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

// Create inserts a group and enrolls the creator as admin.
func (s *Service) Create(ctx context.Context, creatorID, name string) (*Group, error) {
	if strings.TrimSpace(creatorID) == "" {
		return nil, service.NewError(opCreate, "missing_user_id", errMissingUserID)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, service.NewError(opCreate, "invalid_name", ErrInvalidName)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err, zap.String("user_id", creatorID))
		return nil, service.NewError(opCreate, "id_generation_failed", err)
	}

	now := s.clock().UTC().Unix()
	group := Group{
		ID:               id,
		Name:             name,
		CreatorID:        creatorID,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	member := GroupMember{
		GroupID:         id,
		UserID:          creatorID,
		Role:            RoleAdmin,
		JoinedAtSeconds: now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		return tx.Create(&member).Error
	})
	if txErr != nil {
		s.logError(opCreate, "insert_failed", txErr, zap.String("user_id", creatorID))
		return nil, service.NewError(opCreate, "insert_failed", txErr)
	}
	return &group, nil
}

// Get fetches a group the user belongs to.
func (s *Service) Get(ctx context.Context, userID, groupID string) (*Group, error) {
	if _, err := s.Membership(ctx, userID, groupID); err != nil {
		return nil, err
	}
	var group Group
	err := s.db.WithContext(ctx).Where("id = ?", groupID).Take(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("group_id", groupID))
		return nil, service.NewError(opGet, "query_failed", err)
	}
	return &group, nil
}

// List returns every group the user belongs to.
func (s *Service) List(ctx context.Context, userID string) ([]Group, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, service.NewError(opList, "missing_user_id", errMissingUserID)
	}
	var items []Group
	err := s.db.WithContext(ctx).
		Joins("JOIN group_members ON group_members.group_id = groups.id").
		Where("group_members.user_id = ?", userID).
		Order("groups.created_at_s DESC").
		Find(&items).Error
	if err != nil {
		s.logError(opList, "query_failed", err, zap.String("user_id", userID))
		return nil, service.NewError(opList, "query_failed", err)
	}
	return items, nil
}

// Membership returns the caller's membership row, or ErrNotMember.
func (s *Service) Membership(ctx context.Context, userID, groupID string) (*GroupMember, error) {
	var member GroupMember
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, service.NewError(opGet, "query_failed", err)
	}
	return &member, nil
}

// Members lists the membership rows of a group the caller belongs to.
func (s *Service) Members(ctx context.Context, userID, groupID string) ([]GroupMember, error) {
	if _, err := s.Membership(ctx, userID, groupID); err != nil {
		return nil, err
	}
	var members []GroupMember
	if err := s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("joined_at_s ASC").
		Find(&members).Error; err != nil {
		s.logError(opList, "query_failed", err, zap.String("group_id", groupID))
		return nil, service.NewError(opList, "query_failed", err)
	}
	return members, nil
}

// AddMember enrolls a user. Only admins may add members.
func (s *Service) AddMember(ctx context.Context, callerID, groupID, userID string, role Role) error {
	caller, err := s.Membership(ctx, callerID, groupID)
	if err != nil {
		return err
	}
	if caller.Role != RoleAdmin {
		return ErrNotAdmin
	}
	if role != RoleAdmin {
		role = RoleMember
	}
	if existing, err := s.Membership(ctx, userID, groupID); err == nil && existing != nil {
		return ErrAlreadyMember
	}

	member := GroupMember{
		GroupID:         groupID,
		UserID:          userID,
		Role:            role,
		JoinedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
		s.logError(opAddMember, "insert_failed", err, zap.String("group_id", groupID), zap.String("user_id", userID))
		return service.NewError(opAddMember, "insert_failed", err)
	}
	return nil
}

// RemoveMember drops a membership row. Admins may remove anyone; a member
// may remove themselves (leave).
func (s *Service) RemoveMember(ctx context.Context, callerID, groupID, userID string) error {
	caller, err := s.Membership(ctx, callerID, groupID)
	if err != nil {
		return err
	}
	if caller.Role != RoleAdmin && callerID != userID {
		return ErrNotAdmin
	}
	result := s.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&GroupMember{})
	if result.Error != nil {
		s.logError(opRemoveMember, "delete_failed", result.Error, zap.String("group_id", groupID), zap.String("user_id", userID))
		return service.NewError(opRemoveMember, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotMember
	}
	return nil
}

// SetIcon records the uploaded icon URL. Only admins may change it.
func (s *Service) SetIcon(ctx context.Context, callerID, groupID, iconURL string) error {
	caller, err := s.Membership(ctx, callerID, groupID)
	if err != nil {
		return err
	}
	if caller.Role != RoleAdmin {
		return ErrNotAdmin
	}
	now := s.clock().UTC().Unix()
	result := s.db.WithContext(ctx).Model(&Group{}).
		Where("id = ?", groupID).
		Updates(map[string]interface{}{
			"icon_url":     strings.TrimSpace(iconURL),
			"updated_at_s": now,
		})
	if result.Error != nil {
		s.logError(opSetIcon, "update_failed", result.Error, zap.String("group_id", groupID))
		return service.NewError(opSetIcon, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the group and its membership rows. Only the creator may
// delete a group.
func (s *Service) Delete(ctx context.Context, callerID, groupID string) error {
	var group Group
	err := s.db.WithContext(ctx).Where("id = ?", groupID).Take(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return service.NewError(opDelete, "query_failed", err)
	}
	if group.CreatorID != callerID {
		return ErrNotAdmin
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", groupID).Delete(&GroupMember{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", groupID).Delete(&Group{}).Error
	})
	if txErr != nil {
		s.logError(opDelete, "delete_failed", txErr, zap.String("group_id", groupID))
		return service.NewError(opDelete, "delete_failed", txErr)
	}
	return nil
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
	s.logger.Error("groups service error", attrs...)
}
