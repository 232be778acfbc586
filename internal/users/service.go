package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openmatlab/rollflow/internal/auth"
	"github.com/openmatlab/rollflow/internal/themes"
	"gorm.io/gorm"
)

var (
	// ErrInvalidIdentity indicates the claims did not contain a usable subject.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrProfileNotFound indicates no profile row exists for the user id.
	ErrProfileNotFound = errors.New("users: profile not found")
	// ErrInvalidBeltRank indicates the requested rank is not one of the five belts.
	ErrInvalidBeltRank = errors.New("users: invalid belt rank")
)

// ServiceConfig describes the dependencies required for profile resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages canonical user profiles keyed by provider identities.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// ResolveProfile returns the canonical user id for the verified provider
// claims, provisioning a profile row the first time a provider+subject pair
// is seen and refreshing contact fields on subsequent logins.
func (s *Service) ResolveProfile(ctx context.Context, claims auth.ProviderClaims) (string, error) {
	subject := normalize(claims.Subject)
	if subject == "" {
		return "", ErrInvalidIdentity
	}
	provider := normalize(claims.Issuer)
	if provider == "" {
		provider = "default"
	}

	cacheKey := provider + ":" + subject
	if cached, ok := s.cache.Load(cacheKey); ok {
		if userID, ok := cached.(string); ok {
			return userID, nil
		}
	}

	var profile Profile
	err := s.db.WithContext(ctx).
		Where("provider = ? AND subject = ?", provider, subject).
		First(&profile).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		profile = Profile{
			UserID:      subject,
			Provider:    provider,
			Subject:     subject,
			Email:       normalize(claims.Email),
			DisplayName: normalize(claims.DisplayName),
			AvatarURL:   normalize(claims.AvatarURL),
			BeltRank:    string(themes.BeltWhite),
			LastSeenAt:  s.now(),
		}
		if err := s.db.WithContext(ctx).Create(&profile).Error; err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	} else {
		updates := map[string]interface{}{"last_seen_at": s.now()}
		if email := normalize(claims.Email); email != "" && email != profile.Email {
			updates["email"] = email
		}
		if display := normalize(claims.DisplayName); display != "" && display != profile.DisplayName {
			updates["display_name"] = display
		}
		if avatar := normalize(claims.AvatarURL); avatar != "" && avatar != profile.AvatarURL {
			updates["avatar_url"] = avatar
		}
		_ = s.db.WithContext(ctx).Model(&Profile{}).
			Where("provider = ? AND subject = ?", provider, subject).
			Updates(updates).
			Error
	}

	s.cache.Store(cacheKey, profile.UserID)
	return profile.UserID, nil
}

// GetProfile fetches the profile for a canonical user id.
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	if normalize(userID) == "" {
		return nil, ErrInvalidIdentity
	}
	var profile Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// SetBeltRank updates the user's belt rank.
func (s *Service) SetBeltRank(ctx context.Context, userID string, rank themes.BeltRank) error {
	if !rank.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidBeltRank, rank)
	}
	result := s.db.WithContext(ctx).Model(&Profile{}).
		Where("user_id = ?", userID).
		Update("belt_rank", string(rank))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}
