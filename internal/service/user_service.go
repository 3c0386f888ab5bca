package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/social-go-api/internal/dto"
	"github.com/noah-isme/social-go-api/internal/models"
	"github.com/noah-isme/social-go-api/internal/observability"
	"github.com/noah-isme/social-go-api/internal/repository"
)

const defaultUserCacheTTL = 5 * time.Minute

// UserService exposes the user directory and caches resolved snapshots in Redis.
type UserService interface {
	UserDirectory
	Get(ctx context.Context, userID string) (dto.UserResponse, error)
	Search(ctx context.Context, query dto.UserSearchQuery) ([]dto.UserResponse, error)
	UpsertProfile(ctx context.Context, userID string, payload dto.UserProfileRequest) (dto.UserResponse, error)
	UpdateStatus(ctx context.Context, userID string, online bool) (dto.UserResponse, error)
}

type userService struct {
	repo      repository.UserRepository
	cache     *redis.Client
	cacheTTL  time.Duration
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	now       func() time.Time
}

// NewUserService constructs the directory service. A nil cache disables caching.
func NewUserService(repo repository.UserRepository, cache *redis.Client, ttl time.Duration, validate *validator.Validate, logger zerolog.Logger) UserService {
	if ttl <= 0 {
		ttl = defaultUserCacheTTL
	}
	return &userService{
		repo:      repo,
		cache:     cache,
		cacheTTL:  ttl,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "user_service").Logger(),
		now:       time.Now,
	}
}

func snapshotCacheKey(userID string) string {
	return fmt.Sprintf("users:snapshot:%s", userID)
}

func (s *userService) Snapshot(ctx context.Context, userID string) (models.UserSnapshot, error) {
	if strings.TrimSpace(userID) == "" {
		return models.UserSnapshot{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}

	cacheKey := snapshotCacheKey(userID)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var snapshot models.UserSnapshot
			if unmarshalErr := json.Unmarshal([]byte(cached), &snapshot); unmarshalErr == nil {
				observability.UserCacheLookups().WithLabelValues("hit").Inc()
				return snapshot, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read user snapshot cache")
		}
		observability.UserCacheLookups().WithLabelValues("miss").Inc()
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return models.UserSnapshot{}, mapRepoError(err)
	}

	snapshot := user.Snapshot()
	s.store(ctx, snapshot)
	return snapshot, nil
}

func (s *userService) store(ctx context.Context, snapshot models.UserSnapshot) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, snapshotCacheKey(snapshot.ID), payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store user snapshot cache")
	}
}

func (s *userService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, snapshotCacheKey(userID)).Err(); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to invalidate user snapshot cache")
	}
}

func (s *userService) Get(ctx context.Context, userID string) (dto.UserResponse, error) {
	snapshot, err := s.Snapshot(ctx, userID)
	if err != nil {
		return dto.UserResponse{}, err
	}
	return dto.NewUserResponse(snapshot), nil
}

func (s *userService) Search(ctx context.Context, query dto.UserSearchQuery) ([]dto.UserResponse, error) {
	query.Query = strings.TrimSpace(query.Query)
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}

	users, err := s.repo.Search(ctx, query.Query, query.Limit)
	if err != nil {
		return nil, err
	}
	return dto.NewUserResponseSlice(users), nil
}

func (s *userService) UpsertProfile(ctx context.Context, userID string, payload dto.UserProfileRequest) (dto.UserResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return dto.UserResponse{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.UserResponse{}, err
	}

	user := models.User{
		ID:          userID,
		FirstName:   sanitizeText(s.sanitizer, payload.FirstName),
		LastName:    sanitizeText(s.sanitizer, payload.LastName),
		Email:       strings.ToLower(strings.TrimSpace(payload.Email)),
		PicturePath: strings.TrimSpace(payload.PicturePath),
		Location:    sanitizeText(s.sanitizer, payload.Location),
		Occupation:  sanitizeText(s.sanitizer, payload.Occupation),
	}
	if payload.SocialProfiles != nil {
		user.SocialProfiles = datatypes.JSONMap(payload.SocialProfiles)
	}
	if user.FirstName == "" || user.LastName == "" {
		return dto.UserResponse{}, fmt.Errorf("%w: first and last name are required", ErrValidation)
	}

	if err := s.repo.Upsert(ctx, &user); err != nil {
		return dto.UserResponse{}, err
	}
	s.invalidate(ctx, userID)

	return s.Get(ctx, userID)
}

func (s *userService) UpdateStatus(ctx context.Context, userID string, online bool) (dto.UserResponse, error) {
	user, err := s.repo.UpdateStatus(ctx, userID, online, s.now().UTC())
	if err != nil {
		return dto.UserResponse{}, mapRepoError(err)
	}
	s.invalidate(ctx, userID)

	s.logger.Debug().Str("user_id", userID).Bool("online", online).Msg("user status updated")
	return dto.NewUserResponse(user.Snapshot()), nil
}
