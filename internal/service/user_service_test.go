package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/social-go-api/internal/dto"
	"github.com/noah-isme/social-go-api/internal/models"
	"github.com/noah-isme/social-go-api/internal/repository"
)

func setupUserService(t *testing.T) (UserService, *gorm.DB, *miniredis.Miniredis) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	svc := NewUserService(repository.NewUserRepository(db), client, time.Minute, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
	return svc, db, mini
}

func TestUserServiceSnapshotUsesCache(t *testing.T) {
	svc, db, mini := setupUserService(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.User{ID: "u1", FirstName: "Iris", LastName: "Vale", Email: "iris@example.com"}).Error)

	snapshot, err := svc.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "Iris", snapshot.FirstName)
	require.True(t, mini.Exists("users:snapshot:u1"))

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", "u1").Update("first_name", "Changed").Error)
	cached, err := svc.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "Iris", cached.FirstName)

	mini.FastForward(2 * time.Minute)
	fresh, err := svc.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "Changed", fresh.FirstName)

	_, err = svc.Snapshot(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUserServiceUpsertInvalidatesCache(t *testing.T) {
	svc, _, mini := setupUserService(t)
	ctx := context.Background()

	created, err := svc.UpsertProfile(ctx, "u2", dto.UserProfileRequest{
		FirstName: "<b>Noor</b>",
		LastName:  "Aziz",
		Email:     "Noor@Example.com",
		Location:  "Cairo",
	})
	require.NoError(t, err)
	require.Equal(t, "Noor", created.FirstName)
	require.Equal(t, "Cairo", created.Location)
	require.True(t, mini.Exists("users:snapshot:u2"))

	updated, err := svc.UpsertProfile(ctx, "u2", dto.UserProfileRequest{
		FirstName: "Noor",
		LastName:  "Aziz-Khan",
		Email:     "noor@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "Aziz-Khan", updated.LastName)

	online, err := svc.UpdateStatus(ctx, "u2", true)
	require.NoError(t, err)
	require.True(t, online.Online)
	require.NotNil(t, online.LastActive)
	require.False(t, mini.Exists("users:snapshot:u2"))

	_, err = svc.UpdateStatus(ctx, "nobody", true)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUserServiceSearch(t *testing.T) {
	svc, db, _ := setupUserService(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&[]models.User{
		{ID: "u1", FirstName: "Maya", LastName: "Stone", Email: "maya@example.com"},
		{ID: "u2", FirstName: "Omar", LastName: "Mayfield", Email: "omar@example.com"},
		{ID: "u3", FirstName: "Lena", LastName: "Park", Email: "lena@example.com"},
	}).Error)

	found, err := svc.Search(ctx, dto.UserSearchQuery{Query: " may "})
	require.NoError(t, err)
	require.Len(t, found, 2)

	_, err = svc.Search(ctx, dto.UserSearchQuery{Query: "m"})
	require.Error(t, err)
}
