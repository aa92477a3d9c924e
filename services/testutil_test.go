package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"cleanup-rewards-system/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fakeTokenService stands in for the external token-transfer service.
type fakeTokenService struct {
	mu            sync.Mutex
	transferCalls int
	failTransfers bool
	lastDest      string
	lastAmount    int64
	balance       int64
	balanceErr    error
}

func (f *fakeTokenService) Transfer(ctx context.Context, destination string, amount int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transferCalls++
	f.lastDest = destination
	f.lastAmount = amount
	if f.failTransfers {
		return "", errors.New("provider rejected transfer")
	}
	return fmt.Sprintf("0xtx-%04d", f.transferCalls), nil
}

func (f *fakeTokenService) Balance(ctx context.Context, wallet string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeTokenService) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transferCalls
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Named in-memory database so every pooled connection sees the same
	// data; one open connection keeps sqlite's write locking out of the
	// concurrency tests (the conditional-write semantics under test are
	// the same either way).
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Location{}, &models.Vote{}, &models.Profile{}))
	return db
}

func newTestServices(t *testing.T) (*LocationService, *VoteService, *RewardService, *fakeTokenService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	tokens := &fakeTokenService{}
	rewards := NewRewardService(db, tokens)
	lifecycle := NewLocationService(db, rewards, DefaultVerifyThreshold)
	votes := NewVoteService(db, lifecycle)
	return lifecycle, votes, rewards, tokens, db
}

func seedLocation(t *testing.T, db *gorm.DB, rewardTokens int64) *models.Location {
	t.Helper()
	loc := &models.Location{
		ID:             uuid.NewString(),
		Name:           "Riverside Park",
		Lat:            23.154149,
		Lng:            72.666893,
		BeforePhotoURL: "https://cdn.example.com/before.jpg",
		RewardTokens:   rewardTokens,
		Status:         models.StatusUnclaimed,
	}
	require.NoError(t, db.Create(loc).Error)
	return loc
}

func seedProfile(t *testing.T, db *gorm.DB, wallet string) *models.Profile {
	t.Helper()
	p := &models.Profile{
		ID:            uuid.NewString(),
		WalletAddress: wallet,
		Username:      "explorer",
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// cleanToVoteable walks a fresh location to the cleaned state so tests can
// vote on it.
func cleanToVoteable(t *testing.T, lifecycle *LocationService, locationID, cleaner string) {
	t.Helper()
	ctx := context.Background()
	_, err := lifecycle.Claim(ctx, locationID, cleaner)
	require.NoError(t, err)
	_, err = lifecycle.SubmitAfterPhoto(ctx, locationID, cleaner, "https://cdn.example.com/after.jpg")
	require.NoError(t, err)
}
