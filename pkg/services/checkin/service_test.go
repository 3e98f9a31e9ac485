package checkin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rmolina/gamebind/internal/config"
	"github.com/rmolina/gamebind/internal/types"
	ledgerRepo "github.com/rmolina/gamebind/pkg/repositories/ledger"
	ledgerSvc "github.com/rmolina/gamebind/pkg/services/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() (*Service, *ledgerSvc.Service) {
	ledger := ledgerSvc.NewService(ledgerRepo.NewMemoryRepository())
	return NewService(ledger, config.DefaultRewards()), ledger
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestFirstCheckin(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	result, err := svc.Checkin(ctx, "u1", day("2026-08-28"))
	require.NoError(t, err)

	assert.Equal(t, 1, result.StreakLength)
	assert.Equal(t, int64(1), result.Reward)
	assert.Equal(t, int64(1), result.Balance)
}

func TestSameDayCheckinFails(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Checkin(ctx, "u1", day("2026-08-28"))
	require.NoError(t, err)

	_, err = svc.Checkin(ctx, "u1", day("2026-08-28"))
	assert.True(t, types.IsEngineError(err, types.ErrAlreadyCheckedIn))

	streak, err := svc.Streak(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, streak)
}

func TestConsecutiveDaysGrowStreak(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	days := []string{"2026-08-25", "2026-08-26", "2026-08-27"}
	var last *Result
	for _, d := range days {
		result, err := svc.Checkin(ctx, "u1", day(d))
		require.NoError(t, err)
		last = result
	}

	assert.Equal(t, 3, last.StreakLength)
	assert.Equal(t, int64(3), last.Reward)
	// Rewards: 1 + 2 + 3
	assert.Equal(t, int64(6), last.Balance)
}

func TestSkippedDayResetsStreak(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Checkin(ctx, "u1", day("2026-08-25"))
	require.NoError(t, err)
	_, err = svc.Checkin(ctx, "u1", day("2026-08-26"))
	require.NoError(t, err)

	// 2026-08-27 is skipped
	result, err := svc.Checkin(ctx, "u1", day("2026-08-28"))
	require.NoError(t, err)

	assert.Equal(t, 1, result.StreakLength)
	assert.Equal(t, int64(1), result.Reward)
}

func TestRewardCaps(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	// DefaultRewards caps the per-day reward at 7, with milestone overrides
	// at 7, 14 and 30 days
	start := day("2026-07-01")
	var last *Result
	for n := 0; n < 10; n++ {
		result, err := svc.Checkin(ctx, "u1", start.AddDate(0, 0, n))
		require.NoError(t, err)
		last = result

		switch result.StreakLength {
		case 7:
			assert.Equal(t, int64(20), result.Reward, "day 7 is a milestone")
		case 8, 9, 10:
			assert.Equal(t, int64(7), result.Reward, "past the cap the reward flattens")
		default:
			assert.Equal(t, int64(result.StreakLength), result.Reward)
		}
	}
	assert.Equal(t, 10, last.StreakLength)
}

func TestMilestoneRewards(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	start := day("2026-06-01")
	for n := 0; n < 30; n++ {
		result, err := svc.Checkin(ctx, "u1", start.AddDate(0, 0, n))
		require.NoError(t, err)

		switch result.StreakLength {
		case 7:
			assert.Equal(t, int64(20), result.Reward)
		case 14:
			assert.Equal(t, int64(50), result.Reward)
		case 30:
			assert.Equal(t, int64(120), result.Reward)
		}
	}
}

// Concurrent duplicate check-ins on the same day: exactly one succeeds.
func TestConcurrentSameDayCheckins(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	today := day("2026-08-28")

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for n := 0; n < attempts; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Checkin(ctx, "u1", today)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.True(t, types.IsEngineError(err, types.ErrAlreadyCheckedIn))
		}
	}
	assert.Equal(t, 1, successes)

	streak, err := svc.Streak(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, streak)
}

func TestStreakUnknownIdentityIsZero(t *testing.T) {
	svc, _ := newTestService()

	streak, err := svc.Streak(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, streak)
}
