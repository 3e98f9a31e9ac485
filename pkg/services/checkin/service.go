package checkin

import (
	"context"
	"time"

	"github.com/rmolina/gamebind/internal/config"
	ledgerSvc "github.com/rmolina/gamebind/pkg/services/ledger"
)

// dateFormat is the calendar-day granularity check-ins are tracked at
const dateFormat = "2006-01-02"

// Result describes the outcome of a successful daily check-in
type Result struct {
	Reward       int64
	StreakLength int
	Balance      int64
}

// Service handles daily check-in business logic. It computes the streak and
// reward from the account snapshot and hands the ledger a single atomic
// mutation: streak fields and reward credit land in one account save.
type Service struct {
	ledger  *ledgerSvc.Service
	rewards config.RewardConfig
}

// NewService creates a new check-in service
func NewService(ledger *ledgerSvc.Service, rewards config.RewardConfig) *Service {
	return &Service{
		ledger:  ledger,
		rewards: rewards,
	}
}

// Checkin records a daily check-in for an identity. At most one check-in
// succeeds per identity per calendar day; the ledger re-checks the date
// under the identity lock, so a concurrent duplicate fails with
// AlreadyCheckedIn rather than double-crediting.
func (s *Service) Checkin(ctx context.Context, identity string, today time.Time) (*Result, error) {
	todayStr := today.Format(dateFormat)
	yesterdayStr := today.AddDate(0, 0, -1).Format(dateFormat)

	account, err := s.ledger.GetAccount(ctx, identity)
	if err != nil {
		return nil, err
	}

	// Streak continues only when yesterday was the last check-in; anything
	// else (first check-in, skipped day) resets to 1
	streak := 1
	if account != nil && account.LastCheckinDate == yesterdayStr {
		streak = account.StreakLength + 1
	}

	reward := s.rewardFor(streak)

	updated, err := s.ledger.RecordCheckin(ctx, identity, todayStr, streak, reward)
	if err != nil {
		return nil, err
	}

	return &Result{
		Reward:       reward,
		StreakLength: updated.StreakLength,
		Balance:      updated.Balance,
	}, nil
}

// rewardFor computes the reward for a streak length: milestone days pay a
// fixed amount, every other day pays the streak length capped at RewardCap
func (s *Service) rewardFor(streak int) int64 {
	if reward, ok := s.rewards.Milestones[streak]; ok {
		return reward
	}
	reward := int64(streak)
	if reward > s.rewards.RewardCap {
		reward = s.rewards.RewardCap
	}
	return reward
}

// Streak returns the current streak for an identity without checking in
func (s *Service) Streak(ctx context.Context, identity string) (int, error) {
	account, err := s.ledger.GetAccount(ctx, identity)
	if err != nil {
		return 0, err
	}
	if account == nil {
		return 0, nil
	}
	return account.StreakLength, nil
}
