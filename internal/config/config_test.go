package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRewardsMissingFileFallsBack(t *testing.T) {
	rewards, err := loadRewards(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultRewards(), rewards)
}

func TestLoadRewardsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewards.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
reward_cap: 5
milestones:
  3: 10
  10: 100
`), 0644))

	rewards, err := loadRewards(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), rewards.RewardCap)
	assert.Equal(t, int64(10), rewards.Milestones[3])
	assert.Equal(t, int64(100), rewards.Milestones[10])
}

func TestLoadRewardsRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewards.yml")
	require.NoError(t, os.WriteFile(path, []byte("reward_cap: 0\n"), 0644))

	_, err := loadRewards(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`
reward_cap: 5
milestones:
  7: -1
`), 0644))

	_, err = loadRewards(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Token:         "token",
		AppID:         "app",
		GameAPIURL:    "http://game.local",
		ExchangeRatio: 10,
		StorageType:   "sqlite",
	}
	assert.NoError(t, cfg.validate())

	missing := *cfg
	missing.Token = ""
	assert.Error(t, missing.validate())

	missing = *cfg
	missing.GameAPIURL = ""
	assert.Error(t, missing.validate())

	missing = *cfg
	missing.ExchangeRatio = 0
	assert.Error(t, missing.validate())

	missing = *cfg
	missing.StorageType = "postgres"
	assert.Error(t, missing.validate(), "postgres storage requires POSTGRES_URL")
}
