package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

type Config struct {
	// Core
	BotToken    string `env:"BOT_TOKEN,required"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Channels
	TaskChannelID string `env:"TASK_CHANNEL_ID,required"`
	VoteChannelID string `env:"VOTE_CHANNEL_ID,required"`

	// Authorization
	AdminIDs    []string `env:"ADMIN_IDS" envSeparator:","`
	ApproverIDs []string `env:"APPROVER_IDS" envSeparator:","`

	// Catalog
	TasksFile string `env:"TASKS_FILE"`

	// Rotation timing
	TaskDuration    time.Duration `env:"TASK_DURATION" envDefault:"168h"`
	BonusDuration   time.Duration `env:"BONUS_TASK_DURATION" envDefault:"168h"`
	VotingWindow    time.Duration `env:"VOTING_WINDOW" envDefault:"1h"`
	TaskStartDelay  time.Duration `env:"TASK_START_DELAY" envDefault:"60s"`
	VotingTaskCount int           `env:"VOTING_TASK_COUNT" envDefault:"3"`

	// Prize draw
	PrizeAmount decimal.Decimal `env:"PRIZE_AMOUNT" envDefault:"5000000"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.VotingTaskCount < 1 || cfg.VotingTaskCount > len(BallotSymbols) {
		return nil, fmt.Errorf("VOTING_TASK_COUNT must be between 1 and %d", len(BallotSymbols))
	}
	return cfg, nil
}

func (c *Config) IsAdmin(userID string) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsApprover reports whether the user may attest completions. Admins always
// may.
func (c *Config) IsApprover(userID string) bool {
	for _, id := range c.ApproverIDs {
		if id == userID {
			return true
		}
	}
	return c.IsAdmin(userID)
}
