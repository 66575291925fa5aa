package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/stridehealth/stride/internal/config"
)

const keyStepReport = "steps:report:user:%s"

// StepReportLimiter throttles per-user step reports. A nil limiter (no
// Redis configured) allows everything, so local development works without
// Redis running.
type StepReportLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewStepReportLimiter(cfg config.Config) *StepReportLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" || cfg.StepReportRate <= 0 || cfg.StepReportBurst <= 0 {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
	})
	return &StepReportLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.StepReportRate,
		burst:  cfg.StepReportBurst,
	}
}

func (l *StepReportLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *StepReportLimiter) Allow(ctx context.Context, userID snowflake.ID) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyStepReport, userID.String()), l.rate, l.burst)
}
