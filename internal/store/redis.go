package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"campusattend/internal/model"
)

// Redis wraps the redis client used for cohort candidate-set caching.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

func cohortKey(department string, year int, division string) string {
	return fmt.Sprintf("cohort:%s:%d:%s", department, year, division)
}

// GetCohortCandidates returns the cached candidate set for a cohort, or
// (nil, false) on a miss. Cache failures are treated as misses.
func (r *Redis) GetCohortCandidates(ctx context.Context, department string, year int, division string) ([]model.Candidate, bool) {
	if r == nil || r.Client == nil {
		return nil, false
	}
	raw, err := r.Client.Get(ctx, cohortKey(department, year, division)).Bytes()
	if err != nil {
		return nil, false
	}
	var candidates []model.Candidate
	if err := json.Unmarshal(raw, &candidates); err != nil {
		return nil, false
	}
	return candidates, true
}

// SetCohortCandidates caches a cohort's candidate set.
func (r *Redis) SetCohortCandidates(ctx context.Context, department string, year int, division string, candidates []model.Candidate, ttl time.Duration) {
	if r == nil || r.Client == nil {
		return
	}
	raw, err := json.Marshal(candidates)
	if err != nil {
		return
	}
	_ = r.Client.Set(ctx, cohortKey(department, year, division), raw, ttl).Err()
}

// InvalidateCohort drops the cached candidate set after a face template or
// cohort membership change.
func (r *Redis) InvalidateCohort(ctx context.Context, department string, year int, division string) {
	if r == nil || r.Client == nil {
		return
	}
	_ = r.Client.Del(ctx, cohortKey(department, year, division)).Err()
}
