package core

import (
	"context"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// MetricsService keeps gate decision counters in Redis so they survive
// restarts and are shared by every API process.
type MetricsService struct {
	redis RedisClientRaw
}

// NewMetricsService returns nil when no Redis client is configured; a nil
// service records nothing.
func NewMetricsService(client RedisClientRaw) *MetricsService {
	if client == nil {
		return nil
	}
	return &MetricsService{redis: client}
}

// Record increments the counter for a gate decision reason. Failures are
// logged and otherwise ignored so counting never blocks a request.
func (s *MetricsService) Record(ctx context.Context, reason string) {
	if s == nil {
		return
	}
	if err := s.redis.HIncrBy(ctx, gateDecisionsKey, reason, 1).Err(); err != nil {
		log.WithError(err).WithField("reason", reason).Debug("record gate decision failed")
	}
}

// Decisions returns the counters per reason.
func (s *MetricsService) Decisions(ctx context.Context) (map[string]int64, error) {
	out := map[string]int64{}
	if s == nil {
		return out, nil
	}
	raw, err := s.redis.HGetAll(ctx, gateDecisionsKey).Result()
	if err != nil {
		return nil, err
	}
	for reason, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[reason] = n
	}
	return out, nil
}

// Instances lists the API processes with a live heartbeat.
func (s *MetricsService) Instances(ctx context.Context) ([]InstanceHeartbeat, error) {
	if s == nil {
		return []InstanceHeartbeat{}, nil
	}
	return ListHeartbeats(ctx, s.redis)
}

// Ping reports Redis reachability.
func (s *MetricsService) Ping(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.redis.Ping(ctx).Err()
}
