package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"
)

const (
	InstanceHeartbeatPrefix = "emoji:instance:"
	InstanceHeartbeatTTL    = 45 * time.Second

	heartbeatInterval = 5 * time.Second
)

// InstanceHeartbeatKey returns the Redis key for an API instance.
func InstanceHeartbeatKey(id string) string {
	return InstanceHeartbeatPrefix + id
}

// NewInstanceID builds an identifier from hostname, pid and a random suffix.
func NewInstanceID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "api"
	}
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), uuid.NewString()[:8])
}

// InstanceHeartbeat is what every API process publishes to Redis.
type InstanceHeartbeat struct {
	InstanceID     string    `json:"instance_id"`
	Hostname       string    `json:"hostname"`
	PID            int       `json:"pid"`
	Backend        string    `json:"backend"`
	UptimeSeconds  int64     `json:"uptime_seconds"`
	InFlight       int       `json:"in_flight"`
	ServedTotal    int64     `json:"served_total"`
	FailedTotal    int64     `json:"failed_total"`
	MemoryRSSBytes uint64    `json:"memory_rss_bytes"`
	NumGoroutine   int       `json:"num_goroutine"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UpdateRuntimeStats refreshes memory and goroutine figures.
func (h *InstanceHeartbeat) UpdateRuntimeStats() {
	h.NumGoroutine = runtime.NumGoroutine()
	if p, err := process.NewProcess(int32(h.PID)); err == nil {
		if mi, err := p.MemoryInfo(); err == nil {
			h.MemoryRSSBytes = mi.RSS
			return
		}
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	h.MemoryRSSBytes = ms.Sys
}

// SaveHeartbeat stores the heartbeat JSON with a TTL.
func SaveHeartbeat(ctx context.Context, client RedisClientRaw, hb InstanceHeartbeat) error {
	hb.UpdatedAt = time.Now()
	data, err := json.Marshal(hb)
	if err != nil {
		return err
	}
	return client.Set(ctx, InstanceHeartbeatKey(hb.InstanceID), data, InstanceHeartbeatTTL).Err()
}

// ListHeartbeats returns every heartbeat that has not expired, ordered by id.
func ListHeartbeats(ctx context.Context, client RedisClientRaw) ([]InstanceHeartbeat, error) {
	keys, err := client.Keys(ctx, InstanceHeartbeatPrefix+"*").Result()
	if err != nil {
		return nil, err
	}
	out := []InstanceHeartbeat{}
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue // expired between KEYS and MGET
		}
		var hb InstanceHeartbeat
		if err := json.Unmarshal([]byte(s), &hb); err != nil {
			continue
		}
		out = append(out, hb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceID < out[j].InstanceID })
	return out, nil
}

// InstanceState aggregates request counters for this process.
type InstanceState struct {
	mu sync.Mutex
	hb InstanceHeartbeat
}

func NewInstanceState(instanceID, backend string) *InstanceState {
	hostname, _ := os.Hostname()
	now := time.Now()
	return &InstanceState{hb: InstanceHeartbeat{
		InstanceID: instanceID,
		Hostname:   hostname,
		PID:        os.Getpid(),
		Backend:    backend,
		StartedAt:  now,
		UpdatedAt:  now,
	}}
}

// Track is a middleware counting in-flight, served and failed requests.
func (s *InstanceState) Track() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		s.hb.InFlight++
		s.mu.Unlock()

		c.Next()

		s.mu.Lock()
		s.hb.InFlight--
		s.hb.ServedTotal++
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.hb.FailedTotal++
		}
		s.mu.Unlock()
	}
}

// Snapshot returns the current heartbeat of this process.
func (s *InstanceState) Snapshot() InstanceHeartbeat {
	s.mu.Lock()
	hb := s.hb
	s.mu.Unlock()
	hb.UptimeSeconds = int64(time.Since(hb.StartedAt).Seconds())
	hb.UpdateRuntimeStats()
	hb.UpdatedAt = time.Now()
	return hb
}

// Start publishes the heartbeat until ctx is done.
func (s *InstanceState) Start(ctx context.Context, client RedisClientRaw) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	s.flush(ctx, client)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush(ctx, client)
		}
	}
}

func (s *InstanceState) flush(ctx context.Context, client RedisClientRaw) {
	if err := SaveHeartbeat(ctx, client, s.Snapshot()); err != nil {
		log.WithError(err).Debug("publish heartbeat failed")
	}
}
