package core

import (
	"context"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemStatus is the aggregate served by GET /status.
type SystemStatus struct {
	Store struct {
		Backend   string `json:"backend"`
		Reachable bool   `json:"reachable"`
	} `json:"store"`
	Redis struct {
		Enabled   bool `json:"enabled"`
		Reachable bool `json:"reachable"`
	} `json:"redis"`
	GateDecisions map[string]int64 `json:"gate_decisions"`
	Memory        struct {
		UsedBytes  uint64 `json:"used_bytes"`
		TotalBytes uint64 `json:"total_bytes"`
	} `json:"memory"`
	UptimeSeconds     int64               `json:"uptime_seconds"`
	HostUptimeSeconds uint64              `json:"host_uptime_seconds"`
	Instance          *InstanceHeartbeat  `json:"instance,omitempty"`
	Instances         []InstanceHeartbeat `json:"instances"`
}

// CollectSystemStatus gathers the current status. Every probe is
// best-effort; a failing probe leaves its fields zero.
func CollectSystemStatus(ctx context.Context, store *Store, metrics *MetricsService, instance *InstanceState) SystemStatus {
	var st SystemStatus

	if store != nil {
		st.Store.Backend = store.Backend
		st.Store.Reachable = store.Ping(ctx) == nil
	}

	st.Redis.Enabled = metrics != nil
	if metrics != nil {
		st.Redis.Reachable = metrics.Ping(ctx) == nil
	}
	if decisions, err := metrics.Decisions(ctx); err == nil {
		st.GateDecisions = decisions
	} else {
		st.GateDecisions = map[string]int64{}
	}
	if instances, err := metrics.Instances(ctx); err == nil {
		st.Instances = instances
	} else {
		st.Instances = []InstanceHeartbeat{}
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		st.Memory.UsedBytes = vm.Used
		st.Memory.TotalBytes = vm.Total
	}
	if up, err := host.UptimeWithContext(ctx); err == nil {
		st.HostUptimeSeconds = up
	}

	if instance != nil {
		hb := instance.Snapshot()
		st.Instance = &hb
		st.UptimeSeconds = hb.UptimeSeconds
	}
	return st
}
