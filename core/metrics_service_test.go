package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceCountsDecisions(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	m := NewMetricsService(client)

	m.Record(ctx, ReasonPublic)
	m.Record(ctx, ReasonPublic)
	m.Record(ctx, ReasonNotOwner)

	got, err := m.Decisions(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{ReasonPublic: 2, ReasonNotOwner: 1}, got)
	assert.NoError(t, m.Ping(ctx))
}

func TestNilMetricsService(t *testing.T) {
	ctx := context.Background()
	m := NewMetricsService(nil)
	assert.Nil(t, m)

	m.Record(ctx, ReasonPublic)
	got, err := m.Decisions(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
	instances, err := m.Instances(ctx)
	require.NoError(t, err)
	assert.Empty(t, instances)
	assert.NoError(t, m.Ping(ctx))
}

func TestInstanceHeartbeats(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	m := NewMetricsService(client)

	a := NewInstanceState("b-instance", BackendSQLite)
	b := NewInstanceState("a-instance", BackendPostgres)
	a.flush(ctx, client)
	b.flush(ctx, client)

	got, err := m.Instances(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a-instance", got[0].InstanceID)
	assert.Equal(t, BackendPostgres, got[0].Backend)
	assert.Equal(t, "b-instance", got[1].InstanceID)
	assert.NotZero(t, got[1].NumGoroutine)

	mr.FastForward(InstanceHeartbeatTTL + time.Second)
	got, err = m.Instances(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}
