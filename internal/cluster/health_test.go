package cluster

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewHealthMonitor verifies that NewHealthMonitor creates a
// properly configured instance.
func TestNewHealthMonitor(t *testing.T) {
	monitor := NewHealthMonitor(5 * time.Second)
	defer monitor.Stop()

	assert.NotNil(t, monitor)
	assert.Equal(t, 5*time.Second, monitor.interval)
	assert.Equal(t, 3, monitor.maxFailures)
	assert.NotNil(t, monitor.servers)
	assert.NotNil(t, monitor.httpClient)
	assert.Len(t, monitor.servers, 0)
}

// TestHealthMonitorStart verifies the probe loop runs and records
// healthy servers.
func TestHealthMonitorStart(t *testing.T) {
	monitor := NewHealthMonitor(100 * time.Millisecond)
	defer monitor.Stop()

	var mu sync.Mutex
	checkCalls := 0
	monitor.SetCheckFunction(func(addr string) error {
		mu.Lock()
		checkCalls++
		mu.Unlock()
		return nil
	})

	serverProvider := func() []ServerInfo {
		return []ServerInfo{
			{ID: "dbs-1", Addr: "http://localhost:8101"},
			{ID: "dbs-2", Addr: "http://localhost:8102"},
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx, serverProvider)

	// Wait for the initial pass plus at least two ticks.
	time.Sleep(350 * time.Millisecond)

	mu.Lock()
	calls := checkCalls
	mu.Unlock()
	assert.GreaterOrEqual(t, calls, 6, "Expected at least 3 probe rounds over 2 servers")

	assert.True(t, monitor.IsHealthy("dbs-1"))
	assert.True(t, monitor.IsHealthy("dbs-2"))
}

// TestHealthMonitorUnhealthyTransition verifies a server turns
// unhealthy only after maxFailures consecutive failed probes, and that
// the callback fires exactly once per transition.
func TestHealthMonitorUnhealthyTransition(t *testing.T) {
	monitor := NewHealthMonitor(time.Hour) // ticks driven manually
	defer monitor.Stop()

	monitor.SetCheckFunction(func(addr string) error {
		return fmt.Errorf("connection refused")
	})

	var mu sync.Mutex
	var transitions []ServerID
	monitor.SetOnUnhealthy(func(id ServerID) {
		mu.Lock()
		transitions = append(transitions, id)
		mu.Unlock()
	})

	server := ServerInfo{ID: "dbs-1", Addr: "http://localhost:8101"}

	// Two failures: still not unhealthy.
	monitor.checkServer(server)
	monitor.checkServer(server)
	health := monitor.GetServerHealth("dbs-1")
	require.NotNil(t, health)
	assert.Equal(t, 2, health.ConsecutiveFails)
	assert.NotEqual(t, "unhealthy", health.Status)
	assert.False(t, monitor.IsHealthy("dbs-1"))

	// Third failure crosses the threshold.
	monitor.checkServer(server)
	health = monitor.GetServerHealth("dbs-1")
	assert.Equal(t, "unhealthy", health.Status)

	// A fourth failure must not fire the callback again.
	monitor.checkServer(server)

	// The callback runs on its own goroutine.
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) == 1 && transitions[0] == "dbs-1"
	}, time.Second, 10*time.Millisecond)
}

// TestHealthMonitorRecovery verifies a single successful probe resets
// the failure count and status.
func TestHealthMonitorRecovery(t *testing.T) {
	monitor := NewHealthMonitor(time.Hour)
	defer monitor.Stop()

	healthy := false
	monitor.SetCheckFunction(func(addr string) error {
		if healthy {
			return nil
		}
		return fmt.Errorf("connection refused")
	})

	server := ServerInfo{ID: "dbs-1", Addr: "http://localhost:8101"}
	for i := 0; i < 3; i++ {
		monitor.checkServer(server)
	}
	require.Equal(t, "unhealthy", monitor.GetServerHealth("dbs-1").Status)

	healthy = true
	monitor.checkServer(server)

	health := monitor.GetServerHealth("dbs-1")
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 0, health.ConsecutiveFails)
	assert.True(t, monitor.IsHealthy("dbs-1"))
}

// TestHealthMonitorDroppedServer verifies servers that leave the
// directory stop being monitored.
func TestHealthMonitorDroppedServer(t *testing.T) {
	monitor := NewHealthMonitor(time.Hour)
	defer monitor.Stop()
	monitor.SetCheckFunction(func(addr string) error { return nil })

	monitor.checkAllServers([]ServerInfo{
		{ID: "dbs-1", Addr: "a"},
		{ID: "dbs-2", Addr: "b"},
	})
	assert.Len(t, monitor.GetAllServerHealth(), 2)

	monitor.checkAllServers([]ServerInfo{
		{ID: "dbs-1", Addr: "a"},
	})
	all := monitor.GetAllServerHealth()
	assert.Len(t, all, 1)
	assert.Contains(t, all, ServerID("dbs-1"))
	assert.Nil(t, monitor.GetServerHealth("dbs-2"))
}

// TestHealthMonitorCopies verifies returned records are copies.
func TestHealthMonitorCopies(t *testing.T) {
	monitor := NewHealthMonitor(time.Hour)
	defer monitor.Stop()
	monitor.SetCheckFunction(func(addr string) error { return nil })

	monitor.checkServer(ServerInfo{ID: "dbs-1", Addr: "a"})

	copy1 := monitor.GetServerHealth("dbs-1")
	require.NotNil(t, copy1)
	copy1.Status = "mutated"

	copy2 := monitor.GetServerHealth("dbs-1")
	assert.Equal(t, "healthy", copy2.Status, "Mutating a returned record must not affect the monitor")
}
