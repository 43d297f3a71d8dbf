package cluster

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/perchdb/perch/internal/log"
)

// ServerHealth tracks the probe status of a single database server.
// Protected by the monitor's mutex when accessed.
type ServerHealth struct {
	LastCheck        time.Time // Timestamp of the last probe attempt
	LastHealthy      time.Time // Timestamp of the last successful probe
	ServerID         ServerID  // Server being probed
	Status           string    // "healthy", "unhealthy", "unknown"
	ConsecutiveFails int       // Consecutive failed probes
}

// HealthMonitor periodically probes the /health endpoint of every
// registered server and tracks per-server status.
//
// The monitor is observational. It never rewrites shard leadership and
// never touches a pinned ShardServerMap; an unhealthy server shows up
// as a deployment failure in whatever attempt addresses it, and as an
// onUnhealthy callback here. All methods are safe for concurrent use.
type HealthMonitor struct {
	servers     map[ServerID]*ServerHealth
	httpClient  *http.Client
	checkFunc   func(addr string) error
	onUnhealthy func(id ServerID)
	ctx         context.Context
	cancel      context.CancelFunc
	interval    time.Duration
	mu          sync.RWMutex
	wg          sync.WaitGroup
	maxFailures int
}

// NewHealthMonitor creates a monitor that probes every interval and
// marks a server unhealthy after 3 consecutive failures.
func NewHealthMonitor(interval time.Duration) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &HealthMonitor{
		interval:    interval,
		maxFailures: 3,
		servers:     make(map[ServerID]*ServerHealth),
		httpClient: &http.Client{
			Timeout: 2 * time.Second,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetOnUnhealthy registers a callback invoked once per transition into
// the unhealthy state.
func (h *HealthMonitor) SetOnUnhealthy(callback func(id ServerID)) {
	h.onUnhealthy = callback
}

// Start runs the probe loop in the current goroutine until the context
// is canceled or Stop is called. serverProvider returns the servers to
// probe on each tick, so registrations made after Start are picked up.
func (h *HealthMonitor) Start(ctx context.Context, serverProvider func() []ServerInfo) {
	h.wg.Add(1)
	defer h.wg.Done()

	if ctx == nil {
		ctx = h.ctx
	}
	if h.checkFunc == nil {
		h.checkFunc = h.defaultHealthCheck
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	log.Info("health monitor started", zap.Duration("interval", h.interval))

	h.checkAllServers(serverProvider())

	for {
		select {
		case <-ticker.C:
			h.checkAllServers(serverProvider())
		case <-ctx.Done():
			log.Info("health monitor stopping")
			return
		case <-h.ctx.Done():
			log.Info("health monitor stopping")
			return
		}
	}
}

// Stop cancels the probe loop and waits for it to finish.
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
}

func (h *HealthMonitor) checkAllServers(servers []ServerInfo) {
	current := make(map[ServerID]bool)

	for _, s := range servers {
		current[s.ID] = true
		h.checkServer(s)
	}

	// Drop servers that left the directory.
	h.mu.Lock()
	for id := range h.servers {
		if !current[id] {
			delete(h.servers, id)
			log.Info("server removed from health monitoring", zap.String("server", string(id)))
		}
	}
	h.mu.Unlock()
}

func (h *HealthMonitor) checkServer(server ServerInfo) {
	h.mu.Lock()
	health, exists := h.servers[server.ID]
	if !exists {
		health = &ServerHealth{
			ServerID:    server.ID,
			Status:      "unknown",
			LastCheck:   time.Now(),
			LastHealthy: time.Now(),
		}
		h.servers[server.ID] = health
	}
	h.mu.Unlock()

	err := h.checkFunc(server.Addr)

	h.mu.Lock()
	defer h.mu.Unlock()

	health.LastCheck = time.Now()

	if err != nil {
		health.ConsecutiveFails++
		log.Warn("health probe failed",
			zap.String("server", string(server.ID)),
			zap.Int("fails", health.ConsecutiveFails),
			zap.Int("threshold", h.maxFailures),
			zap.Error(err))

		if health.ConsecutiveFails >= h.maxFailures {
			previous := health.Status
			health.Status = "unhealthy"

			if previous != "unhealthy" && h.onUnhealthy != nil {
				log.Warn("server marked unhealthy",
					zap.String("server", string(server.ID)),
					zap.Int("fails", health.ConsecutiveFails))
				// Callback runs without the lock held.
				go h.onUnhealthy(server.ID)
			}
		}
		return
	}

	if health.Status == "unhealthy" {
		log.Info("server recovered", zap.String("server", string(server.ID)))
	}
	health.Status = "healthy"
	health.ConsecutiveFails = 0
	health.LastHealthy = time.Now()
}

func (h *HealthMonitor) defaultHealthCheck(addr string) error {
	url := addr
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		url = "http://" + addr
	}
	if !strings.HasSuffix(url, "/health") {
		url = strings.TrimRight(url, "/") + "/health"
	}

	resp, err := h.httpClient.Get(url)
	if err != nil {
		return errors.Wrap(err, "health probe request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("health probe returned status %d", resp.StatusCode)
	}
	return nil
}

// GetServerHealth returns a copy of one server's probe record, or nil
// if the server is not monitored.
func (h *HealthMonitor) GetServerHealth(id ServerID) *ServerHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.servers[id]
	if !exists {
		return nil
	}
	cp := *health
	return &cp
}

// GetAllServerHealth returns copies of every probe record keyed by
// server ID.
func (h *HealthMonitor) GetAllServerHealth() map[ServerID]*ServerHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[ServerID]*ServerHealth, len(h.servers))
	for id, health := range h.servers {
		cp := *health
		result[id] = &cp
	}
	return result
}

// IsHealthy reports whether a server's latest probes passed. Unknown
// servers report false.
func (h *HealthMonitor) IsHealthy(id ServerID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.servers[id]
	if !exists {
		return false
	}
	return health.Status == "healthy"
}

// SetCheckFunction overrides the default HTTP probe, for tests and
// custom deployments.
func (h *HealthMonitor) SetCheckFunction(checkFunc func(addr string) error) {
	h.checkFunc = checkFunc
}
