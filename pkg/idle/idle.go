// Package idle implements the scale-to-zero controller: a ticker loop
// that stops services nginx and the socket unit can wake back up on
// the next inbound connection, once they've sat idle long enough.
package idle

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmuraco3/NanoScale/pkg/gate"
	"github.com/dmuraco3/NanoScale/pkg/log"
	"github.com/dmuraco3/NanoScale/pkg/metrics"
	"github.com/dmuraco3/NanoScale/pkg/types"
	"github.com/rs/zerolog"
)

const (
	tickInterval    = 60 * time.Second
	idleThreshold   = 15 * time.Minute
	uptimeStatePath = "/proc/uptime"
)

// Monitor watches the set of scale-to-zero projects and stops any
// whose socket hasn't seen a new connection in idleThreshold.
type Monitor struct {
	gate   *gate.Gate
	logger zerolog.Logger

	mu      sync.RWMutex
	watched []types.MonitoredProject
	traffic map[string]types.TrafficState

	stopCh chan struct{}
}

// NewMonitor returns a Monitor backed by g.
func NewMonitor(g *gate.Gate) *Monitor {
	return &Monitor{
		gate:    g,
		logger:  log.WithComponent("idle"),
		traffic: make(map[string]types.TrafficState),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the tick loop in a goroutine.
func (m *Monitor) Start() {
	go m.run()
}

// Stop ends the tick loop.
func (m *Monitor) Stop() {
	close(m.stopCh)
}

// Watch adds or replaces the watch entry for a project. Called once a
// deployment pipeline succeeds.
func (m *Monitor) Watch(project types.MonitoredProject) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.watched {
		if existing.ServiceName == project.ServiceName {
			m.watched[i] = project
			return
		}
	}
	m.watched = append(m.watched, project)
}

// Unwatch removes a project from the watched set. Called on teardown.
func (m *Monitor) Unwatch(serviceName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.watched {
		if existing.ServiceName == serviceName {
			m.watched = append(m.watched[:i], m.watched[i+1:]...)
			break
		}
	}
	delete(m.traffic, serviceName)
}

func (m *Monitor) run() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	m.logger.Info().Msg("idle monitor started")

	for {
		select {
		case <-ticker.C:
			m.tick(context.Background())
		case <-m.stopCh:
			m.logger.Info().Msg("idle monitor stopped")
			return
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.IdleMonitorTickDuration)

	m.mu.RLock()
	snapshot := make([]types.MonitoredProject, len(m.watched))
	copy(snapshot, m.watched)
	m.mu.RUnlock()

	for _, project := range snapshot {
		if !project.ScaleToZero {
			continue
		}
		if err := m.evaluate(ctx, project); err != nil {
			m.logger.Error().Err(err).Str("service", project.ServiceName).Msg("idle evaluation failed")
		}
	}
}

func (m *Monitor) evaluate(ctx context.Context, project types.MonitoredProject) error {
	active, err := m.isActive(ctx, project.ServiceName)
	if err != nil {
		return fmt.Errorf("active state query failed: %w", err)
	}
	if !active {
		return nil
	}

	uptime, err := systemUptimeSeconds()
	if err != nil {
		return fmt.Errorf("uptime read failed: %w", err)
	}

	connections, err := m.connectionCount(ctx, project.ServiceName)
	if err != nil {
		return fmt.Errorf("connection count query failed: %w", err)
	}

	m.mu.Lock()
	previous, seen := m.traffic[project.ServiceName]
	if !seen || connections != previous.LastConnectionCount {
		m.traffic[project.ServiceName] = types.TrafficState{
			LastConnectionCount:    connections,
			LastActivityUptimeSecs: uptime,
		}
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if uptime-previous.LastActivityUptimeSecs <= int64(idleThreshold.Seconds()) {
		return nil
	}

	m.logger.Info().Str("service", project.ServiceName).Msg("stopping idle service")
	if _, err := m.gate.Run(ctx, gate.Systemctl, []string{"stop", project.ServiceName}); err != nil {
		return fmt.Errorf("stop failed: %w", err)
	}
	metrics.IdleStopsTotal.Inc()
	return nil
}

func (m *Monitor) isActive(ctx context.Context, serviceName string) (bool, error) {
	result, err := m.gate.Run(ctx, gate.Systemctl, []string{"show", "--property=ActiveState", "--value", serviceName})
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(result.Stdout) == "active", nil
}

func (m *Monitor) connectionCount(ctx context.Context, serviceName string) (int64, error) {
	socketUnit := strings.TrimSuffix(serviceName, ".service") + ".socket"
	result, err := m.gate.Run(ctx, gate.Systemctl, []string{"show", "--property=NConnections", "--value", socketUnit})
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(result.Stdout), 10, 64)
}

// systemUptimeSeconds reads /proc/uptime's first field, the whole
// seconds the system has been up, a monotonic counter unaffected by
// wall-clock adjustments.
var systemUptimeSeconds = func() (int64, error) {
	data, err := os.ReadFile(uptimeStatePath)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("unexpected /proc/uptime format")
	}
	whole := strings.SplitN(fields[0], ".", 2)[0]
	return strconv.ParseInt(whole, 10, 64)
}
