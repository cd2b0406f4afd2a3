package idle

import (
	"testing"

	"github.com/dmuraco3/NanoScale/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchAddsAndReplaces(t *testing.T) {
	m := NewMonitor(nil)

	m.Watch(types.MonitoredProject{ServiceName: "nanoscale-a.service", Port: 3100, ScaleToZero: true})
	require.Len(t, m.watched, 1)

	m.Watch(types.MonitoredProject{ServiceName: "nanoscale-b.service", Port: 3101, ScaleToZero: false})
	require.Len(t, m.watched, 2)

	m.Watch(types.MonitoredProject{ServiceName: "nanoscale-a.service", Port: 3100, ScaleToZero: false})
	require.Len(t, m.watched, 2)
	assert.False(t, m.watched[0].ScaleToZero, "expected re-Watch of the same service to replace, not duplicate")
}

func TestUnwatchRemovesEntryAndTrafficState(t *testing.T) {
	m := NewMonitor(nil)
	m.Watch(types.MonitoredProject{ServiceName: "nanoscale-a.service", Port: 3100, ScaleToZero: true})
	m.traffic["nanoscale-a.service"] = types.TrafficState{LastConnectionCount: 5}

	m.Unwatch("nanoscale-a.service")

	assert.Len(t, m.watched, 0)
	_, ok := m.traffic["nanoscale-a.service"]
	assert.False(t, ok)
}

func TestUnwatchUnknownServiceIsANoop(t *testing.T) {
	m := NewMonitor(nil)
	m.Watch(types.MonitoredProject{ServiceName: "nanoscale-a.service", Port: 3100, ScaleToZero: true})

	m.Unwatch("nanoscale-does-not-exist.service")

	assert.Len(t, m.watched, 1)
}
