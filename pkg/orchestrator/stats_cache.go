package orchestrator

import (
	"sync"
	"time"
)

// statsCache turns the worker's cumulative counters into per-second
// rates by remembering each server's previous sample. The first
// sample for a server always reports zero rates, since there is
// nothing yet to take a delta against.
type statsCache struct {
	mu       sync.Mutex
	byServer map[string]cachedServerSample
}

type cachedServerSample struct {
	at                  time.Time
	networkRxBytesTotal uint64
	networkTxBytesTotal uint64
	projects            map[string]cachedProjectSample
}

type cachedProjectSample struct {
	cpuUsageNsecTotal        uint64
	networkIngressBytesTotal uint64
	networkEgressBytesTotal  uint64
}

// computedRates is one server's network throughput plus each
// requested project's CPU and network throughput, all measured since
// the previous sample.
type computedRates struct {
	networkRxBytesPerSec float64
	networkTxBytesPerSec float64
	projects             map[string]computedProjectRates
}

type computedProjectRates struct {
	cpuUsagePercent           float64
	networkIngressBytesPerSec float64
	networkEgressBytesPerSec  float64
}

// projectCounterSample is one project's cumulative counters as of the
// current poll, keyed by project ID.
type projectCounterSample struct {
	projectID                string
	cpuUsageNsecTotal         uint64
	networkIngressBytesTotal  uint64
	networkEgressBytesTotal   uint64
}

func newStatsCache() *statsCache {
	return &statsCache{byServer: make(map[string]cachedServerSample)}
}

// computeAndUpdate derives rates for serverID from the delta between
// this sample and the last one recorded for it, then stores this
// sample as the new baseline.
func (c *statsCache) computeAndUpdate(serverID string, now time.Time, cpuCores int, networkRxBytesTotal, networkTxBytesTotal uint64, projects []projectCounterSample) computedRates {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous, hasPrevious := c.byServer[serverID]

	var rxPerSec, txPerSec, elapsedSecs float64
	if hasPrevious {
		elapsed := now.Sub(previous.at)
		if elapsed > 0 {
			elapsedSecs = elapsed.Seconds()
			rxPerSec = deltaPerSec(networkRxBytesTotal, previous.networkRxBytesTotal, elapsedSecs)
			txPerSec = deltaPerSec(networkTxBytesTotal, previous.networkTxBytesTotal, elapsedSecs)
		}
	}

	computedProjects := make(map[string]computedProjectRates, len(projects))
	for _, project := range projects {
		rates := computedProjectRates{}
		if hasPrevious && elapsedSecs > 0 {
			if prevProject, ok := previous.projects[project.projectID]; ok {
				cpuDeltaNsec := saturatingSub(project.cpuUsageNsecTotal, prevProject.cpuUsageNsecTotal)
				if cpuCores > 0 {
					denom := elapsedSecs * float64(cpuCores) * 1e9
					if denom > 0 {
						rates.cpuUsagePercent = float64(cpuDeltaNsec) / denom * 100
					}
				}
				rates.networkIngressBytesPerSec = deltaPerSec(project.networkIngressBytesTotal, prevProject.networkIngressBytesTotal, elapsedSecs)
				rates.networkEgressBytesPerSec = deltaPerSec(project.networkEgressBytesTotal, prevProject.networkEgressBytesTotal, elapsedSecs)
			}
		}
		computedProjects[project.projectID] = rates
	}

	nextProjects := make(map[string]cachedProjectSample, len(projects))
	for _, project := range projects {
		nextProjects[project.projectID] = cachedProjectSample{
			cpuUsageNsecTotal:        project.cpuUsageNsecTotal,
			networkIngressBytesTotal: project.networkIngressBytesTotal,
			networkEgressBytesTotal:  project.networkEgressBytesTotal,
		}
	}
	c.byServer[serverID] = cachedServerSample{
		at:                  now,
		networkRxBytesTotal: networkRxBytesTotal,
		networkTxBytesTotal: networkTxBytesTotal,
		projects:            nextProjects,
	}

	return computedRates{
		networkRxBytesPerSec: rxPerSec,
		networkTxBytesPerSec: txPerSec,
		projects:             computedProjects,
	}
}

func deltaPerSec(current, previous uint64, elapsedSecs float64) float64 {
	if elapsedSecs <= 0 {
		return 0
	}
	return float64(saturatingSub(current, previous)) / elapsedSecs
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}
