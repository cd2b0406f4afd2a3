package orchestrator

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/dmuraco3/NanoScale/pkg/client"
	"github.com/dmuraco3/NanoScale/pkg/metrics"
	"github.com/dmuraco3/NanoScale/pkg/types"
)

// handleListServers returns every known server with a coarse RAM
// usage percentage, 0 for anything offline or unreachable.
func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	servers, err := s.store.ListServers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list servers")
		return
	}

	items := make([]serverListItem, 0, len(servers))
	for _, server := range servers {
		items = append(items, serverListItem{
			ID:              server.ID,
			Name:            server.Name,
			IPAddress:       server.IPAddress,
			Status:          server.Status,
			RAMUsagePercent: s.ramUsagePercent(ctx, server),
		})
	}

	writeJSON(w, http.StatusOK, items)
}

func (s *Server) ramUsagePercent(ctx context.Context, server *types.Server) uint8 {
	if server.Status != types.ServerStatusOnline {
		return 0
	}

	c := client.New(server.ID, server.SecretKey)
	resp, err := c.Stats(ctx, s.workerHost(server), nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("server_id", server.ID).Msg("failed to collect server stats for list view")
		return 0
	}
	return percentU8(resp.Totals.UsedMemoryBytes, resp.Totals.TotalMemoryBytes)
}

// percentU8 rounds used/total to the nearest whole percent, capped at
// 100 and floored at 0 for a zero total.
func percentU8(used, total uint64) uint8 {
	if total == 0 {
		return 0
	}
	percent := (used*100 + total/2) / total
	if percent > 100 {
		percent = 100
	}
	return uint8(percent)
}

// handleServerStats returns one server's aggregate and per-project
// resource usage, including rates computed against the previous poll.
func (s *Server) handleServerStats(w http.ResponseWriter, r *http.Request) {
	serverID := r.PathValue("id")
	server, err := s.store.GetServer(serverID)
	if err != nil {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}

	projects, err := s.store.ListProjectsByServer(serverID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list projects for server")
		return
	}
	projectIDs := make([]string, len(projects))
	projectNames := make(map[string]string, len(projects))
	for i, project := range projects {
		projectIDs[i] = project.ID
		projectNames[project.ID] = project.Name
	}

	timer := metrics.NewTimer()
	c := client.New(server.ID, server.SecretKey)
	resp, err := c.Stats(r.Context(), s.workerHost(server), projectIDs)
	if err != nil {
		timer.ObserveDurationVec(metrics.WorkerDispatchDuration, "stats", "failed")
		writeError(w, http.StatusBadGateway, "worker stats call failed: "+err.Error())
		return
	}
	timer.ObserveDurationVec(metrics.WorkerDispatchDuration, "stats", "ok")

	now := time.Now()
	samples := make([]projectCounterSample, len(resp.Projects))
	for i, p := range resp.Projects {
		samples[i] = projectCounterSample{
			projectID:                p.ProjectID,
			cpuUsageNsecTotal:        p.CPUUsageNsecTotal,
			networkIngressBytesTotal: p.NetworkIngressBytesTotal,
			networkEgressBytesTotal:  p.NetworkEgressBytesTotal,
		}
	}
	rates := s.stats.computeAndUpdate(serverID, now, resp.Totals.CPUCores, resp.Totals.NetworkRxBytesTotal, resp.Totals.NetworkTxBytesTotal, samples)

	breakdown := make([]projectStatsBreakdownResponse, 0, len(resp.Projects))
	for _, p := range resp.Projects {
		projectRates := rates.projects[p.ProjectID]
		breakdown = append(breakdown, projectStatsBreakdownResponse{
			ProjectID:                 p.ProjectID,
			ProjectName:               projectNames[p.ProjectID],
			CPUUsagePercent:           projectRates.cpuUsagePercent,
			MemoryCurrentBytes:        p.MemoryCurrentBytes,
			DiskUsageBytes:            p.DiskUsageBytes,
			NetworkIngressBytesTotal:  p.NetworkIngressBytesTotal,
			NetworkEgressBytesTotal:   p.NetworkEgressBytesTotal,
			NetworkIngressBytesPerSec: projectRates.networkIngressBytesPerSec,
			NetworkEgressBytesPerSec:  projectRates.networkEgressBytesPerSec,
		})
	}
	sort.Slice(breakdown, func(i, j int) bool { return breakdown[i].ProjectName < breakdown[j].ProjectName })

	writeJSON(w, http.StatusOK, serverStatsResponse{
		ServerID:     serverID,
		SampleUnixMs: now.UnixMilli(),
		Totals: serverTotalsStatsResponse{
			CPUUsagePercent:      resp.Totals.CPUUsagePercent,
			CPUCores:             resp.Totals.CPUCores,
			UsedMemoryBytes:      resp.Totals.UsedMemoryBytes,
			TotalMemoryBytes:     resp.Totals.TotalMemoryBytes,
			UsedDiskBytes:        resp.Totals.UsedDiskBytes,
			TotalDiskBytes:       resp.Totals.TotalDiskBytes,
			NetworkRxBytesTotal:  resp.Totals.NetworkRxBytesTotal,
			NetworkTxBytesTotal:  resp.Totals.NetworkTxBytesTotal,
			NetworkRxBytesPerSec: rates.networkRxBytesPerSec,
			NetworkTxBytesPerSec: rates.networkTxBytesPerSec,
		},
		Projects: breakdown,
	})
}
