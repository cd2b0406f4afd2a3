package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dmuraco3/NanoScale/pkg/client"
	"github.com/dmuraco3/NanoScale/pkg/gate"
	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

const (
	sitesStatsBasePath = "/opt/nanoscale/sites"
	cpuSampleWindow    = 200 * time.Millisecond
)

// collectHostStats gathers the worker's aggregate resource usage plus
// per-project counters for each of projectIDs.
func collectHostStats(ctx context.Context, g *gate.Gate, projectIDs []string) (client.StatsResponse, error) {
	totals, err := collectTotals()
	if err != nil {
		return client.StatsResponse{}, fmt.Errorf("collect totals: %w", err)
	}

	projects := make([]client.ProjectStats, 0, len(projectIDs))
	for _, projectID := range projectIDs {
		counters, err := collectProjectCounters(ctx, g, projectID)
		if err != nil {
			counters = client.ProjectStats{ProjectID: projectID}
		}
		projects = append(projects, counters)
	}

	return client.StatsResponse{Totals: totals, Projects: projects}, nil
}

func collectTotals() (client.StatsTotals, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return client.StatsTotals{}, fmt.Errorf("open procfs: %w", err)
	}

	cpuUsagePercent, cpuCores, err := sampleCPUUsage(fs)
	if err != nil {
		return client.StatsTotals{}, fmt.Errorf("sample cpu: %w", err)
	}

	meminfo, err := fs.Meminfo()
	if err != nil {
		return client.StatsTotals{}, fmt.Errorf("read meminfo: %w", err)
	}
	totalMemoryBytes := derefUint64(meminfo.MemTotal) * 1024
	freeMemoryBytes := derefUint64(meminfo.MemFree) * 1024
	usedMemoryBytes := totalMemoryBytes - freeMemoryBytes

	totalDiskBytes, usedDiskBytes, err := diskUsage(sitesStatsBasePath)
	if err != nil {
		return client.StatsTotals{}, fmt.Errorf("statfs sites directory: %w", err)
	}

	rxBytes, txBytes, err := networkTotals(fs)
	if err != nil {
		return client.StatsTotals{}, fmt.Errorf("read net/dev: %w", err)
	}

	return client.StatsTotals{
		CPUUsagePercent:     cpuUsagePercent,
		CPUCores:            cpuCores,
		UsedMemoryBytes:     usedMemoryBytes,
		TotalMemoryBytes:    totalMemoryBytes,
		UsedDiskBytes:       usedDiskBytes,
		TotalDiskBytes:      totalDiskBytes,
		NetworkRxBytesTotal: rxBytes,
		NetworkTxBytesTotal: txBytes,
	}, nil
}

// sampleCPUUsage takes two /proc/stat snapshots separated by
// cpuSampleWindow and returns the idle-complement percentage observed
// across that window, since a single snapshot only has cumulative
// jiffie counters rather than an instantaneous rate.
func sampleCPUUsage(fs procfs.FS) (float32, int, error) {
	before, err := fs.Stat()
	if err != nil {
		return 0, 0, err
	}
	time.Sleep(cpuSampleWindow)
	after, err := fs.Stat()
	if err != nil {
		return 0, 0, err
	}

	beforeTotal := cpuTotalJiffies(before.CPUTotal)
	afterTotal := cpuTotalJiffies(after.CPUTotal)
	totalDelta := afterTotal - beforeTotal
	idleDelta := after.CPUTotal.Idle - before.CPUTotal.Idle

	var usagePercent float64
	if totalDelta > 0 {
		usagePercent = (1 - idleDelta/totalDelta) * 100
	}

	return float32(usagePercent), len(after.CPU), nil
}

func cpuTotalJiffies(c procfs.CPUStat) float64 {
	return c.User + c.Nice + c.System + c.Idle + c.Iowait + c.IRQ + c.SoftIRQ + c.Steal
}

func diskUsage(path string) (total, used uint64, err error) {
	var statfs unix.Statfs_t
	if err := unix.Statfs(path, &statfs); err != nil {
		return 0, 0, err
	}
	blockSize := uint64(statfs.Bsize)
	total = statfs.Blocks * blockSize
	free := statfs.Bfree * blockSize
	used = total - free
	return total, used, nil
}

func networkTotals(fs procfs.FS) (rx, tx uint64, err error) {
	netDev, err := fs.NetDev()
	if err != nil {
		return 0, 0, err
	}
	for _, iface := range netDev {
		rx += iface.RxBytes
		tx += iface.TxBytes
	}
	return rx, tx, nil
}

func derefUint64(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v
}

// collectProjectCounters reads a project's service resource counters
// through systemd and the on-disk size of its site directory. The
// gate's systemctl validator accepts one --property per call, so each
// property is queried separately rather than in the single multi-flag
// call the properties would otherwise allow.
func collectProjectCounters(ctx context.Context, g *gate.Gate, projectID string) (client.ProjectStats, error) {
	serviceName := fmt.Sprintf("nanoscale-%s.service", projectID)

	mainPID, _ := strconv.Atoi(showProperty(ctx, g, serviceName, "MainPID"))
	cpuUsageNsecTotal, _ := strconv.ParseUint(showProperty(ctx, g, serviceName, "CPUUsageNSec"), 10, 64)
	memoryCurrentBytes, _ := strconv.ParseUint(showProperty(ctx, g, serviceName, "MemoryCurrent"), 10, 64)
	ingressBytes, _ := strconv.ParseUint(showProperty(ctx, g, serviceName, "IPIngressBytes"), 10, 64)
	egressBytes, _ := strconv.ParseUint(showProperty(ctx, g, serviceName, "IPEgressBytes"), 10, 64)

	if memoryCurrentBytes == 0 && mainPID > 0 {
		if proc, err := procfs.NewProc(mainPID); err == nil {
			if status, err := proc.NewStatus(); err == nil {
				memoryCurrentBytes = status.VmRSS
			}
		}
	}

	diskUsageBytes := directorySizeBytes(filepath.Join(sitesStatsBasePath, projectID))

	return client.ProjectStats{
		ProjectID:                projectID,
		CPUUsageNsecTotal:        cpuUsageNsecTotal,
		MemoryCurrentBytes:       memoryCurrentBytes,
		DiskUsageBytes:           diskUsageBytes,
		NetworkIngressBytesTotal: ingressBytes,
		NetworkEgressBytesTotal:  egressBytes,
	}, nil
}

func showProperty(ctx context.Context, g *gate.Gate, unitName, property string) string {
	result, err := g.Run(ctx, gate.Systemctl, []string{"show", "--property=" + property, "--value", unitName})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(result.Stdout)
}

func directorySizeBytes(root string) uint64 {
	if _, err := os.Lstat(root); err != nil {
		return 0
	}

	var total uint64
	stack := []string{root}
	for len(stack) > 0 {
		path := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entryInfo, err := os.Lstat(path)
		if err != nil {
			continue
		}

		if entryInfo.Mode().IsRegular() {
			total += uint64(entryInfo.Size())
			continue
		}

		if entryInfo.IsDir() {
			entries, err := os.ReadDir(path)
			if err != nil {
				continue
			}
			for _, entry := range entries {
				stack = append(stack, filepath.Join(path, entry.Name()))
			}
		}
	}

	return total
}
