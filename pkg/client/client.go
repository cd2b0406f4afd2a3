// Package client implements the orchestrator's signed HTTP client to a
// worker's internal API. Every call is authenticated the same way the
// worker's pkg/cluster.VerifySignature middleware expects: an
// HMAC-SHA256 signature over body‖timestamp, carried in the
// X-Cluster-Signature, X-Cluster-Timestamp and X-Server-Id headers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dmuraco3/NanoScale/pkg/cluster"
)

// internalAPIPort is the fixed port every worker listens on for
// orchestrator-to-worker calls.
const internalAPIPort = 4000

// CreateProjectRequest is the payload the orchestrator sends a worker
// to provision a project: clone, build, install systemd units and
// ingress configuration.
type CreateProjectRequest struct {
	ProjectID       string `json:"project_id"`
	RepoURL         string `json:"repo_url"`
	Branch          string `json:"branch"`
	InstallCommand  string `json:"install_command"`
	BuildCommand    string `json:"build_command"`
	StartCommand    string `json:"run_command"`
	OutputDirectory string `json:"output_directory"`
	EnvVars         string `json:"env_vars"`
	Port            int    `json:"port"`
	Domain          string `json:"domain,omitempty"`
	TLSEmail        string `json:"tls_email,omitempty"`
}

type portAvailabilityRequest struct {
	Port int `json:"port"`
}

type portAvailabilityResponse struct {
	Available bool `json:"available"`
}

// StatsResponse is a worker's resource usage snapshot: aggregated host
// totals plus one entry per requested project.
type StatsResponse struct {
	Totals   StatsTotals    `json:"totals"`
	Projects []ProjectStats `json:"projects"`
}

// StatsTotals is the worker host's aggregate resource usage.
type StatsTotals struct {
	CPUUsagePercent     float32 `json:"cpu_usage_percent"`
	CPUCores            int     `json:"cpu_cores"`
	UsedMemoryBytes     uint64  `json:"used_memory_bytes"`
	TotalMemoryBytes    uint64  `json:"total_memory_bytes"`
	UsedDiskBytes       uint64  `json:"used_disk_bytes"`
	TotalDiskBytes      uint64  `json:"total_disk_bytes"`
	NetworkRxBytesTotal uint64  `json:"network_rx_bytes_total"`
	NetworkTxBytesTotal uint64  `json:"network_tx_bytes_total"`
}

// ProjectStats is one project's resource usage on its worker.
type ProjectStats struct {
	ProjectID                string `json:"project_id"`
	CPUUsageNsecTotal        uint64 `json:"cpu_usage_nsec_total"`
	MemoryCurrentBytes       uint64 `json:"memory_current_bytes"`
	DiskUsageBytes           uint64 `json:"disk_usage_bytes"`
	NetworkIngressBytesTotal uint64 `json:"network_ingress_bytes_total"`
	NetworkEgressBytesTotal  uint64 `json:"network_egress_bytes_total"`
}

type statsRequest struct {
	ProjectIDs []string `json:"project_ids"`
}

// Client calls a worker's internal API on behalf of the orchestrator,
// signing every request with the shared secret of the server it is.
type Client struct {
	ServerID  string
	SecretKey string
	HTTP      *http.Client
}

// New returns a Client that signs requests as serverID using secretKey,
// the orchestrator's own server identity and HMAC secret.
func New(serverID, secretKey string) *Client {
	return &Client{
		ServerID:  serverID,
		SecretKey: secretKey,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateProject asks the worker at workerHost to provision a project.
func (c *Client) CreateProject(ctx context.Context, workerHost string, req CreateProjectRequest) error {
	_, err := c.do(ctx, http.MethodPost, workerHost, "/internal/projects", req, nil)
	return err
}

// DeleteProject asks the worker at workerHost to tear a project down.
func (c *Client) DeleteProject(ctx context.Context, workerHost, projectID string) error {
	path := fmt.Sprintf("/internal/projects/%s", projectID)
	_, err := c.do(ctx, http.MethodDelete, workerHost, path, nil, nil)
	return err
}

// CheckPortAvailable asks the worker at workerHost whether port is free
// on its host.
func (c *Client) CheckPortAvailable(ctx context.Context, workerHost string, port int) (bool, error) {
	var resp portAvailabilityResponse
	_, err := c.do(ctx, http.MethodPost, workerHost, "/internal/ports/check", portAvailabilityRequest{Port: port}, &resp)
	if err != nil {
		return false, err
	}
	return resp.Available, nil
}

// Stats asks the worker at workerHost for host totals and per-project
// usage for the given project IDs.
func (c *Client) Stats(ctx context.Context, workerHost string, projectIDs []string) (*StatsResponse, error) {
	var resp StatsResponse
	_, err := c.do(ctx, http.MethodPost, workerHost, "/internal/stats", statsRequest{ProjectIDs: projectIDs}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// do marshals payload (nil means an empty body), signs it, sends it to
// the worker's internal API, and unmarshals the response body into out
// if out is non-nil.
func (c *Client) do(ctx context.Context, method, workerHost, path string, payload, out interface{}) ([]byte, error) {
	var body []byte
	var err error
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := cluster.Sign(c.SecretKey, body, timestamp)

	url := fmt.Sprintf("http://%s:%d%s", workerHost, internalAPIPort, path)
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("X-Cluster-Signature", signature)
	httpReq.Header.Set("X-Cluster-Timestamp", timestamp)
	httpReq.Header.Set("X-Server-Id", c.ServerID)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call worker %s: %w", workerHost, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from worker %s: %w", workerHost, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("worker %s returned %d: %s", workerHost, resp.StatusCode, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, fmt.Errorf("decode response from worker %s: %w", workerHost, err)
		}
	}

	return respBody, nil
}
