package orchestrator

// setupRequest is the body of POST /api/auth/setup.
type setupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginRequest is the body of POST /api/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// authStatusResponse is the body of GET /api/auth/status.
type authStatusResponse struct {
	UsersCount    int  `json:"users_count"`
	Authenticated bool `json:"authenticated"`
}

// generateTokenResponse is the body of POST /api/cluster/generate-token.
type generateTokenResponse struct {
	Token            string `json:"token"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

// joinClusterRequest is the body of POST /api/cluster/join.
type joinClusterRequest struct {
	Token     string `json:"token"`
	IP        string `json:"ip"`
	SecretKey string `json:"secret_key"`
	Name      string `json:"name"`
}

// joinClusterResponse is the body of POST /api/cluster/join.
type joinClusterResponse struct {
	ServerID string `json:"server_id"`
}

// serverListItem is one entry of GET /api/servers.
type serverListItem struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	IPAddress       string `json:"ip_address"`
	Status          string `json:"status"`
	RAMUsagePercent uint8  `json:"ram_usage_percent"`
}

// serverStatsResponse is the body of GET /api/servers/{id}/stats.
type serverStatsResponse struct {
	ServerID     string                         `json:"server_id"`
	SampleUnixMs int64                          `json:"sample_unix_ms"`
	Totals       serverTotalsStatsResponse      `json:"totals"`
	Projects     []projectStatsBreakdownResponse `json:"projects"`
}

type serverTotalsStatsResponse struct {
	CPUUsagePercent       float32 `json:"cpu_usage_percent"`
	CPUCores              int     `json:"cpu_cores"`
	UsedMemoryBytes       uint64  `json:"used_memory_bytes"`
	TotalMemoryBytes      uint64  `json:"total_memory_bytes"`
	UsedDiskBytes         uint64  `json:"used_disk_bytes"`
	TotalDiskBytes        uint64  `json:"total_disk_bytes"`
	NetworkRxBytesTotal   uint64  `json:"network_rx_bytes_total"`
	NetworkTxBytesTotal   uint64  `json:"network_tx_bytes_total"`
	NetworkRxBytesPerSec  float64 `json:"network_rx_bytes_per_sec"`
	NetworkTxBytesPerSec  float64 `json:"network_tx_bytes_per_sec"`
}

type projectStatsBreakdownResponse struct {
	ProjectID                 string  `json:"project_id"`
	ProjectName               string  `json:"project_name"`
	CPUUsagePercent           float64 `json:"cpu_usage_percent"`
	MemoryCurrentBytes        uint64  `json:"memory_current_bytes"`
	DiskUsageBytes            uint64  `json:"disk_usage_bytes"`
	NetworkIngressBytesTotal  uint64  `json:"network_ingress_bytes_total"`
	NetworkEgressBytesTotal   uint64  `json:"network_egress_bytes_total"`
	NetworkIngressBytesPerSec float64 `json:"network_ingress_bytes_per_sec"`
	NetworkEgressBytesPerSec  float64 `json:"network_egress_bytes_per_sec"`
}

// projectEnvVar is one entry of a create-project request's env_vars
// list, the wire form of the opaque JSON object stored on the project
// row and forwarded to the worker.
type projectEnvVar struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// createProjectRequest is the body of POST /api/projects.
type createProjectRequest struct {
	ServerID        string          `json:"server_id"`
	Name            string          `json:"name"`
	RepoURL         string          `json:"repo_url"`
	Branch          string          `json:"branch"`
	BuildCommand    string          `json:"build_command"`
	InstallCommand  string          `json:"install_command"`
	RunCommand      string          `json:"run_command"`
	OutputDirectory string          `json:"output_directory"`
	Port            *int            `json:"port"`
	EnvVars         []projectEnvVar `json:"env_vars"`
}

// createProjectResponse is the body of POST /api/projects.
type createProjectResponse struct {
	ID     string  `json:"id"`
	Domain *string `json:"domain"`
}

// projectListItem is one entry of GET /api/projects.
type projectListItem struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	RepoURL    string  `json:"repo_url"`
	Branch     string  `json:"branch"`
	RunCommand string  `json:"run_command"`
	Port       int     `json:"port"`
	Domain     *string `json:"domain"`
	Status     string  `json:"status"`
	CreatedAt  string  `json:"created_at"`
}

// projectDetailsResponse is the body of GET /api/projects/{id}.
type projectDetailsResponse struct {
	ID             string  `json:"id"`
	ServerID       string  `json:"server_id"`
	ServerName     *string `json:"server_name"`
	Name           string  `json:"name"`
	RepoURL        string  `json:"repo_url"`
	Branch         string  `json:"branch"`
	InstallCommand string  `json:"install_command"`
	BuildCommand   string  `json:"build_command"`
	RunCommand     string  `json:"run_command"`
	Status         string  `json:"status"`
	Port           int     `json:"port"`
	Domain         *string `json:"domain"`
	CreatedAt      string  `json:"created_at"`
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
