// Package types holds the data model shared across NanoScale's
// orchestrator and worker roles.
package types

import "time"

// Server is a host known to the orchestrator, either the local row
// created at orchestrator start or a worker that joined the cluster.
type Server struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IPAddress string    `json:"ip_address"`
	Status    string    `json:"status"`
	// SecretKey is the shared HMAC secret for this server's signed
	// internal calls. It is never serialized back over any API; callers
	// that need it read it directly off the struct, not through JSON.
	SecretKey string `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	ServerStatusOnline = "online"
)

// JoinToken is a single-use, short-lived bearer token that authorizes a
// worker to join the cluster.
type JoinToken struct {
	Value     string
	ExpiresAt time.Time
}

// TokenTTL is how long a generated join token remains valid.
const TokenTTL = 10 * time.Minute

// User is an orchestrator operator account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// BaseProjectPort is the lowest port the allocator will assign.
const BaseProjectPort = 3100

// Project is a deployed application pinned to one server.
type Project struct {
	ID              string            `json:"id"`
	ServerID        string            `json:"server_id"`
	Name            string            `json:"name"`
	RepoURL         string            `json:"repo_url"`
	Branch          string            `json:"branch"`
	InstallCommand  string            `json:"install_command"`
	BuildCommand    string            `json:"build_command"`
	StartCommand    string            `json:"start_command"`
	OutputDirectory string            `json:"output_directory"`
	EnvVars         string            `json:"env_vars"` // opaque JSON-encoded object
	Port            int               `json:"port"`
	Domain          string            `json:"domain,omitempty"`
	TLSEmail        string            `json:"tls_email,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// BackendPort is the port the project's service binds; the socket unit
// owns Port itself and forwards to this one.
func (p *Project) BackendPort() int {
	return p.Port + 10000
}

// MonitoredProject is the idle controller's in-memory watch entry.
// Recreated whenever a deployment pipeline succeeds, removed on
// teardown.
type MonitoredProject struct {
	ServiceName  string
	Port         int
	ScaleToZero  bool
}

// TrafficState is the idle monitor's per-service memory of the last
// observed socket connection counter and when it last changed.
type TrafficState struct {
	LastConnectionCount    int64
	LastActivityUptimeSecs int64
}

// RuntimeKind distinguishes how a built project is started.
type RuntimeKind string

const (
	// RuntimeStandaloneSelfContained means the artifact contains a
	// ready-to-exec entrypoint (e.g. a bundled server.js), invoked via a
	// system interpreter.
	RuntimeStandaloneSelfContained RuntimeKind = "standalone"
	// RuntimePackageManagerStart means the project's start command is
	// run through a detected package-manager interpreter.
	RuntimePackageManagerStart RuntimeKind = "package-manager-start"
)

// Runtime is the chosen execution strategy for a built project,
// decided once at build time.
type Runtime struct {
	Kind              RuntimeKind
	InterpreterBinary string // only set for RuntimePackageManagerStart
}

// WorkerDeliveryRequest is the transient, per-request view of a signed
// inter-node call, reconstructed by the signature middleware for the
// downstream handler.
type WorkerDeliveryRequest struct {
	Body      []byte
	Timestamp string
	Signature string
	ServerID  string
}
