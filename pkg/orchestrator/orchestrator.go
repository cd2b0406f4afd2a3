// Package orchestrator implements the control-plane HTTP API: operator
// authentication, the cluster join handshake, and the project
// lifecycle (create, list, get, delete, redeploy) that dispatches
// signed work to worker nodes over pkg/client.
package orchestrator

import (
	"encoding/json"
	"net/http"

	"github.com/dmuraco3/NanoScale/pkg/cluster"
	"github.com/dmuraco3/NanoScale/pkg/log"
	"github.com/dmuraco3/NanoScale/pkg/storage"
	"github.com/dmuraco3/NanoScale/pkg/types"
	"github.com/rs/zerolog"
)

// Server is the orchestrator role: the authenticated HTTP API
// operators and joined workers talk to. It never shells out itself —
// every provisioning side effect is dispatched to a worker's internal
// API, including the one collocated on the same host as the
// orchestrator.
type Server struct {
	store      storage.Store
	tokens     *cluster.TokenStore
	stats      *statsCache
	logger     zerolog.Logger

	// localServerID is the server row representing this process's own
	// collocated worker. Dispatches addressed to it use 127.0.0.1 as
	// the worker host instead of a stored IP.
	localServerID string

	// baseDomain is the normalized subdomain suffix from config, or ""
	// if none is configured.
	baseDomain string

	// tlsEmailAddr is the ACME registration email from config, or ""
	// if none is configured.
	tlsEmailAddr string
}

// Config is the set of values NewServer needs beyond the store: the
// raw base domain straight out of config.json (normalized internally,
// or empty if unset), the ACME registration email, and the server ID
// this process's own worker registered under.
type Config struct {
	LocalServerID string
	BaseDomain    string
	TLSEmail      string
}

// NewServer returns an orchestrator Server backed by store. An invalid
// BaseDomain is logged and treated as unset rather than failing
// startup, since subdomain assignment is only exercised by project
// creation, not every request.
func NewServer(store storage.Store, cfg Config) *Server {
	logger := log.WithComponent("orchestrator")

	baseDomain := ""
	if cfg.BaseDomain != "" {
		normalized, err := normalizeBaseDomain(cfg.BaseDomain)
		if err != nil {
			logger.Warn().Err(err).Str("base_domain", cfg.BaseDomain).Msg("ignoring invalid base domain")
		} else {
			baseDomain = normalized
		}
	}

	return &Server{
		store:         store,
		tokens:        cluster.NewTokenStore(),
		stats:         newStatsCache(),
		logger:        logger,
		localServerID: cfg.LocalServerID,
		baseDomain:    baseDomain,
		tlsEmailAddr:  cfg.TLSEmail,
	}
}

// tlsEmail returns the configured ACME registration email, and false
// if none is set.
func (s *Server) tlsEmail() (string, bool) {
	return s.tlsEmailAddr, s.tlsEmailAddr != ""
}

// Routes returns the orchestrator's HTTP API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/setup", s.handleAuthSetup)
	mux.HandleFunc("POST /api/auth/login", s.handleAuthLogin)
	mux.HandleFunc("GET /api/auth/status", s.handleAuthStatus)
	mux.HandleFunc("GET /api/auth/session", s.requireSession(s.handleAuthSession))

	mux.HandleFunc("POST /api/cluster/generate-token", s.requireSession(s.handleGenerateToken))
	mux.HandleFunc("POST /api/cluster/join", s.handleJoinCluster)

	mux.HandleFunc("GET /api/servers", s.requireSession(s.handleListServers))
	mux.HandleFunc("GET /api/servers/{id}/stats", s.requireSession(s.handleServerStats))

	mux.HandleFunc("POST /api/projects", s.requireSession(s.handleCreateProject))
	mux.HandleFunc("GET /api/projects", s.requireSession(s.handleListProjects))
	mux.HandleFunc("GET /api/projects/{id}", s.requireSession(s.handleGetProject))
	mux.HandleFunc("DELETE /api/projects/{id}", s.requireSession(s.handleDeleteProject))
	mux.HandleFunc("POST /api/projects/{id}/redeploy", s.requireSession(s.handleRedeployProject))

	return mux
}

// workerHost returns the address pkg/client dials to reach server's
// internal API: loopback for this process's own collocated worker,
// its stored IP otherwise.
func (s *Server) workerHost(server *types.Server) string {
	if server.ID == s.localServerID {
		return "127.0.0.1"
	}
	return server.IPAddress
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	http.Error(w, message, status)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
