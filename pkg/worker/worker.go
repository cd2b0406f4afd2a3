// Package worker implements a worker node's internal API: the signed
// HTTP endpoints an orchestrator calls to provision, tear down,
// inspect and report on projects pinned to this host.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dmuraco3/NanoScale/pkg/client"
	"github.com/dmuraco3/NanoScale/pkg/cluster"
	"github.com/dmuraco3/NanoScale/pkg/deploy"
	"github.com/dmuraco3/NanoScale/pkg/gate"
	"github.com/dmuraco3/NanoScale/pkg/health"
	"github.com/dmuraco3/NanoScale/pkg/idle"
	"github.com/dmuraco3/NanoScale/pkg/ingress"
	"github.com/dmuraco3/NanoScale/pkg/log"
	"github.com/dmuraco3/NanoScale/pkg/types"
	"github.com/rs/zerolog"
)

// Server is a worker node: it exposes the signature-guarded internal
// API and drives the deployment and teardown pipelines locally.
type Server struct {
	gate   *gate.Gate
	logger zerolog.Logger

	builder      *deploy.Builder
	installer    *deploy.Installer
	teardown     *deploy.Teardown
	ingress      *ingress.Configurator
	tls          *ingress.TLSProvisioner
	idleMonitor  *idle.Monitor
	secretLookup cluster.SecretLookup
}

// NewServer returns a worker Server wired to g, authenticating inbound
// calls against lookup.
func NewServer(g *gate.Gate, monitor *idle.Monitor, lookup cluster.SecretLookup) *Server {
	return &Server{
		gate:         g,
		logger:       log.WithComponent("worker"),
		builder:      deploy.NewBuilder(g),
		installer:    deploy.NewInstaller(g),
		teardown:     deploy.NewTeardown(g),
		ingress:      ingress.NewConfigurator(g),
		tls:          ingress.NewTLSProvisioner(g),
		idleMonitor:  monitor,
		secretLookup: lookup,
	}
}

// Routes returns the worker's internal API, every endpoint wrapped in
// the signed inter-node call authentication.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /internal/health", s.handleHealth)
	mux.HandleFunc("POST /internal/stats", s.handleStats)
	mux.HandleFunc("POST /internal/ports/check", s.handlePortCheck)
	mux.HandleFunc("POST /internal/projects", s.handleCreateProject)
	mux.HandleFunc("DELETE /internal/projects/{id}", s.handleDeleteProject)
	return cluster.VerifySignature(s.secretLookup, mux)
}

type healthResponse struct {
	CPUUsagePercent  float32 `json:"cpu_usage_percent"`
	UsedMemoryBytes  uint64  `json:"used_memory_bytes"`
	TotalMemoryBytes uint64  `json:"total_memory_bytes"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	totals, err := collectTotals()
	if err != nil {
		s.logger.Error().Err(err).Msg("health stats collection failed")
		http.Error(w, "health check failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{
		CPUUsagePercent:  totals.CPUUsagePercent,
		UsedMemoryBytes:  totals.UsedMemoryBytes,
		TotalMemoryBytes: totals.TotalMemoryBytes,
	})
}

type statsRequestBody struct {
	ProjectIDs []string `json:"project_ids"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var payload statsRequestBody
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	stats, err := collectHostStats(r.Context(), s.gate, payload.ProjectIDs)
	if err != nil {
		s.logger.Error().Err(err).Msg("stats collection failed")
		http.Error(w, "stats collection failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

type portAvailabilityRequestBody struct {
	Port int `json:"port"`
}

type portAvailabilityResponseBody struct {
	Available bool `json:"available"`
}

func (s *Server) handlePortCheck(w http.ResponseWriter, r *http.Request) {
	var payload portAvailabilityRequestBody
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	listener, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(payload.Port))
	available := err == nil
	if listener != nil {
		_ = listener.Close()
	}

	writeJSON(w, http.StatusOK, portAvailabilityResponseBody{Available: available})
}

type projectResponseBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// handleCreateProject runs the clone/build/systemd/nginx/TLS pipeline
// synchronously in the request's own goroutine. Earlier successful
// side effects within the pipeline are not rolled back on a later
// failure; the orchestrator's own row rollback is the only
// compensating action.
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req client.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	repoDir := fmt.Sprintf("/opt/nanoscale/tmp/%s/source", req.ProjectID)

	if err := deploy.ValidateRepoURL(req.RepoURL); err != nil {
		writeJSON(w, http.StatusBadRequest, projectResponseBody{Status: "error", Message: fmt.Sprintf("repo URL validation failed: %v", err)})
		return
	}
	if err := deploy.ValidateBranch(req.Branch); err != nil {
		writeJSON(w, http.StatusBadRequest, projectResponseBody{Status: "error", Message: fmt.Sprintf("branch validation failed: %v", err)})
		return
	}
	if err := deploy.CloneShallow(ctx, req.RepoURL, repoDir); err != nil {
		writeJSON(w, http.StatusBadRequest, projectResponseBody{Status: "error", Message: fmt.Sprintf("git clone step failed: %v", err)})
		return
	}
	if err := deploy.Checkout(ctx, repoDir, req.Branch); err != nil {
		writeJSON(w, http.StatusBadRequest, projectResponseBody{Status: "error", Message: fmt.Sprintf("git checkout step failed: %v", err)})
		return
	}

	buildOutput, err := s.builder.Execute(ctx, req.ProjectID, repoDir, deploy.BuildSettings{
		InstallCommand:  req.InstallCommand,
		BuildCommand:    req.BuildCommand,
		OutputDirectory: req.OutputDirectory,
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, projectResponseBody{Status: "error", Message: fmt.Sprintf("build pipeline failed: %v", err)})
		return
	}

	if err := s.installer.Install(ctx, req.ProjectID, buildOutput.SourceDir, buildOutput.Runtime, req.StartCommand, req.Port); err != nil {
		writeJSON(w, http.StatusBadRequest, projectResponseBody{Status: "error", Message: fmt.Sprintf("systemd generation failed: %v", err)})
		return
	}

	if err := s.ingress.Install(ctx, req.ProjectID, req.Port, req.Domain, ingress.TLSDisabled); err != nil {
		writeJSON(w, http.StatusBadRequest, projectResponseBody{Status: "error", Message: fmt.Sprintf("nginx generation failed: %v", err)})
		return
	}

	tlsMessage := "TLS skipped: no domain assigned"
	if req.Domain != "" {
		tlsMessage = "TLS skipped: no tls_email configured"
		if req.TLSEmail != "" {
			if err := s.tls.EnsureCertificate(ctx, req.Domain, req.TLSEmail); err != nil {
				s.logger.Error().Err(err).Str("domain", req.Domain).Msg("TLS provisioning failed")
				tlsMessage = fmt.Sprintf("TLS provisioning failed: %v", err)
			} else if err := s.ingress.Install(ctx, req.ProjectID, req.Port, req.Domain, ingress.TLSEnabled); err != nil {
				writeJSON(w, http.StatusBadRequest, projectResponseBody{Status: "error", Message: fmt.Sprintf("nginx TLS generation failed: %v", err)})
				return
			} else {
				tlsMessage = "TLS enabled"
			}
		}
	}

	if s.idleMonitor != nil {
		s.idleMonitor.Watch(types.MonitoredProject{
			ServiceName: fmt.Sprintf("nanoscale-%s.service", req.ProjectID),
			Port:        req.Port,
			ScaleToZero: true,
		})
	}

	backendMessage := s.checkBackendReachable(ctx, req.Port)

	writeJSON(w, http.StatusAccepted, projectResponseBody{
		Status:  "accepted",
		Message: fmt.Sprintf("Source cloned and branch checked out. Build pipeline, systemd generation, and nginx configuration completed. %s. %s.", tlsMessage, backendMessage),
	})
}

// checkBackendReachable probes the project's socket-activated backend
// once, right after install, so a deploy that reports success still
// surfaces an immediately-dead start command instead of only a 502
// from nginx on the first real request.
func (s *Server) checkBackendReachable(ctx context.Context, port int) string {
	checker := health.NewTCPChecker(fmt.Sprintf("127.0.0.1:%d", port)).WithTimeout(5 * time.Second)
	result := checker.Check(ctx)
	if !result.Healthy {
		s.logger.Warn().Str("address", checker.Address).Msg(result.Message)
		return "backend reachability check: " + result.Message
	}
	return "backend reachability check passed"
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")

	if err := s.teardown.DeleteProject(r.Context(), projectID); err != nil {
		writeJSON(w, http.StatusBadRequest, projectResponseBody{Status: "error", Message: fmt.Sprintf("project cleanup failed: %v", err)})
		return
	}

	if s.idleMonitor != nil {
		s.idleMonitor.Unwatch(fmt.Sprintf("nanoscale-%s.service", projectID))
	}

	writeJSON(w, http.StatusNoContent, projectResponseBody{Status: "accepted", Message: "Project resources deleted"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status == http.StatusNoContent {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}
