package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmuraco3/NanoScale/pkg/config"
	"github.com/dmuraco3/NanoScale/pkg/gate"
	"github.com/dmuraco3/NanoScale/pkg/idle"
	"github.com/dmuraco3/NanoScale/pkg/log"
	"github.com/dmuraco3/NanoScale/pkg/orchestrator"
	"github.com/dmuraco3/NanoScale/pkg/security"
	"github.com/dmuraco3/NanoScale/pkg/storage"
	"github.com/dmuraco3/NanoScale/pkg/types"
	"github.com/dmuraco3/NanoScale/pkg/worker"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// workerSecretKeyLength is the length of the random secret key a node
// generates for itself, whether it's the orchestrator's own
// collocated worker or one joining over --join. 64 chars per spec.
const workerSecretKeyLength = 64

var (
	roleFlag string
	joinFlag string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nanoscale",
	Short: "NanoScale - self-hosted git-to-deployment platform",
	Long: `NanoScale runs one binary in two roles: an orchestrator that holds
cluster state and an HTTP API, and a worker that builds, installs and
tears down projects on a single host.

Every other setting comes from the config file, not a flag.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&roleFlag, "role", "", `Role to run as ("orchestrator")`)
	rootCmd.Flags().StringVar(&joinFlag, "join", "", "Join token, to run as a worker joining an existing orchestrator")

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: false})
}

func run(cmd *cobra.Command, args []string) error {
	if roleFlag != "" && joinFlag != "" {
		return fmt.Errorf("--role and --join are mutually exclusive")
	}
	if roleFlag == "" && joinFlag == "" {
		return fmt.Errorf("exactly one of --role orchestrator or --join <token> is required")
	}
	if roleFlag != "" && roleFlag != "orchestrator" {
		return fmt.Errorf("unsupported --role %q, only \"orchestrator\" is valid", roleFlag)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if roleFlag == "orchestrator" {
		return runOrchestrator(cfg)
	}
	return runWorker(cfg, joinFlag)
}

// runOrchestrator starts the control-plane API plus this host's own
// collocated worker, which the orchestrator dispatches to exactly
// like any remote worker: over signed loopback HTTP.
func runOrchestrator(cfg config.Config) error {
	logger := log.WithComponent("main")

	store, err := storage.NewBoltStore(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	localServer, err := ensureLocalServer(store, cfg)
	if err != nil {
		return fmt.Errorf("provision local server row: %w", err)
	}

	baseDomain, _ := cfg.OrchestratorBaseDomain()
	tlsEmail, _ := cfg.TLSEmail()

	orch := orchestrator.NewServer(store, orchestrator.Config{
		LocalServerID: localServer.ID,
		BaseDomain:    baseDomain,
		TLSEmail:      tlsEmail,
	})

	g := gate.New()
	idleMonitor := idle.NewMonitor(g)
	idleMonitor.Start()
	defer idleMonitor.Stop()

	localWorker := worker.NewServer(g, idleMonitor, localSecretLookup(localServer))

	orchestratorSrv := &http.Server{Addr: cfg.OrchestratorBindAddress(), Handler: orch.Routes()}
	workerSrv := &http.Server{Addr: "127.0.0.1:4000", Handler: localWorker.Routes()}

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", orchestratorSrv.Addr).Msg("orchestrator API listening")
		if err := orchestratorSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("orchestrator API server: %w", err)
		}
	}()
	go func() {
		logger.Info().Str("addr", workerSrv.Addr).Msg("local worker API listening")
		if err := workerSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("local worker API server: %w", err)
		}
	}()

	waitForShutdown(logger, errCh, orchestratorSrv, workerSrv)
	return nil
}

// ensureLocalServer returns the orchestrator's own server row,
// creating it with a fresh secret key on first run.
func ensureLocalServer(store storage.Store, cfg config.Config) (*types.Server, error) {
	id := cfg.OrchestratorServerID()
	if server, err := store.GetServer(id); err == nil {
		return server, nil
	}

	secretKey, err := security.GenerateSecretKey(workerSecretKeyLength)
	if err != nil {
		return nil, fmt.Errorf("generate secret key: %w", err)
	}

	server := &types.Server{
		ID:        id,
		Name:      cfg.OrchestratorServerName(),
		IPAddress: cfg.OrchestratorWorkerIP(),
		Status:    types.ServerStatusOnline,
		SecretKey: secretKey,
		CreatedAt: time.Now(),
	}
	if err := store.CreateServer(server); err != nil {
		return nil, err
	}
	return server, nil
}

// localSecretLookup authenticates signed calls addressed to the
// orchestrator's own collocated worker.
func localSecretLookup(server *types.Server) func(serverID string) (string, bool) {
	return func(serverID string) (string, bool) {
		if serverID != server.ID {
			return "", false
		}
		return server.SecretKey, true
	}
}

// runWorker joins the cluster named by token, then starts only the
// worker role, bound to the address config.json names.
func runWorker(cfg config.Config, token string) error {
	logger := log.WithComponent("main")

	secretKey, err := security.GenerateSecretKey(workerSecretKeyLength)
	if err != nil {
		return fmt.Errorf("generate secret key: %w", err)
	}

	serverID, err := joinCluster(cfg, token, secretKey)
	if err != nil {
		return fmt.Errorf("join cluster: %w", err)
	}
	logger.Info().Str("server_id", serverID).Msg("joined cluster")

	g := gate.New()
	idleMonitor := idle.NewMonitor(g)
	idleMonitor.Start()
	defer idleMonitor.Stop()

	lookup := func(candidateID string) (string, bool) {
		if candidateID != serverID {
			return "", false
		}
		return secretKey, true
	}
	w := worker.NewServer(g, idleMonitor, lookup)

	srv := &http.Server{Addr: cfg.WorkerBind(), Handler: w.Routes()}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("worker API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("worker API server: %w", err)
		}
	}()

	waitForShutdown(logger, errCh, srv)
	return nil
}

type joinClusterRequest struct {
	Token     string `json:"token"`
	IP        string `json:"ip"`
	SecretKey string `json:"secret_key"`
	Name      string `json:"name"`
}

type joinClusterResponse struct {
	ServerID string `json:"server_id"`
}

// joinCluster performs the unsigned, unauthenticated join handshake
// described in spec.md §6, posting this node's generated secret key
// to the orchestrator and returning the server row it was given.
func joinCluster(cfg config.Config, token, secretKey string) (string, error) {
	body, err := json.Marshal(joinClusterRequest{
		Token:     token,
		IP:        cfg.WorkerIP(),
		SecretKey: secretKey,
		Name:      cfg.WorkerName(),
	})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	url := cfg.WorkerOrchestratorURL() + "/api/cluster/join"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("orchestrator returned %s", resp.Status)
	}

	var parsed joinClusterResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode join response: %w", err)
	}
	return parsed.ServerID, nil
}

// waitForShutdown blocks until SIGINT/SIGTERM or one of the listening
// servers fails, then gives every server a bounded window to drain.
func waitForShutdown(logger zerolog.Logger, errCh chan error, servers ...*http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error, shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Str("addr", srv.Addr).Msg("server shutdown did not complete cleanly")
		}
	}
}
