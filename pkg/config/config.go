// Package config loads NanoScale's JSON configuration file and exposes
// its settings with the same defaulting and trimming rules regardless
// of which fields the file actually sets.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const (
	defaultConfigPath = "/opt/nanoscale/config.json"

	defaultDatabasePath            = "/opt/nanoscale/data/nanoscale.db"
	defaultOrchestratorBindAddress = "0.0.0.0:4000"
	defaultOrchestratorServerID    = "orchestrator-local"
	defaultOrchestratorServerName  = "orchestrator"
	defaultOrchestratorWorkerIP    = "127.0.0.1"
	defaultWorkerOrchestratorURL   = "http://127.0.0.1:4000"
	defaultWorkerIP                = "127.0.0.1"
	defaultWorkerName              = "worker-node"
	defaultWorkerBind              = "0.0.0.0:4000"
	configPathEnvVar               = "NANOSCALE_CONFIG_PATH"
	tlsEmailEnvVar                 = "NANOSCALE_TLS_EMAIL"
)

// Config is the on-disk shape of NanoScale's config.json. Every field is
// optional; Load always returns a usable Config, falling back to the
// defaults documented on each accessor when the file is absent or a
// field is unset.
type Config struct {
	DatabasePath string             `json:"database_path"`
	TLSEmail     string             `json:"tls_email"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Worker       WorkerConfig       `json:"worker"`
}

// OrchestratorConfig holds settings only the orchestrator role reads.
type OrchestratorConfig struct {
	BindAddress string `json:"bind_address"`
	ServerID    string `json:"server_id"`
	ServerName  string `json:"server_name"`
	WorkerIP    string `json:"worker_ip"`
	BaseDomain  string `json:"base_domain"`
}

// WorkerConfig holds settings only the worker role reads.
type WorkerConfig struct {
	OrchestratorURL string `json:"orchestrator_url"`
	IP              string `json:"ip"`
	Name            string `json:"name"`
	Bind            string `json:"bind"`
}

// Load reads the config file at the path named by NANOSCALE_CONFIG_PATH,
// or defaultConfigPath if that variable is unset or blank. A missing
// file is not an error: Load returns a zero-value Config whose
// accessors fall back to their defaults.
func Load() (Config, error) {
	path := strings.TrimSpace(os.Getenv(configPathEnvVar))
	if path == "" {
		path = defaultConfigPath
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config JSON %s: %w", path, err)
	}
	return cfg, nil
}

func orDefault(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}

// DatabasePath returns the bbolt database file path.
func (c Config) DatabasePath() string {
	return orDefault(c.DatabasePath, defaultDatabasePath)
}

// OrchestratorBindAddress returns the orchestrator role's HTTP listen
// address.
func (c Config) OrchestratorBindAddress() string {
	return orDefault(c.Orchestrator.BindAddress, defaultOrchestratorBindAddress)
}

// OrchestratorServerID returns the orchestrator's own server row ID.
func (c Config) OrchestratorServerID() string {
	return orDefault(c.Orchestrator.ServerID, defaultOrchestratorServerID)
}

// OrchestratorServerName returns the orchestrator's own server row name.
func (c Config) OrchestratorServerName() string {
	return orDefault(c.Orchestrator.ServerName, defaultOrchestratorServerName)
}

// OrchestratorWorkerIP returns the IP the orchestrator's own local
// server row advertises for worker-role dispatch.
func (c Config) OrchestratorWorkerIP() string {
	return orDefault(c.Orchestrator.WorkerIP, defaultOrchestratorWorkerIP)
}

// OrchestratorBaseDomain returns the configured base domain for
// subdomain assignment, and false if none is set.
func (c Config) OrchestratorBaseDomain() (string, bool) {
	value := strings.TrimSpace(c.Orchestrator.BaseDomain)
	return value, value != ""
}

// TLSEmail returns the email address certbot registers certificates
// under, preferring the config file and falling back to the
// NANOSCALE_TLS_EMAIL environment variable. The second return value is
// false when neither source is set.
func (c Config) TLSEmail() (string, bool) {
	value := strings.TrimSpace(c.TLSEmail)
	if value == "" {
		value = strings.TrimSpace(os.Getenv(tlsEmailEnvVar))
	}
	return value, value != ""
}

// WorkerOrchestratorURL returns the base URL a worker uses to reach the
// orchestrator during a join handshake.
func (c Config) WorkerOrchestratorURL() string {
	return orDefault(c.Worker.OrchestratorURL, defaultWorkerOrchestratorURL)
}

// WorkerIP returns the IP a worker advertises to the orchestrator when
// joining.
func (c Config) WorkerIP() string {
	return orDefault(c.Worker.IP, defaultWorkerIP)
}

// WorkerName returns the worker's own server row name.
func (c Config) WorkerName() string {
	return orDefault(c.Worker.Name, defaultWorkerName)
}

// WorkerBind returns the worker role's HTTP listen address.
func (c Config) WorkerBind() string {
	return orDefault(c.Worker.Bind, defaultWorkerBind)
}
