// Package ingress configures nginx as NanoScale's reverse proxy: it
// renders and installs per-project site files, and drives certbot
// through the gate to provision TLS.
package ingress

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmuraco3/NanoScale/pkg/gate"
)

const (
	tmpBasePath      = "/opt/nanoscale/tmp"
	nginxEnabledPath = "/etc/nginx/sites-enabled"

	// ACMEWebroot is the HTTP-01 challenge directory nginx serves and
	// certbot writes into.
	ACMEWebroot = "/opt/nanoscale/acme"
)

// TLSMode selects which site template to render.
type TLSMode int

const (
	TLSDisabled TLSMode = iota
	TLSEnabled
)

// Configurator renders nginx site files and installs them via the gate.
type Configurator struct {
	Gate *gate.Gate
}

// NewConfigurator returns a Configurator backed by g.
func NewConfigurator(g *gate.Gate) *Configurator {
	return &Configurator{Gate: g}
}

// Install renders the site config for projectID at the given public
// port and optional domain, installs it into sites-enabled, and
// reloads nginx. When tlsMode is TLSEnabled, domain must be non-empty;
// the HTTPS template redirects 80->443 and terminates TLS using a
// certificate already issued at /etc/letsencrypt/live/<domain>.
func (c *Configurator) Install(ctx context.Context, projectID string, port int, domain string, tlsMode TLSMode) error {
	siteName := fmt.Sprintf("nanoscale-%s", projectID)
	serverName := ServerName(projectID, domain)

	var confText string
	switch tlsMode {
	case TLSDisabled:
		confText = httpTemplate(serverName, port)
	case TLSEnabled:
		if strings.TrimSpace(domain) == "" {
			return fmt.Errorf("TLS enabled but no domain was provided")
		}
		confText = httpsTemplate(serverName, domain, port)
	default:
		return fmt.Errorf("unknown TLS mode: %d", tlsMode)
	}

	if err := os.MkdirAll(tmpBasePath, 0755); err != nil {
		return err
	}

	tmpConfPath := filepath.Join(tmpBasePath, siteName+".enabled.conf")
	if err := os.WriteFile(tmpConfPath, []byte(confText), 0644); err != nil {
		return err
	}

	targetConfPath := filepath.Join(nginxEnabledPath, siteName+".conf")
	if _, err := c.Gate.Run(ctx, gate.Mv, []string{tmpConfPath, targetConfPath}); err != nil {
		return err
	}

	_, err := c.Gate.Run(ctx, gate.Service, []string{"nginx", "reload"})
	return err
}

// ServerName computes the nginx server_name directive value: the
// caller-supplied domain (if any) plus an always-present fallback
// derived from the project id, so a project is always reachable even
// before (or without) a domain being assigned.
func ServerName(projectID, domain string) string {
	compactID := strings.ReplaceAll(projectID, "-", "")
	if len(compactID) > 12 {
		compactID = compactID[:12]
	}
	fallback := fmt.Sprintf("ns-%s.local", compactID)

	domain = strings.TrimSpace(domain)
	if domain == "" {
		return fallback
	}
	return domain + " " + fallback
}

func backendPort(frontPort int) (int, error) {
	candidate := frontPort + 10000
	if candidate > math.MaxUint16 {
		return 0, fmt.Errorf("cannot derive backend port from %d; %d exceeds 65535", frontPort, candidate)
	}
	return candidate, nil
}

func httpTemplate(serverName string, port int) string {
	backend, err := backendPort(port)
	if err != nil {
		backend = port
	}
	upstreamName := fmt.Sprintf("nanoscale_upstream_%d", port)

	return fmt.Sprintf(`upstream %s {
    server 127.0.0.1:%d;
    server 127.0.0.1:%d backup;
}

server {
    listen 80;
    server_name %s;

    location ^~ /.well-known/acme-challenge/ {
        root %s;
    }

    location / {
        proxy_http_version 1.1;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
        proxy_next_upstream error timeout http_502 http_503 http_504;
        proxy_next_upstream_tries 10;
        proxy_next_upstream_timeout 10s;
        proxy_connect_timeout 1s;
        proxy_pass http://%s;
    }
}
`, upstreamName, backend, port, serverName, ACMEWebroot, upstreamName)
}

func httpsTemplate(serverName, domain string, port int) string {
	certPath := fmt.Sprintf("/etc/letsencrypt/live/%s/fullchain.pem", domain)
	keyPath := fmt.Sprintf("/etc/letsencrypt/live/%s/privkey.pem", domain)
	backend, err := backendPort(port)
	if err != nil {
		backend = port
	}
	upstreamName := fmt.Sprintf("nanoscale_upstream_%d", port)

	return fmt.Sprintf(`upstream %s {
    server 127.0.0.1:%d;
    server 127.0.0.1:%d backup;
}

server {
    listen 80;
    server_name %s;

    location ^~ /.well-known/acme-challenge/ {
        root %s;
    }

    location / {
        return 301 https://$host$request_uri;
    }
}

server {
    listen 443 ssl;
    server_name %s;

    ssl_certificate %s;
    ssl_certificate_key %s;

    location / {
        proxy_http_version 1.1;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
        proxy_next_upstream error timeout http_502 http_503 http_504;
        proxy_next_upstream_tries 10;
        proxy_next_upstream_timeout 10s;
        proxy_connect_timeout 1s;
        proxy_pass http://%s;
    }
}
`, upstreamName, backend, port, serverName, ACMEWebroot, serverName, certPath, keyPath, upstreamName)
}
