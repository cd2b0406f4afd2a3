package ingress

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dmuraco3/NanoScale/pkg/gate"
)

// TLSProvisioner drives certbot through the gate to obtain a
// certificate via the HTTP-01 webroot challenge.
type TLSProvisioner struct {
	Gate *gate.Gate
}

// NewTLSProvisioner returns a TLSProvisioner backed by g.
func NewTLSProvisioner(g *gate.Gate) *TLSProvisioner {
	return &TLSProvisioner{Gate: g}
}

// EnsureCertificate requests (or renews, if already issued and not
// close to expiry) a certificate for domain via certbot's webroot
// plugin. Failure here is non-fatal to the caller's deployment: the
// project keeps serving over HTTP and the caller is expected to
// surface a summary rather than abort the whole pipeline.
func (p *TLSProvisioner) EnsureCertificate(ctx context.Context, domain, email string) error {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return fmt.Errorf("domain cannot be empty")
	}

	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("tls email cannot be empty")
	}

	if err := os.MkdirAll(ACMEWebroot, 0755); err != nil {
		return fmt.Errorf("failed to create ACME webroot: %w", err)
	}

	args := []string{
		"certonly",
		"--webroot",
		"-w", ACMEWebroot,
		"-d", domain,
		"--non-interactive",
		"--agree-tos",
		"--keep-until-expiring",
		"--email", email,
	}

	if _, err := p.Gate.Run(ctx, gate.Certbot, args); err != nil {
		return fmt.Errorf("certbot failed for domain %s: %w", domain, err)
	}
	return nil
}
