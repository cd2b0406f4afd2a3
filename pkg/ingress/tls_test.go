package ingress

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureCertificateRejectsBlankDomainOrEmail(t *testing.T) {
	p := NewTLSProvisioner(nil)

	err := p.EnsureCertificate(context.Background(), "", "ops@example.com")
	assert.Error(t, err)

	err = p.EnsureCertificate(context.Background(), "app.example.com", "")
	assert.Error(t, err)
}
