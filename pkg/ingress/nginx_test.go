package ingress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerNameIncludesDomainAndFallback(t *testing.T) {
	name := ServerName("123e4567-e89b-12d3-a456-426614174000", "app.example.com")
	assert.Contains(t, name, "app.example.com")
	assert.Contains(t, name, "ns-")
	assert.Contains(t, name, ".local")
}

func TestServerNameFallsBackWhenDomainMissingOrBlank(t *testing.T) {
	missing := ServerName("p1", "")
	blank := ServerName("p1", "   ")
	assert.Equal(t, missing, blank)
	assert.Contains(t, missing, ".local")
}

func TestHTTPTemplateContainsACMERootAndProxyPass(t *testing.T) {
	template := httpTemplate("example", 3100)
	assert.Contains(t, template, ACMEWebroot)
	assert.Contains(t, template, "server 127.0.0.1:13100")
	assert.Contains(t, template, "server 127.0.0.1:3100 backup")
}

func TestHTTPSTemplateContainsCertPathsAndRedirect(t *testing.T) {
	template := httpsTemplate("example", "app.example.com", 3100)
	assert.Contains(t, template, "/etc/letsencrypt/live/app.example.com/fullchain.pem")
	assert.Contains(t, template, "return 301 https://$host$request_uri")
	assert.Contains(t, template, "server 127.0.0.1:13100")
	assert.Contains(t, template, "server 127.0.0.1:3100 backup")
}

func TestBackendPortRejectsOverflow(t *testing.T) {
	_, err := backendPort(60000)
	assert.Error(t, err)
}
