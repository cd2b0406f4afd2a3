package deploy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveExecStartDefaultsByRuntime(t *testing.T) {
	t.Run("standalone default", func(t *testing.T) {
		execStart, err := resolveExecStart("/opt/nanoscale/sites/abc/source", AppRuntime{Kind: RuntimeStandaloneSelfContained}, "", 13100)
		require.NoError(t, err)
		assert.Equal(t, "/usr/bin/node /opt/nanoscale/sites/abc/source/server.js", execStart)
	})

	t.Run("explicit run command overrides default", func(t *testing.T) {
		execStart, err := resolveExecStart("/opt/nanoscale/sites/abc/source", AppRuntime{Kind: RuntimeStandaloneSelfContained}, "/usr/bin/node dist/index.js", 13100)
		require.NoError(t, err)
		assert.Equal(t, "/usr/bin/node dist/index.js", execStart)
	})

	t.Run("unsafe run command rejected", func(t *testing.T) {
		_, err := resolveExecStart("/opt/nanoscale/sites/abc/source", AppRuntime{Kind: RuntimeStandaloneSelfContained}, "node index.js; rm -rf /", 13100)
		assert.Error(t, err)
	})
}

func TestInstallRejectsOutOfRangeBackendPort(t *testing.T) {
	in := NewInstaller(nil)
	err := in.Install(nil, "abc", "/opt/nanoscale/sites/abc/source", AppRuntime{Kind: RuntimeStandaloneSelfContained}, "", 60000)
	assert.Error(t, err, "backend port 70000 exceeds the 16-bit range and must be rejected before any gate call")
}
