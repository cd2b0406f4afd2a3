package deploy

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dmuraco3/NanoScale/pkg/gate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoveFileIfExistsIsANoOpWhenAbsent(t *testing.T) {
	td := NewTeardown(&gate.Gate{})
	removed, err := td.removeFileIfExists(context.Background(), filepath.Join(t.TempDir(), "does-not-exist.service"))
	require.NoError(t, err)
	assert.False(t, removed, "a missing file must not trigger a gate call")
}

func TestRemoveDirectoryIfExistsIsANoOpWhenAbsent(t *testing.T) {
	td := NewTeardown(&gate.Gate{})
	err := td.removeDirectoryIfExists(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"))
	assert.NoError(t, err, "a missing directory must not trigger a gate call")
}

func TestRemoveProjectUserIsANoOpWhenUserDoesNotExist(t *testing.T) {
	td := NewTeardown(&gate.Gate{})
	err := td.removeProjectUser(context.Background(), "nanoscale-no-such-project-12345")
	assert.NoError(t, err, "a project id with no matching system user must not trigger userdel")
}
