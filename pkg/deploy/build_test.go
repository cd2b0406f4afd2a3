package deploy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantProgram string
		wantArgs    []string
		wantErr     bool
	}{
		{"simple", "bun install", "bun", []string{"install"}, false},
		{"no args", "bun", "bun", nil, false},
		{"multiple args", "npm run build --silent", "npm", []string{"run", "build", "--silent"}, false},
		{"empty rejected", "   ", "", nil, true},
		{"semicolon rejected", "bun install; rm -rf /", "", nil, true},
		{"pipe rejected", "bun install | tee log", "", nil, true},
		{"backtick rejected", "bun `whoami`", "", nil, true},
		{"dollar rejected", "bun $HOME", "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			program, args, err := parseCommand(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProgram, program)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestResolveOutputDirectory(t *testing.T) {
	repoDir := t.TempDir()

	t.Run("empty returns repo root", func(t *testing.T) {
		dir, err := resolveOutputDirectory(repoDir, "")
		require.NoError(t, err)
		assert.Equal(t, repoDir, dir)
	})

	t.Run("existing directory is honored", func(t *testing.T) {
		require.NoError(t, os.MkdirAll(filepath.Join(repoDir, "dist"), 0755))
		dir, err := resolveOutputDirectory(repoDir, "dist")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(repoDir, "dist"), dir)
	})

	t.Run("missing directory is an error", func(t *testing.T) {
		_, err := resolveOutputDirectory(repoDir, "does-not-exist")
		assert.Error(t, err)
	})

	t.Run("next standalone alias falls back to repo root", func(t *testing.T) {
		otherRepo := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(otherRepo, ".next"), 0755))
		dir, err := resolveOutputDirectory(otherRepo, ".next/standalone")
		require.NoError(t, err)
		assert.Equal(t, otherRepo, dir)
	})
}

func TestCopyDirectoryRecursivePreservesSymlinksAndRejectsUnknownTypes(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "out")

	require.NoError(t, os.WriteFile(filepath.Join(src, "server.js"), []byte("console.log(1)"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "inner.txt"), []byte("x"), 0644))
	require.NoError(t, os.Symlink("server.js", filepath.Join(src, "link.js")))

	require.NoError(t, copyDirectoryRecursive(src, dst))

	assert.FileExists(t, filepath.Join(dst, "server.js"))
	assert.FileExists(t, filepath.Join(dst, "nested", "inner.txt"))

	linkInfo, err := os.Lstat(filepath.Join(dst, "link.js"))
	require.NoError(t, err)
	assert.True(t, linkInfo.Mode()&os.ModeSymlink != 0, "expected link.js to remain a symlink")

	target, err := os.Readlink(filepath.Join(dst, "link.js"))
	require.NoError(t, err)
	assert.Equal(t, "server.js", target)
}

func TestDetectRuntimeStandaloneAndNextPaths(t *testing.T) {
	t.Run("top-level server.js", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "server.js"), []byte(""), 0644))
		rt, err := detectRuntime(dir)
		require.NoError(t, err)
		assert.Equal(t, RuntimeStandaloneSelfContained, rt.Kind)
	})

	t.Run("next standalone server.js", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, ".next", "standalone"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".next", "standalone", "server.js"), []byte(""), 0644))
		rt, err := detectRuntime(dir)
		require.NoError(t, err)
		assert.Equal(t, RuntimeStandaloneSelfContained, rt.Kind)
	})
}
