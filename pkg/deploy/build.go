package deploy

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dmuraco3/NanoScale/pkg/gate"
)

const (
	minRAMBytes   = 2 * 1024 * 1024 * 1024
	swapFilePath  = "/opt/nanoscale/tmp/nanoscale.swap"
	sitesBasePath = "/opt/nanoscale/sites"
	runtimePath   = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
)

// packageManager is the one package-manager interpreter whose
// first-token command name is rewritten to a resolved absolute
// binary, mirroring how a restricted PATH would otherwise fail to
// find it.
const packageManager = "bun"

// BuildSettings are the per-project inputs to the artifact pipeline.
type BuildSettings struct {
	InstallCommand  string
	BuildCommand    string
	OutputDirectory string
}

// AppRuntime is the execution strategy chosen for a built project.
type AppRuntime struct {
	Kind       RuntimeKind
	Interpreter string // only set for RuntimePackageManagerStart
}

// RuntimeKind distinguishes how a built project is started.
type RuntimeKind string

const (
	RuntimeStandaloneSelfContained RuntimeKind = "standalone"
	RuntimePackageManagerStart     RuntimeKind = "package-manager-start"
)

// BuildOutput is what the artifact builder hands to the unit installer.
type BuildOutput struct {
	SourceDir string
	Runtime   AppRuntime
}

// Builder runs the install/build/artifact-copy pipeline for a project.
type Builder struct {
	Gate *gate.Gate
}

// NewBuilder returns a Builder backed by g.
func NewBuilder(g *gate.Gate) *Builder {
	return &Builder{Gate: g}
}

// Execute runs the full artifact pipeline for projectID, whose
// repository was cloned into repoDir, and returns the resolved
// source directory and chosen runtime.
func (b *Builder) Execute(ctx context.Context, projectID, repoDir string, settings BuildSettings) (*BuildOutput, error) {
	if err := b.ensureSwapIfLowRAM(ctx); err != nil {
		return nil, fmt.Errorf("swap provisioning failed: %w", err)
	}

	if err := b.runCommand(ctx, repoDir, settings.InstallCommand, "dependency install"); err != nil {
		return nil, fmt.Errorf("dependency install failed: %w", err)
	}
	if err := b.runCommand(ctx, repoDir, settings.BuildCommand, "application build"); err != nil {
		return nil, fmt.Errorf("application build failed: %w", err)
	}

	destinationDir := filepath.Join(sitesBasePath, projectID, "source")
	artifactSourceDir, err := resolveOutputDirectory(repoDir, settings.OutputDirectory)
	if err != nil {
		return nil, err
	}

	if err := b.replaceDirectory(ctx, artifactSourceDir, destinationDir); err != nil {
		return nil, fmt.Errorf("artifact copy failed: %w", err)
	}

	appRuntime, err := detectRuntime(destinationDir)
	if err != nil {
		return nil, fmt.Errorf("runtime detection failed: %w", err)
	}

	if err := EnsureProjectUser(ctx, b.Gate, projectID); err != nil {
		return nil, fmt.Errorf("project user setup failed: %w", err)
	}

	if err := b.applyProjectOwnership(ctx, projectID, destinationDir); err != nil {
		return nil, fmt.Errorf("artifact ownership setup failed: %w", err)
	}

	if err := ensureSitesDirTraversable(); err != nil {
		return nil, fmt.Errorf("sites directory permission setup failed: %w", err)
	}

	return &BuildOutput{SourceDir: destinationDir, Runtime: appRuntime}, nil
}

func (b *Builder) ensureSwapIfLowRAM(ctx context.Context) error {
	if totalRAMBytes() >= minRAMBytes {
		return nil
	}
	if _, err := os.Stat(swapFilePath); err == nil {
		return nil
	}
	_, err := b.Gate.Run(ctx, gate.Fallocate, []string{"-l", "2G", swapFilePath})
	return err
}

// totalRAMBytes is a seam for tests; production always reads
// /proc/meminfo on the target Linux host.
var totalRAMBytes = func() uint64 {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return minRAMBytes // assume enough RAM rather than force swap on an unreadable host
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		var kb uint64
		if _, err := fmt.Sscanf(fields[1], "%d", &kb); err == nil {
			return kb * 1024
		}
	}
	return minRAMBytes
}

func (b *Builder) runCommand(ctx context.Context, repoDir, rawCommand, label string) error {
	program, args, err := parseCommand(rawCommand)
	if err != nil {
		return err
	}

	executable := program
	if program == packageManager {
		executable, err = packageManagerBinary()
		if err != nil {
			return err
		}
	}

	cmd := exec.CommandContext(ctx, executable, args...)
	cmd.Dir = repoDir
	cmd.Env = append(os.Environ(), "PATH="+runtimePath)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s command failed: %s", label, strings.TrimSpace(string(output)))
	}
	return nil
}

func parseCommand(rawCommand string) (string, []string, error) {
	trimmed := strings.TrimSpace(rawCommand)
	if trimmed == "" {
		return "", nil, fmt.Errorf("command cannot be empty")
	}

	if strings.ContainsAny(trimmed, ";|&><`$\n\r") {
		return "", nil, fmt.Errorf("command contains unsupported shell control characters")
	}

	parts := strings.Fields(trimmed)
	return parts[0], parts[1:], nil
}

func resolveOutputDirectory(repoDir, outputDirectory string) (string, error) {
	trimmed := strings.TrimSpace(outputDirectory)
	if trimmed == "" {
		return repoDir, nil
	}

	candidate := filepath.Join(repoDir, trimmed)
	if info, err := os.Stat(candidate); err == nil && info.IsDir() {
		return candidate, nil
	}

	if trimmed == ".next/standalone" {
		if info, err := os.Stat(filepath.Join(repoDir, ".next")); err == nil && info.IsDir() {
			return repoDir, nil
		}
	}

	return "", fmt.Errorf("configured output directory not found: %s", candidate)
}

// replaceDirectory atomically-enough replaces destinationDir with a
// copy of sourceDir: symlinks are preserved verbatim, regular files
// are copied, and any other file type aborts the pipeline rather than
// silently dropping it. If plain removal of an existing destination
// hits permission denied (typical once a prior deploy's artifacts are
// owned by a locked per-project user), it falls back to a privileged
// rm -rf through the gate.
func (b *Builder) replaceDirectory(ctx context.Context, sourceDir, destinationDir string) error {
	if _, err := os.Stat(destinationDir); err == nil {
		if err := os.RemoveAll(destinationDir); err != nil {
			if !os.IsPermission(err) {
				return err
			}
			if _, gerr := b.Gate.Run(ctx, gate.Rm, []string{"-rf", destinationDir}); gerr != nil {
				return fmt.Errorf("privileged removal of %s failed: %w", destinationDir, gerr)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(destinationDir), 0755); err != nil {
		return err
	}

	return copyDirectoryRecursive(sourceDir, destinationDir)
}

func copyDirectoryRecursive(sourceDir, destinationDir string) error {
	if err := os.MkdirAll(destinationDir, 0755); err != nil {
		return err
	}

	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		sourcePath := filepath.Join(sourceDir, entry.Name())
		destinationPath := filepath.Join(destinationDir, entry.Name())

		info, err := os.Lstat(sourcePath)
		if err != nil {
			return err
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(sourcePath)
			if err != nil {
				return err
			}
			if err := os.Symlink(target, destinationPath); err != nil {
				return err
			}
		case info.IsDir():
			if err := copyDirectoryRecursive(sourcePath, destinationPath); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := copyFile(sourcePath, destinationPath, info.Mode()); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported file type at %s", sourcePath)
		}
	}

	return nil
}

func copyFile(sourcePath, destinationPath string, mode os.FileMode) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(destinationPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

func detectRuntime(sourceDir string) (AppRuntime, error) {
	for _, candidate := range []string{"server.js", filepath.Join(".next", "standalone", "server.js")} {
		if info, err := os.Stat(filepath.Join(sourceDir, candidate)); err == nil && !info.IsDir() {
			return AppRuntime{Kind: RuntimeStandaloneSelfContained}, nil
		}
	}

	interpreter, err := packageManagerBinary()
	if err != nil {
		return AppRuntime{}, err
	}
	return AppRuntime{Kind: RuntimePackageManagerStart, Interpreter: interpreter}, nil
}

// ensureSitesDirTraversable gives the base sites directory the
// traversable x bit for other, so a per-project locked user (which
// belongs to no shared group) can still reach its own subdirectory
// under it. It touches only the base directory's own mode bits, which
// the process that created it already owns, so it does not need the
// gate.
func ensureSitesDirTraversable() error {
	info, err := os.Stat(sitesBasePath)
	if err != nil {
		return err
	}
	return os.Chmod(sitesBasePath, info.Mode()|0001)
}

func (b *Builder) applyProjectOwnership(ctx context.Context, projectID, destinationDir string) error {
	owner := fmt.Sprintf("nanoscale-%s:nanoscale-%s", projectID, projectID)
	_, err := b.Gate.Run(ctx, gate.Chown, []string{"-R", owner, destinationDir})
	return err
}

func packageManagerBinary() (string, error) {
	if configured := strings.TrimSpace(os.Getenv("NANOSCALE_BUN_BIN")); configured != "" {
		return configured, nil
	}

	for _, candidate := range []string{"/usr/bin/bun", "/bin/bun", "/usr/local/bin/bun"} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	if pathValue := os.Getenv("PATH"); pathValue != "" {
		for _, entry := range strings.Split(pathValue, string(os.PathListSeparator)) {
			if entry == "" {
				continue
			}
			candidate := filepath.Join(entry, "bun")
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
		}
	}

	return "", fmt.Errorf("bun binary not found; install bun or set NANOSCALE_BUN_BIN (PATH=%s)", os.Getenv("PATH"))
}
