package deploy

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/dmuraco3/NanoScale/pkg/gate"
)

const (
	nginxEnabledPath = "/etc/nginx/sites-enabled"
)

// Teardown removes everything Install (and the ingress configurator)
// put in place for a project. Every step is idempotent: a partially
// provisioned or already-torn-down project tears down cleanly.
type Teardown struct {
	Gate *gate.Gate
}

// NewTeardown returns a Teardown backed by g.
func NewTeardown(g *gate.Gate) *Teardown {
	return &Teardown{Gate: g}
}

// DeleteProject stops and removes all systemd units, the nginx site
// file, the project's source and temp directories, and its locked
// system user.
func (td *Teardown) DeleteProject(ctx context.Context, projectID string) error {
	serviceName := fmt.Sprintf("nanoscale-%s.service", projectID)
	socketName := fmt.Sprintf("nanoscale-%s.socket", projectID)
	proxyName := fmt.Sprintf("nanoscale-%s-proxy.service", projectID)

	serviceUnitPath := filepath.Join(systemdTargetDir, serviceName)
	socketUnitPath := filepath.Join(systemdTargetDir, socketName)
	proxyUnitPath := filepath.Join(systemdTargetDir, proxyName)
	serviceWantsPath := filepath.Join(systemdTargetDir, "multi-user.target.wants", serviceName)
	socketWantsPath := filepath.Join(systemdTargetDir, "sockets.target.wants", socketName)
	proxyWantsPath := filepath.Join(systemdTargetDir, "multi-user.target.wants", proxyName)
	nginxConfPath := filepath.Join(nginxEnabledPath, fmt.Sprintf("nanoscale-%s.conf", projectID))
	projectSitesPath := filepath.Join(sitesBasePath, projectID)
	projectTmpPath := filepath.Join(tmpBasePath, projectID)

	// Best-effort: these fail harmlessly if the unit was never started.
	_, _ = td.Gate.Run(ctx, gate.Systemctl, []string{"stop", socketName})
	_, _ = td.Gate.Run(ctx, gate.Systemctl, []string{"stop", proxyName})
	_, _ = td.Gate.Run(ctx, gate.Systemctl, []string{"disable", "--now", serviceName})

	for _, path := range []string{serviceUnitPath, socketUnitPath, proxyUnitPath, serviceWantsPath, socketWantsPath, proxyWantsPath} {
		if _, err := td.removeFileIfExists(ctx, path); err != nil {
			return err
		}
	}

	if _, err := td.Gate.Run(ctx, gate.Systemctl, []string{"daemon-reload"}); err != nil {
		return err
	}

	nginxRemoved, err := td.removeFileIfExists(ctx, nginxConfPath)
	if err != nil {
		return err
	}
	if nginxRemoved {
		if _, err := td.Gate.Run(ctx, gate.Service, []string{"nginx", "reload"}); err != nil {
			return err
		}
	}

	if err := td.removeDirectoryIfExists(ctx, projectSitesPath); err != nil {
		return err
	}
	if err := td.removeDirectoryIfExists(ctx, projectTmpPath); err != nil {
		return err
	}

	return td.removeProjectUser(ctx, projectID)
}

func (td *Teardown) removeFileIfExists(ctx context.Context, path string) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	if _, err := td.Gate.Run(ctx, gate.Rm, []string{"-f", path}); err != nil {
		return false, err
	}
	return true, nil
}

func (td *Teardown) removeDirectoryIfExists(ctx context.Context, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	_, err := td.Gate.Run(ctx, gate.Rm, []string{"-rf", path})
	return err
}

func (td *Teardown) removeProjectUser(ctx context.Context, projectID string) error {
	username := fmt.Sprintf("nanoscale-%s", projectID)

	if err := exec.CommandContext(ctx, "/usr/bin/id", "-u", username).Run(); err != nil {
		return nil // user does not exist
	}

	_, err := td.Gate.Run(ctx, gate.Userdel, []string{username})
	return err
}
