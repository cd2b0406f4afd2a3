package deploy

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/dmuraco3/NanoScale/pkg/gate"
)

// EnsureProjectUser creates the locked system user nanoscale-<projectID>
// if it does not already exist.
func EnsureProjectUser(ctx context.Context, g *gate.Gate, projectID string) error {
	username := fmt.Sprintf("nanoscale-%s", projectID)

	if err := exec.CommandContext(ctx, "/usr/bin/id", "-u", username).Run(); err == nil {
		return nil // already exists
	}

	_, err := g.Run(ctx, gate.Useradd, []string{"-r", "-s", "/bin/false", username})
	return err
}
