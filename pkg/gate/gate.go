// Package gate is the single choke point for every privileged side
// effect NanoScale performs: installing systemd units, writing nginx
// site files, creating and removing per-project system users, and
// requesting ACME certificates. Nothing else in the codebase is
// allowed to shell out as root; everything goes through Run, which
// allowlists the binary and validates its exact argument shape before
// handing it to sudo.
package gate

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/dmuraco3/NanoScale/pkg/metrics"
)

const sudoBin = "/usr/bin/sudo"

// Allowlisted binary paths. These are absolute so a PATH-relative
// binary of the same name can never be substituted.
const (
	Systemctl = "/usr/bin/systemctl"
	Service   = "/usr/sbin/service"
	Useradd   = "/usr/sbin/useradd"
	Userdel   = "/usr/sbin/userdel"
	Certbot   = "/usr/bin/certbot"
	Mv        = "/usr/bin/mv"
	Rm        = "/usr/bin/rm"
	Chown     = "/usr/bin/chown"
	Fallocate = "/usr/bin/fallocate"
)

var allowedBinaries = map[string]bool{
	Systemctl: true,
	Service:   true,
	Useradd:   true,
	Userdel:   true,
	Certbot:   true,
	Mv:        true,
	Rm:        true,
	Chown:     true,
	Fallocate: true,
}

// Result is the captured output of a successful privileged command.
type Result struct {
	Stdout string
	Stderr string
}

// CommandError reports a privileged command that ran but exited
// non-zero; it carries the captured output so callers can log or
// surface it without re-running the command.
type CommandError struct {
	Binary string
	Args   []string
	Stdout string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("privileged command failed: %s %v; stdout: %s; stderr: %s", e.Binary, e.Args, e.Stdout, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Gate is the privileged command runner. Its zero value is usable.
type Gate struct {
	// Timeout bounds every invocation. Zero means no timeout.
	Timeout time.Duration
}

// New returns a Gate with a sane default timeout.
func New() *Gate {
	return &Gate{Timeout: 30 * time.Second}
}

// Run validates binary+args against the allowlist and, if they pass,
// executes them via "sudo -n <binary> <args...>", returning the
// captured stdout/stderr. Any rejection or non-zero exit is an error;
// callers never need to inspect an exit code.
func (g *Gate) Run(ctx context.Context, binary string, args []string) (Result, error) {
	if !allowedBinaries[binary] {
		metrics.GateInvocationsTotal.WithLabelValues(binary, "rejected").Inc()
		return Result{}, fmt.Errorf("binary path is not allowed: %s", binary)
	}

	if err := validateArgs(binary, args); err != nil {
		metrics.GateInvocationsTotal.WithLabelValues(binary, "rejected").Inc()
		return Result{}, err
	}

	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	sudoArgs := append([]string{"-n", binary}, args...)
	cmd := exec.CommandContext(ctx, sudoBin, sudoArgs...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		metrics.GateInvocationsTotal.WithLabelValues(binary, "failed").Inc()
		return Result{}, &CommandError{
			Binary: binary,
			Args:   args,
			Stdout: stdout.String(),
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	metrics.GateInvocationsTotal.WithLabelValues(binary, "ok").Inc()
	return Result{Stdout: stdout.String(), Stderr: stderr.String()}, nil
}
