package deploy

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	repoURLPattern = regexp.MustCompile(`^https://[A-Za-z0-9._~:/?#\[\]@!$&'()*+,;=%-]+$`)
	branchPattern  = regexp.MustCompile(`^[a-zA-Z0-9-_]+$`)
)

// ValidateRepoURL rejects anything that isn't an HTTPS URL built from
// an allowlisted character set, so a malicious repo_url can never
// smuggle shell metacharacters or a non-HTTPS scheme into a git
// invocation.
func ValidateRepoURL(repoURL string) error {
	if !repoURLPattern.MatchString(repoURL) {
		return fmt.Errorf("repo URL must be HTTPS and match allowlisted characters")
	}
	return nil
}

// ValidateBranch rejects anything but a plain git ref name.
func ValidateBranch(branch string) error {
	if !branchPattern.MatchString(branch) {
		return fmt.Errorf("branch must match ^[a-zA-Z0-9-_]+$")
	}
	return nil
}

// CloneShallow clones repoURL into targetDir at depth 1.
func CloneShallow(ctx context.Context, repoURL, targetDir string) error {
	if err := ValidateRepoURL(repoURL); err != nil {
		return err
	}

	gitBinary, err := gitBinary()
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, gitBinary, "clone", "--depth", "1", repoURL, targetDir)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git clone failed: %s", strings.TrimSpace(string(output)))
	}
	return nil
}

// Checkout switches repoDir to branch.
func Checkout(ctx context.Context, repoDir, branch string) error {
	if err := ValidateBranch(branch); err != nil {
		return err
	}

	gitBinary, err := gitBinary()
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, gitBinary, "-C", repoDir, "checkout", branch)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git checkout failed: %s", strings.TrimSpace(string(output)))
	}
	return nil
}

// gitBinary resolves which git binary to invoke: an operator override
// via NANOSCALE_GIT_BIN, then a short list of well-known absolute
// paths, then a PATH scan. This mirrors how the install pipeline must
// run on a bare VM where git may not live at the same path across
// distributions.
func gitBinary() (string, error) {
	if configured := strings.TrimSpace(os.Getenv("NANOSCALE_GIT_BIN")); configured != "" {
		return configured, nil
	}

	for _, candidate := range []string{"/usr/bin/git", "/bin/git", "/usr/local/bin/git"} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	if pathValue := os.Getenv("PATH"); pathValue != "" {
		for _, entry := range strings.Split(pathValue, string(os.PathListSeparator)) {
			if entry == "" {
				continue
			}
			candidate := filepath.Join(entry, "git")
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
		}
	}

	return "", fmt.Errorf("git binary not found; install git or set NANOSCALE_GIT_BIN (PATH=%s)", os.Getenv("PATH"))
}
