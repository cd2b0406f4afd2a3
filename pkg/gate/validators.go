package gate

import (
	"fmt"
	"path/filepath"
	"strings"
)

// validateArgs enforces the exact argument shape allowed for each
// binary. It is the only place in the codebase that decides whether a
// privileged command is safe to run; Run refuses to exec anything that
// doesn't pass here.
func validateArgs(binary string, args []string) error {
	switch binary {
	case Systemctl:
		return validateSystemctlArgs(args)
	case Service:
		return validateServiceArgs(args)
	case Useradd:
		return validateUseraddArgs(args)
	case Userdel:
		return validateUserdelArgs(args)
	case Certbot:
		return validateCertbotArgs(args)
	case Mv:
		return validateMvArgs(args)
	case Rm:
		return validateRmArgs(args)
	case Chown:
		return validateChownArgs(args)
	case Fallocate:
		return validateFallocateArgs(args)
	default:
		return fmt.Errorf("unsupported binary path: %s", binary)
	}
}

func hasConfExtension(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".conf")
}

func validateSystemctlArgs(args []string) error {
	if equalArgs(args, "daemon-reload") {
		return nil
	}

	if len(args) == 3 &&
		(args[0] == "enable" || args[0] == "disable") &&
		args[1] == "--now" &&
		strings.HasPrefix(args[2], "nanoscale-") &&
		strings.HasSuffix(args[2], ".service") {
		return nil
	}

	if equalArgs(args, "status", "nanoscale-agent") {
		return nil
	}

	if len(args) == 4 &&
		args[0] == "show" &&
		strings.HasPrefix(args[1], "--property=") &&
		args[2] == "--value" &&
		strings.HasPrefix(args[3], "nanoscale-") &&
		strings.HasSuffix(args[3], ".service") {
		return nil
	}

	if len(args) == 3 &&
		args[0] == "show" &&
		strings.HasPrefix(args[1], "--property=") &&
		strings.HasPrefix(args[2], "nanoscale-") &&
		strings.HasSuffix(args[2], ".service") {
		return nil
	}

	if len(args) == 2 &&
		(args[0] == "start" || args[0] == "stop" || args[0] == "restart") &&
		strings.HasPrefix(args[1], "nanoscale-") {
		return nil
	}

	return fmt.Errorf("systemctl arguments are not allowed: %v", args)
}

func validateServiceArgs(args []string) error {
	if equalArgs(args, "nginx", "reload") {
		return nil
	}
	return fmt.Errorf("service arguments are not allowed: %v", args)
}

func validateUseraddArgs(args []string) error {
	if len(args) == 4 &&
		args[0] == "-r" &&
		args[1] == "-s" &&
		args[2] == "/bin/false" &&
		strings.HasPrefix(args[3], "nanoscale-") {
		return nil
	}
	return fmt.Errorf("useradd arguments are not allowed: %v", args)
}

func validateUserdelArgs(args []string) error {
	if len(args) == 1 && strings.HasPrefix(args[0], "nanoscale-") {
		return nil
	}
	return fmt.Errorf("userdel arguments are not allowed: %v", args)
}

func validateMvArgs(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("mv requires source and destination paths")
	}

	source, destination := args[0], args[1]

	sourceAllowed := strings.HasPrefix(source, "/opt/nanoscale/tmp/nanoscale-") &&
		(strings.HasSuffix(source, ".service") ||
			strings.HasSuffix(source, ".socket") ||
			hasConfExtension(source))

	destinationAllowed := (strings.HasPrefix(destination, "/etc/systemd/system/nanoscale-") &&
		(strings.HasSuffix(destination, ".service") || strings.HasSuffix(destination, ".socket"))) ||
		(strings.HasPrefix(destination, "/etc/nginx/sites-available/nanoscale-") && hasConfExtension(destination)) ||
		(strings.HasPrefix(destination, "/etc/nginx/sites-enabled/nanoscale-") && hasConfExtension(destination))

	if sourceAllowed && destinationAllowed {
		return nil
	}
	return fmt.Errorf("mv arguments are not allowed: %v", args)
}

func validateChownArgs(args []string) error {
	if len(args) != 3 || args[0] != "-R" {
		return fmt.Errorf("chown arguments are not allowed: %v", args)
	}

	owner, destination := args[1], args[2]

	ownerAllowed := false
	if user, group, ok := strings.Cut(owner, ":"); ok {
		ownerAllowed = strings.HasPrefix(user, "nanoscale-") && strings.HasPrefix(group, "nanoscale-")
	}

	destinationAllowed := strings.HasPrefix(destination, "/opt/nanoscale/sites/nanoscale-") ||
		strings.HasPrefix(destination, "/opt/nanoscale/sites/")

	if ownerAllowed && destinationAllowed {
		return nil
	}
	return fmt.Errorf("chown arguments are not allowed: %v", args)
}

func validateRmArgs(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("rm requires exactly two arguments")
	}

	flag, target := args[0], args[1]

	if flag == "-f" && rmFileTargetAllowed(target) {
		return nil
	}
	if flag == "-rf" && rmDirectoryTargetAllowed(target) {
		return nil
	}
	return fmt.Errorf("rm arguments are not allowed: %v", args)
}

func rmFileTargetAllowed(target string) bool {
	return (strings.HasPrefix(target, "/etc/systemd/system/nanoscale-") &&
		(strings.HasSuffix(target, ".service") || strings.HasSuffix(target, ".socket"))) ||
		(strings.HasPrefix(target, "/etc/systemd/system/multi-user.target.wants/nanoscale-") && strings.HasSuffix(target, ".service")) ||
		(strings.HasPrefix(target, "/etc/systemd/system/sockets.target.wants/nanoscale-") && strings.HasSuffix(target, ".socket")) ||
		(strings.HasPrefix(target, "/etc/nginx/sites-enabled/nanoscale-") && hasConfExtension(target))
}

func rmDirectoryTargetAllowed(target string) bool {
	return (strings.HasPrefix(target, "/opt/nanoscale/sites/") || strings.HasPrefix(target, "/opt/nanoscale/tmp/")) &&
		!strings.Contains(target, "..")
}

func validateFallocateArgs(args []string) error {
	if equalArgs(args, "-l", "2G", "/opt/nanoscale/tmp/nanoscale.swap") {
		return nil
	}
	return fmt.Errorf("fallocate arguments are not allowed: %v", args)
}

func validateCertbotArgs(args []string) error {
	if len(args) >= 2 && args[0] == "--nginx" {
		return nil
	}
	if len(args) > 0 && args[0] == "certonly" {
		return validateCertbotCertonlyWebrootArgs(args)
	}
	return fmt.Errorf("certbot arguments are not allowed: %v", args)
}

func validateCertbotCertonlyWebrootArgs(args []string) error {
	var (
		hasWebroot           bool
		hasNonInteractive    bool
		hasAgreeTOS          bool
		hasKeepUntilExpiring bool
		webrootPath          string
		domain               string
		email                string
	)

	i := 0
	for i < len(args) {
		switch args[i] {
		case "certonly":
			i++
		case "--webroot":
			hasWebroot = true
			i++
		case "-w":
			if i+1 >= len(args) {
				return fmt.Errorf("certbot -w requires a value")
			}
			webrootPath = args[i+1]
			i += 2
		case "-d":
			if i+1 >= len(args) {
				return fmt.Errorf("certbot -d requires a value")
			}
			domain = args[i+1]
			i += 2
		case "--email":
			if i+1 >= len(args) {
				return fmt.Errorf("certbot --email requires a value")
			}
			email = args[i+1]
			i += 2
		case "--non-interactive":
			hasNonInteractive = true
			i++
		case "--agree-tos":
			hasAgreeTOS = true
			i++
		case "--keep-until-expiring":
			hasKeepUntilExpiring = true
			i++
		default:
			return fmt.Errorf("certbot argument is not allowed: %s", args[i])
		}
	}

	if !hasWebroot || !hasNonInteractive || !hasAgreeTOS || !hasKeepUntilExpiring {
		return fmt.Errorf("certbot certonly args missing required flags: %v", args)
	}

	if webrootPath == "" {
		return fmt.Errorf("certbot certonly must include -w")
	}
	if webrootPath != "/opt/nanoscale/acme" {
		return fmt.Errorf("certbot webroot path is not allowed: %s", webrootPath)
	}

	if domain == "" {
		return fmt.Errorf("certbot certonly must include -d")
	}
	if strings.TrimSpace(domain) == "" || !strings.Contains(domain, ".") || !isValidDomainChars(domain) {
		return fmt.Errorf("certbot domain is not allowed: %s", domain)
	}

	if email == "" {
		return fmt.Errorf("certbot certonly must include --email")
	}
	if strings.TrimSpace(email) == "" || strings.Contains(email, " ") || !strings.Contains(email, "@") {
		return fmt.Errorf("certbot email is not allowed")
	}

	return nil
}

func isValidDomainChars(domain string) bool {
	for _, ch := range domain {
		isAlnum := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
		if !isAlnum && ch != '.' && ch != '-' {
			return false
		}
	}
	return true
}

func equalArgs(args []string, want ...string) bool {
	if len(args) != len(want) {
		return false
	}
	for i := range args {
		if args[i] != want[i] {
			return false
		}
	}
	return true
}
