package orchestrator

import (
	"errors"
	"strings"
)

// errUnslugifiableName is returned when a project name collapses to an
// empty label under slugifyProjectName.
var errUnslugifiableName = errors.New("project name cannot be converted into a valid subdomain")

// errBaseDomainInvalid is returned by normalizeBaseDomain for a
// configured base domain that fails the §4.12 character rules.
var errBaseDomainInvalid = errors.New("base domain is empty or contains invalid characters")

// errDomainConflict is returned by assignedProjectDomain when both the
// plain and suffixed candidate FQDNs are already in use.
var errDomainConflict = errors.New("unable to allocate unique subdomain for this project")

const maxDNSLabelLen = 63

// slugifyProjectName lowercases name and collapses any run of
// non-alphanumeric characters into a single '-', trimming leading and
// trailing '-'. An empty result is an error.
func slugifyProjectName(name string) (string, error) {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(name) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
			prevDash = false
			continue
		}
		if !prevDash {
			b.WriteByte('-')
			prevDash = true
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "", errUnslugifiableName
	}
	return slug, nil
}

// truncateDNSLabel clamps label to maxDNSLabelLen bytes, strips any
// trailing '-' left by the cut, and substitutes "project" if that
// leaves nothing.
func truncateDNSLabel(label string) string {
	if len(label) > maxDNSLabelLen {
		label = label[:maxDNSLabelLen]
	}
	label = strings.TrimRight(label, "-")
	if label == "" {
		return "project"
	}
	return label
}

// trimLabelForSuffix re-truncates label so that appending "-" plus a
// suffix of suffixLen characters still fits inside maxDNSLabelLen.
func trimLabelForSuffix(label string, suffixLen int) string {
	maxPrefixLen := maxDNSLabelLen - (suffixLen + 1)
	if maxPrefixLen < 0 {
		maxPrefixLen = 0
	}
	if len(label) > maxPrefixLen {
		label = label[:maxPrefixLen]
	}
	label = strings.TrimRight(label, "-")
	if label == "" {
		return "project"
	}
	return label
}

// normalizeBaseDomain trims, lowercases and strips a trailing '.' from
// raw, then rejects it if that leaves an empty string or one
// containing '/', ':', ".." or a character outside [A-Za-z0-9.-].
func normalizeBaseDomain(raw string) (string, error) {
	domain := strings.ToLower(strings.TrimSpace(raw))
	domain = strings.TrimSuffix(domain, ".")

	if domain == "" || strings.Contains(domain, "/") || strings.Contains(domain, ":") || strings.Contains(domain, "..") {
		return "", errBaseDomainInvalid
	}
	for _, r := range domain {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
		default:
			return "", errBaseDomainInvalid
		}
	}
	return domain, nil
}

// domainInUse reports whether fqdn is already assigned to a project.
type domainInUse func(fqdn string) (bool, error)

// assignedProjectDomain computes the subdomain a project is assigned
// under baseDomain, retrying once with a 6-character suffix derived
// from projectID's hex digits if the plain candidate is taken. An
// empty baseDomain means no base domain is configured, so no domain is
// assigned at all.
func assignedProjectDomain(baseDomain, projectID, projectName string, inUse domainInUse) (string, error) {
	if baseDomain == "" {
		return "", nil
	}

	slug, err := slugifyProjectName(projectName)
	if err != nil {
		return "", err
	}
	label := truncateDNSLabel(slug)

	fqdn := label + "." + baseDomain
	used, err := inUse(fqdn)
	if err != nil {
		return "", err
	}
	if !used {
		return fqdn, nil
	}

	compactID := strings.ReplaceAll(projectID, "-", "")
	suffix := compactID
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	adjustedLabel := trimLabelForSuffix(label, len(suffix))
	fqdn = adjustedLabel + "-" + suffix + "." + baseDomain

	used, err = inUse(fqdn)
	if err != nil {
		return "", err
	}
	if used {
		return "", errDomainConflict
	}
	return fqdn, nil
}
