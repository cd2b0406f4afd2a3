package deploy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRepoURL(t *testing.T) {
	tests := []struct {
		name    string
		repoURL string
		wantErr bool
	}{
		{"valid https", "https://github.com/acme/app.git", false},
		{"valid https with path chars", "https://git.example.com/org/repo.git#readme", false},
		{"ssh rejected", "git@github.com:acme/app.git", true},
		{"plain http rejected", "http://github.com/acme/app.git", true},
		{"shell metacharacter rejected", "https://github.com/acme/app.git; rm -rf /", true},
		{"empty rejected", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRepoURL(tt.repoURL)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateBranch(t *testing.T) {
	tests := []struct {
		name    string
		branch  string
		wantErr bool
	}{
		{"simple name", "main", false},
		{"with dashes and underscores", "release-1_0", false},
		{"slash rejected", "feature/foo", true},
		{"space rejected", "main branch", true},
		{"empty rejected", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBranch(tt.branch)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
