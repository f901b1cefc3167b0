package reachability

import (
	"testing"
)

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		target string
		valid  bool
	}{
		{"https://example.com", true},
		{"http://example.com:8080/generate_204", true},
		{"HTTPS://example.com", true},
		{"Http://example.com", true},
		{"http:foo", false},
		{"https://", false},
		{"example.com", false},
		{"ftp://example.com", false},
		{"://example.com", false},
		{"", false},
	}

	for _, tt := range tests {
		err := ValidateTarget(tt.target)
		if tt.valid && err != nil {
			t.Errorf("ValidateTarget(%q) error = %v, want nil", tt.target, err)
		} else if !tt.valid && err == nil {
			t.Errorf("ValidateTarget(%q) succeeded, want error", tt.target)
		}
	}
}
