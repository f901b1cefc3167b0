package reachability

import (
	"net/url"
	"strings"

	"github.com/go-errors/errors"
)

// ValidateTarget checks that target is an absolute http or https url with a
// host. The scheme is matched case-insensitively.
func ValidateTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return errors.Errorf("could not parse url: %v", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return errors.Errorf("unsupported scheme %q, want http or https", u.Scheme)
	}

	if u.Host == "" {
		return errors.Errorf("url %v has no host", target)
	}

	return nil
}
