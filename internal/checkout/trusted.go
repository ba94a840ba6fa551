// Package checkout guards the payment redirect: a checkout URL is only
// handed to the browser after its host passes the trusted-domain check.
package checkout

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUntrustedRedirect marks a checkout URL whose host is not under the
// trusted payment domain. Navigation is aborted, never attempted.
var ErrUntrustedRedirect = errors.New("untrusted checkout redirect target")

// DefaultTrustedDomain is the payment provider domain accepted when no
// override is configured.
const DefaultTrustedDomain = "stripe.com"

// ValidateURL checks that rawURL is an https URL whose hostname is the
// trusted domain or a subdomain of it. The path and query are irrelevant: a
// host like evil.example stays untrusted no matter what the path mimics.
func ValidateURL(rawURL, trustedDomain string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUntrustedRedirect, err)
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q is not https", ErrUntrustedRedirect, parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host in %q", ErrUntrustedRedirect, rawURL)
	}
	if !trustedHost(host, trustedDomain) {
		return fmt.Errorf("%w: host %q is not under %q", ErrUntrustedRedirect, host, trustedDomain)
	}
	return nil
}

func trustedHost(host, domain string) bool {
	host = strings.ToLower(host)
	domain = strings.ToLower(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}
