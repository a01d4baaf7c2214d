// Package validate provides input validation helpers for configuration and
// CLI input.
package validate

import (
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/manav03panchal/tabula/internal/errors"
)

const (
	// MaxURLLength is the maximum length for a URL.
	MaxURLLength = 2048
	// MaxIdentifierLength is PostgreSQL's identifier limit (NAMEDATALEN - 1).
	MaxIdentifierLength = 63
)

// identifierRegex matches the physical table and column names the SQL
// builders accept without surprises.
var identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// Identifier validates a physical column name.
func Identifier(field, name string) error {
	if name == "" {
		return errors.ValidationField(field, "cannot be empty", nil)
	}
	if len(name) > MaxIdentifierLength {
		return errors.ValidationField(field,
			"'"+name+"' is longer than "+strconv.Itoa(MaxIdentifierLength)+" bytes", nil)
	}
	if !identifierRegex.MatchString(name) {
		return errors.ValidationField(field,
			"'"+name+"' must start with a letter or underscore and contain only letters, digits, '_' or '$'", nil)
	}
	return nil
}

// QualifiedIdentifier validates a schema-qualified name like bse1.tbl_people.
// The schema part is optional.
func QualifiedIdentifier(field, name string) error {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return errors.ValidationField(field, "'"+name+"' has more than one '.'", nil)
	}
	for _, p := range parts {
		if err := Identifier(field, p); err != nil {
			return err
		}
	}
	return nil
}

// URL validates a URL for use as a webhook endpoint.
func URL(rawURL string) error {
	if rawURL == "" {
		return errors.ValidationField("url", "URL cannot be empty", nil)
	}
	if len(rawURL) > MaxURLLength {
		return errors.ValidationField("url", "URL too long; URLs must be 2048 characters or fewer", nil)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.ValidationField("url", "invalid URL format", err)
	}

	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.ValidationField("url", "URLs must use https:// (or http:// for localhost)", nil)
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return errors.ValidationField("url", "invalid URL: missing hostname", nil)
	}

	isLocalhost := hostname == "localhost" || hostname == "127.0.0.1" || hostname == "::1"

	// Require HTTPS for non-localhost
	if parsed.Scheme == "http" && !isLocalhost {
		return errors.ValidationField("url", "HTTP is only allowed for localhost; use https://", nil)
	}

	// SSRF protection
	if !isLocalhost {
		if err := checkInternalIP(hostname); err != nil {
			return err
		}
	}

	return nil
}

// checkInternalIP checks if a hostname resolves to an internal IP.
func checkInternalIP(hostname string) error {
	if ip := net.ParseIP(hostname); ip != nil {
		if isInternalIP(ip) {
			return errors.ValidationField("url", "internal IP addresses are not allowed", nil)
		}
		return nil
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		// The notifier reports the failure on first delivery.
		return nil
	}

	for _, ip := range ips {
		if isInternalIP(ip) {
			return errors.ValidationField("url", "hostname "+hostname+" resolves to an internal IP", nil)
		}
	}

	return nil
}

// privateRanges are the networks a webhook may not target.
var privateRanges = []string{
	"10.0.0.0/8",     // RFC 1918
	"172.16.0.0/12",  // RFC 1918
	"192.168.0.0/16", // RFC 1918
	"127.0.0.0/8",    // Loopback (except explicit localhost check)
	"169.254.0.0/16", // Link-local
	"fc00::/7",       // IPv6 private
	"fe80::/10",      // IPv6 link-local
	"::1/128",        // IPv6 loopback
}

// isInternalIP checks if an IP is in a private/internal range.
func isInternalIP(ip net.IP) bool {
	for _, cidr := range privateRanges {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// NonEmpty validates that a string is not empty.
func NonEmpty(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.ValidationField(field, "cannot be empty", nil)
	}
	return nil
}

// InRange validates that an integer is within [min, max].
func InRange(field string, value, min, max int) error {
	if value < min || value > max {
		return errors.ValidationField(field,
			"must be between "+strconv.Itoa(min)+" and "+strconv.Itoa(max), nil)
	}
	return nil
}
