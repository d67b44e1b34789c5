package analyzer

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// resolveLink resolves href against base and returns the absolute URL when it
// is an http(s) URL with a host. With a nil base only absolute hrefs resolve.
func resolveLink(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)

	var (
		u   *url.URL
		err error
	)
	if base != nil {
		u, err = base.Parse(href)
	} else {
		u, err = url.Parse(href)
	}
	if err != nil {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	if u.Hostname() == "" {
		return nil, false
	}
	return u, true
}

// siteKey is the value two hosts must share to be considered the same site:
// the registrable domain (eTLD+1) when one exists, otherwise the host itself.
func siteKey(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return ""
	}
	if net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// Single-label hosts and bare public suffixes.
		return host
	}
	return domain
}

// isInternal reports whether link points at the same site as base.
// Scheme and port are ignored. Without a base every link is external.
func isInternal(base, link *url.URL) bool {
	if base == nil {
		return false
	}
	baseKey := siteKey(base.Hostname())
	return baseKey != "" && baseKey == siteKey(link.Hostname())
}

// resolveRef resolves a non-link reference such as an image src or canonical
// href. ok is false when the value cannot be parsed.
func resolveRef(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	return u.String(), true
}
