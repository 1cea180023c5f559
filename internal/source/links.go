// Package source holds helpers shared by the protocol crawlers in its
// subpackages.
package source

import (
	"net/url"
	"strings"
)

// ResolveURL makes ref absolute against base. Unparseable input is returned
// trimmed but otherwise untouched so the parser can still judge it.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil || r.IsAbs() {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
