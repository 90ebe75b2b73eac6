package crawler

import (
	"net/url"
	"strings"
)

// visitedSet remembers every absolute location a single crawl has fetched so
// a malformed next-location pointing backwards terminates the walk instead of
// looping it. It is owned by one crawl and needs no locking.
type visitedSet struct {
	entries map[string]struct{}
}

func newVisitedSet() *visitedSet {
	return &visitedSet{entries: make(map[string]struct{})}
}

// Seen reports whether the location was already visited.
func (v *visitedSet) Seen(u *url.URL) bool {
	_, ok := v.entries[canonicalKey(u)]
	return ok
}

// Mark records a visit.
func (v *visitedSet) Mark(u *url.URL) {
	if u == nil {
		return
	}
	v.entries[canonicalKey(u)] = struct{}{}
}

// Keys returns the canonical form of every visited location, for checkpoints.
func (v *visitedSet) Keys() []string {
	keys := make([]string, 0, len(v.entries))
	for k := range v.entries {
		keys = append(keys, k)
	}
	return keys
}

// Restore re-seeds the set from checkpointed keys.
func (v *visitedSet) Restore(keys []string) {
	for _, k := range keys {
		if k == "" {
			continue
		}
		v.entries[k] = struct{}{}
	}
}

// canonicalKey normalises a location so trivially different spellings of the
// same page (default ports, empty paths, case in the host) compare equal.
func canonicalKey(u *url.URL) string {
	if u == nil {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "http"
	}
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && port != defaultPortForScheme(scheme) {
		host = host + ":" + port
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	key := scheme + "://" + host + path
	if q := u.RawQuery; q != "" {
		key += "?" + q
	}
	return key
}

func defaultPortForScheme(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}
