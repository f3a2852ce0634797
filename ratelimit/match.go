package ratelimit

import "strings"

// match reports whether s matches pattern. A pattern without '*' is an
// exact string; '*' spans any run of characters, so "ip:10.0.*",
// "*.internal" and "user:svc-*" all work. Matching is case-sensitive.
func match(pattern, s string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == s
	}

	parts := strings.Split(pattern, "*")

	// The first segment anchors at the start, the last at the end;
	// middle segments are found left to right.
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]

	last := len(parts) - 1
	for _, seg := range parts[1:last] {
		if seg == "" {
			continue
		}
		idx := strings.Index(s, seg)
		if idx < 0 {
			return false
		}
		s = s[idx+len(seg):]
	}

	return strings.HasSuffix(s, parts[last])
}

// matchAny reports whether any pattern matches any of the values. Empty
// values are skipped so a blank client address cannot match "*".
func matchAny(patterns []string, values ...string) bool {
	for _, p := range patterns {
		for _, v := range values {
			if v != "" && match(p, v) {
				return true
			}
		}
	}
	return false
}
