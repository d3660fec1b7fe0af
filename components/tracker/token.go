package tracker

import "strings"

const basicPrefix = "Basic "

// AuthorizationHeader normalises a pasted token into a Basic Authorization
// header value. Whitespace is trimmed first; an existing "Basic " prefix
// (any case) is kept as-is. An empty token yields an empty header.
func AuthorizationHeader(token string) string {
	t := strings.TrimSpace(token)
	if t == "" {
		return ""
	}
	if len(t) >= len(basicPrefix) && strings.EqualFold(t[:len(basicPrefix)], basicPrefix) {
		return t
	}
	return basicPrefix + t
}
