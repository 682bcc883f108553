package ratelimit

import (
	"net/http"
	"strings"
)

// unlimited is returned for requests that never count against a bucket.
var unlimited = &EndpointConfig{}

// MatchEndpoint returns the configuration for a request, or nil when the defaults apply.
// An exact path wins over a prefix; among prefixes (paths ending in "/") the longest wins.
// An empty Method matches every method. Health checks and CORS preflights are unlimited.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	if method == http.MethodOptions || (path == "/health" && method == http.MethodGet) {
		return unlimited
	}

	var best *EndpointConfig
	for i := range configs {
		c := &configs[i]
		if c.Method != "" && c.Method != method {
			continue
		}
		if c.Path == path {
			return c
		}
		if strings.HasSuffix(c.Path, "/") && strings.HasPrefix(path, c.Path) {
			if best == nil || len(c.Path) > len(best.Path) {
				best = c
			}
		}
	}
	return best
}
