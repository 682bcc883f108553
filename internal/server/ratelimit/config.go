package ratelimit

import (
	"math"
	"strings"
	"time"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (supports prefix matching)
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
	// Deferred quotas are charged by the handler once the request is accepted,
	// so malformed requests only count against the default limit.
	Deferred bool
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	DefaultBurst    int
	CleanupInterval time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// NewConfig derives the limiter configuration from a steady request rate per second
// and a burst size. A rate of zero disables limiting.
func NewConfig(rps float64, burst int, whitelist []string) *Config {
	if rps <= 0 {
		return &Config{Enabled: false}
	}
	return &Config{
		Enabled:         true,
		DefaultLimit:    int(math.Ceil(rps * 60)),
		DefaultWindow:   time.Minute,
		DefaultBurst:    burst,
		CleanupInterval: 5 * time.Minute,
		Whitelist:       parseIPList(strings.Join(whitelist, ",")),
		Blacklist:       map[string]bool{},
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the default endpoint-specific configurations.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Report generation calls the model once per section
		{Path: "/reports", Method: "POST", Limit: 10, Window: time.Hour, Burst: 2, Deferred: true},
		{Path: "/reports/stream", Method: "POST", Limit: 10, Window: time.Hour, Burst: 2, Deferred: true},

		{Path: "/reports/", Method: "DELETE", Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/reports/", Method: "POST", Limit: 100, Window: time.Minute, Burst: 10},
	}
}

// parseIPList parses a comma-separated list of IP addresses into a map.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	if list == "" {
		return result
	}

	for _, ip := range strings.Split(list, ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			result[ip] = true
		}
	}

	return result
}
