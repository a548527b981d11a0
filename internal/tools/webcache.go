package tools

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultCacheTTL        = 15 * time.Minute
	defaultCacheMaxEntries = 100
)

// webCache caches fetched page content keyed by URL+options, bounded in both
// entry count and age.
type webCache struct {
	lru *expirable.LRU[string, string]
}

func newWebCache(maxEntries int, ttl time.Duration) *webCache {
	if maxEntries <= 0 {
		maxEntries = defaultCacheMaxEntries
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &webCache{lru: expirable.NewLRU[string, string](maxEntries, nil, ttl)}
}

func (c *webCache) get(key string) (string, bool) {
	return c.lru.Get(normalizeCacheKey(key))
}

func (c *webCache) set(key, value string) {
	c.lru.Add(normalizeCacheKey(key), value)
}

func normalizeCacheKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// --- SSRF protection ---

// checkSSRF rejects URLs whose host is a private, loopback or otherwise
// internal address, including hostnames that resolve to one.
func checkSSRF(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	hostname := parsed.Hostname()
	if hostname == "" {
		return fmt.Errorf("missing hostname")
	}

	if isBlockedHostname(hostname) {
		return fmt.Errorf("blocked hostname: %s", hostname)
	}

	if ip := net.ParseIP(hostname); ip != nil {
		if isInternalIP(ip) {
			return fmt.Errorf("private IP address not allowed: %s", hostname)
		}
		return nil
	}

	addrs, err := net.LookupIP(hostname)
	if err != nil {
		return fmt.Errorf("DNS resolution failed for %s: %w", hostname, err)
	}
	for _, addr := range addrs {
		if isInternalIP(addr) {
			return fmt.Errorf("hostname %s resolves to private IP %s", hostname, addr)
		}
	}
	return nil
}

func isBlockedHostname(hostname string) bool {
	hostname = strings.ToLower(hostname)
	if hostname == "localhost" || hostname == "metadata.google.internal" {
		return true
	}
	return strings.HasSuffix(hostname, ".localhost") ||
		strings.HasSuffix(hostname, ".local") ||
		strings.HasSuffix(hostname, ".internal")
}

// cgnat covers the carrier-grade NAT block, which net.IP helpers don't.
var cgnat = func() *net.IPNet {
	_, n, _ := net.ParseCIDR("100.64.0.0/10")
	return n
}()

func isInternalIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() ||
		cgnat.Contains(ip)
}
