package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
)

const proxySupplyTimeout = 15 * time.Second

// ProxyEndpoint is a single outbound egress address.
type ProxyEndpoint struct {
	Host string
	Port string
}

// URL formats the endpoint as a proxy URL.
func (p ProxyEndpoint) URL() string {
	return fmt.Sprintf("http://%s:%s", p.Host, p.Port)
}

// CredentialPool owns the rotating proxy slots and the session cookie.
// Proxies are single-use: a popped slot is never returned, even when the
// request through it fails, so a bad exit is naturally rotated away.
// Cookies are shared read-only until explicitly refreshed.
type CredentialPool struct {
	mu     sync.Mutex
	cfg    *Config
	pool   []ProxyEndpoint
	fetch  func(url string) ([]byte, error)
	logger Logger
}

// NewCredentialPool builds an empty pool; the first AcquireProxyURL call
// triggers a refill in pool mode.
func NewCredentialPool(cfg *Config, logger Logger) *CredentialPool {
	return &CredentialPool{
		cfg:    cfg,
		fetch:  fetchProxySupply,
		logger: logger,
	}
}

// AcquireProxyURL hands out one proxy URL. In pool mode it pops the oldest
// slot, refilling from the supply endpoint when the pool runs dry; in
// gateway mode it returns the fixed authenticated gateway. A failed refill
// or an unset strategy is fatal: the crawl cannot proceed without proxies
// once proxy mode is selected.
func (c *CredentialPool) AcquireProxyURL() (string, error) {
	switch {
	case c.cfg.PoolMode():
		c.mu.Lock()
		defer c.mu.Unlock()
		if len(c.pool) == 0 {
			if err := c.refill(); err != nil {
				return "", NewFatalError(fmt.Errorf("proxy pool refill: %w", err))
			}
		}
		ep := c.pool[0]
		c.pool = c.pool[1:]
		return ep.URL(), nil

	case c.cfg.GatewayMode():
		return c.cfg.GatewayURL(), nil

	default:
		return "", NewFatalError(fmt.Errorf("proxying enabled but neither pool nor gateway mode is configured"))
	}
}

// refill fetches a fresh batch from the supply endpoint and expands each
// returned entry into RepeatFactor duplicate slots, allowing short-term
// reuse under the rotate-through-a-small-set policy. Caller holds c.mu.
func (c *CredentialPool) refill() error {
	body, err := c.fetch(c.cfg.PoolSupplyURL)
	if err != nil {
		return fmt.Errorf("supply fetch failed: %w", err)
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return fmt.Errorf("supply endpoint returned non-array payload: %.120s", body)
	}

	repeat := c.cfg.RepeatFactor
	if repeat < 1 {
		repeat = 1
	}

	before := len(c.pool)
	for _, entry := range parsed.Array() {
		ip := entry.Get("ip").String()
		port := entry.Get("port").String()
		if ip == "" || port == "" {
			return fmt.Errorf("supply entry missing ip/port: %s", entry.Raw)
		}
		for i := 0; i < repeat; i++ {
			c.pool = append(c.pool, ProxyEndpoint{Host: ip, Port: port})
		}
	}

	if len(c.pool) == before {
		return fmt.Errorf("supply endpoint returned no proxies")
	}

	c.logger.Log("Proxy pool refilled: %d slots", len(c.pool))
	return nil
}

// PoolSize returns the number of unused slots. Mainly for tests and logs.
func (c *CredentialPool) PoolSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pool)
}

// Cookie returns the configured session cookie verbatim.
func (c *CredentialPool) Cookie() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Cookie
}

// RefreshCookie re-reads the cookie from external configuration, for use
// after a manual verification changed the session.
func (c *CredentialPool) RefreshCookie() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.ReloadCookie()
	c.logger.Log("Cookie refreshed from configuration")
}

// fetchProxySupply GETs the supply endpoint. This is out-of-band traffic to
// our own supplier, not to the target site, so plain fasthttp is enough.
func fetchProxySupply(url string) ([]byte, error) {
	status, body, err := fasthttp.GetTimeout(nil, url, proxySupplyTimeout)
	if err != nil {
		return nil, err
	}
	if status != fasthttp.StatusOK {
		return nil, fmt.Errorf("supply endpoint returned status %d", status)
	}
	return body, nil
}
