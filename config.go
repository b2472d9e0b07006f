package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the configuration surface consumed by the crawl engine.
// All values come from the environment (a .env file is loaded at startup),
// so the same binary can be pointed at a different city, cookie, or proxy
// supplier without a rebuild.
type Config struct {
	UserAgent string
	Cookie    string

	// PacingTable is the raw "requestCount,sleepSeconds;..." schedule.
	// Rules declared later take priority; see ParsePacingTable.
	PacingTable string

	// UseProxy enables proxied dispatch for the proxy-tagged modes.
	// When disabled those modes fall back to the local IP.
	UseProxy bool

	// Pool mode: bulk-fetch endpoint returning a JSON array of {ip, port}.
	PoolSupplyURL string
	RepeatFactor  int // duplicate slots per fetched proxy

	// Gateway mode: single authenticated proxy embedded in every request.
	GatewayID   string
	GatewayKey  string
	GatewayHost string
	GatewayPort string

	// RetryCount is the configured ceiling for API retries.
	// 0 means "use the default budget"; see Engine.retryBudget.
	RetryCount int

	// ProxyRetryLimit bounds the otherwise unlimited retry loop on proxy
	// connection failures. 0 keeps the historical unlimited behavior.
	ProxyRetryLimit int

	// Challenge markers. The upstream site can change these, so they are
	// configuration, not constants.
	ChallengeMarker string // URL substring signaling redirect-to-verification
	ChallengeCode   int64  // API status sentinel for a challenge
	SuccessCode     int64  // API status sentinel for success

	// ColdStart marks the first credentialed call of the run, where an
	// early-session challenge is expected and handled outside the budget.
	ColdStart bool

	ProxyTimeoutSeconds int

	// Crawl target.
	CityID      string
	Keyword     string
	SearchPages int
	OutputFile  string
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func envBool(key string) bool {
	switch os.Getenv(key) {
	case "1", "true", "True", "yes":
		return true
	}
	return false
}

// LoadConfig reads the configuration from the environment and validates it.
// A validation failure here is fatal for the process: the crawl cannot run
// with a malformed pacing table, a missing User-Agent, or proxying enabled
// without a proxy strategy.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		UserAgent:       os.Getenv("DIANPING_USER_AGENT"),
		Cookie:          os.Getenv("DIANPING_COOKIE"),
		PacingTable:     envOr("DIANPING_PACING_TABLE", "25,5;100,30"),
		UseProxy:        envBool("DIANPING_USE_PROXY"),
		PoolSupplyURL:   os.Getenv("DIANPING_PROXY_POOL_URL"),
		GatewayID:       os.Getenv("DIANPING_PROXY_GATEWAY_ID"),
		GatewayKey:      os.Getenv("DIANPING_PROXY_GATEWAY_KEY"),
		GatewayHost:     os.Getenv("DIANPING_PROXY_GATEWAY_HOST"),
		GatewayPort:     os.Getenv("DIANPING_PROXY_GATEWAY_PORT"),
		ChallengeMarker: envOr("DIANPING_CHALLENGE_MARKER", "verify"),
		ColdStart:       true,
		CityID:          envOr("DIANPING_CITY_ID", "1"),
		Keyword:         os.Getenv("DIANPING_KEYWORD"),
		OutputFile:      envOr("DIANPING_OUTPUT_FILE", "shops.csv"),
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("DIANPING_USER_AGENT must not be empty")
	}

	var err error
	if cfg.RepeatFactor, err = envInt("DIANPING_PROXY_REPEAT", 1); err != nil {
		return nil, err
	}
	if cfg.RetryCount, err = envInt("DIANPING_RETRY_COUNT", 0); err != nil {
		return nil, err
	}
	if cfg.ProxyRetryLimit, err = envInt("DIANPING_PROXY_RETRY_LIMIT", 0); err != nil {
		return nil, err
	}
	if cfg.ProxyTimeoutSeconds, err = envInt("DIANPING_PROXY_TIMEOUT", 10); err != nil {
		return nil, err
	}
	if cfg.SearchPages, err = envInt("DIANPING_SEARCH_PAGES", 1); err != nil {
		return nil, err
	}

	code, err := envInt("DIANPING_CHALLENGE_CODE", 406)
	if err != nil {
		return nil, err
	}
	cfg.ChallengeCode = int64(code)

	code, err = envInt("DIANPING_SUCCESS_CODE", 200)
	if err != nil {
		return nil, err
	}
	cfg.SuccessCode = int64(code)

	if _, err := ParsePacingTable(cfg.PacingTable); err != nil {
		return nil, fmt.Errorf("DIANPING_PACING_TABLE: %w", err)
	}

	if cfg.UseProxy && !cfg.PoolMode() && !cfg.GatewayMode() {
		return nil, fmt.Errorf("DIANPING_USE_PROXY is set but neither a pool URL nor gateway credentials are configured")
	}

	return cfg, nil
}

// PoolMode reports whether proxies are bulk-fetched from a supply endpoint.
func (c *Config) PoolMode() bool {
	return c.PoolSupplyURL != ""
}

// GatewayMode reports whether a single authenticated gateway proxy is used.
func (c *Config) GatewayMode() bool {
	return c.GatewayHost != "" && c.GatewayPort != ""
}

// GatewayURL builds the authenticated gateway proxy URL.
func (c *Config) GatewayURL() string {
	return fmt.Sprintf("http://%s:%s@%s:%s", c.GatewayID, c.GatewayKey, c.GatewayHost, c.GatewayPort)
}

// ReloadCookie re-reads the cookie from the .env file, for use after manual
// verification changed the session. Overload so an edited file wins over
// the value captured at startup.
func (c *Config) ReloadCookie() {
	_ = godotenv.Overload()
	c.Cookie = os.Getenv("DIANPING_COOKIE")
}
