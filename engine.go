package main

import (
	"fmt"
	"os"
	"sync"

	http "github.com/bogdanfinn/fhttp"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Logger is the minimal logging surface shared by all components.
type Logger interface {
	Log(format string, args ...any)
}

// RequestMode tags a logical request with the capability set it needs.
// Exactly one mode per request; a retry re-uses the same mode.
type RequestMode int

const (
	// ModeNoHeader issues a bare call with no pacing, credentials, or
	// challenge handling. Used for asset fetches (fonts, stylesheets)
	// that are exempt from the anti-ban accounting.
	ModeNoHeader RequestMode = iota
	ModeNoProxyNoCookie
	ModeNoProxyWithCookie
	ModeProxyNoCookie
	ModeProxyWithCookie
)

func (m RequestMode) valid() bool {
	return m >= ModeNoHeader && m <= ModeProxyWithCookie
}

func (m RequestMode) usesProxy() bool {
	return m == ModeProxyNoCookie || m == ModeProxyWithCookie
}

func (m RequestMode) needsCookie() bool {
	return m == ModeNoProxyWithCookie || m == ModeProxyWithCookie
}

func (m RequestMode) String() string {
	switch m {
	case ModeNoHeader:
		return "no header"
	case ModeNoProxyNoCookie:
		return "no proxy, no cookie"
	case ModeNoProxyWithCookie:
		return "no proxy, cookie"
	case ModeProxyNoCookie:
		return "proxy, no cookie"
	case ModeProxyWithCookie:
		return "proxy, cookie"
	}
	return fmt.Sprintf("RequestMode(%d)", int(m))
}

// Response is the engine's view of a completed exchange. URL is the final
// URL after redirects, which is where verification bounces show up.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
}

// httpDoer is the slice of tls_client.HttpClient the engine needs.
// Tests supply a fake.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
	SetProxy(proxyURL string) error
}

// Engine is the request orchestrator: it paces outbound traffic, attaches
// rotating credentials, routes responses through challenge handling, and
// absorbs transient faults so callers only ever see clean responses or
// fatal conditions. All shared state (counter, pool, cold-start flag) is
// injected and lock-protected; tests construct a fresh Engine per case.
type Engine struct {
	cfg      *Config
	client   httpDoer
	pacer    *Pacer
	creds    *CredentialPool
	notifier ChallengeNotifier
	logger   Logger

	mu        sync.Mutex
	coldStart bool

	// clientMu spans SetProxy through Do on proxied attempts. The proxy
	// lives on the shared client, so without it two workers would both
	// ride whichever slot was set last while a loaned slot goes unused.
	clientMu sync.Mutex

	// fatalf terminates the process in production. Overridable so tests
	// can observe budget exhaustion instead of exiting.
	fatalf func(format string, args ...any)
}

// NewEngine wires an orchestrator from its collaborators.
func NewEngine(cfg *Config, client httpDoer, pacer *Pacer, creds *CredentialPool, notifier ChallengeNotifier, logger Logger) *Engine {
	e := &Engine{
		cfg:       cfg,
		client:    client,
		pacer:     pacer,
		creds:     creds,
		notifier:  notifier,
		logger:    logger,
		coldStart: cfg.ColdStart,
	}
	e.fatalf = func(format string, args ...any) {
		e.logger.Log("FATAL: "+format, args...)
		os.Exit(1)
	}
	return e
}

// NewDefaultEngine builds an Engine with the production HTTP client,
// pacing table, credential pool, and console notifier.
func NewDefaultEngine(cfg *Config, logger Logger) (*Engine, error) {
	rules, err := ParsePacingTable(cfg.PacingTable)
	if err != nil {
		return nil, err
	}

	client, err := NewClient(nil, "", cfg.ProxyTimeoutSeconds)
	if err != nil {
		return nil, err
	}

	pool := NewCredentialPool(cfg, logger)
	return NewEngine(cfg, client, NewPacer(rules, logger), pool, NewStdinNotifier(logger), logger), nil
}

func shortID() string {
	return uuid.New().String()[:8]
}

// Dispatch performs one logical GET. Credentialed modes tick the pacer,
// carry browser headers (plus the session cookie when the mode asks for
// one), and loop through challenge handling until the response is clean.
// Proxied modes additionally consume a pool slot per attempt; a network
// failure through a proxy retries immediately with the next slot, with no
// ceiling unless one is configured. This unbounded retry is an accepted
// liveness tradeoff: rotation through fresh exits is expected to succeed
// eventually, and capping it would turn a bad proxy batch into a crawl
// abort.
func (e *Engine) Dispatch(rawURL string, mode RequestMode) (*Response, error) {
	if !mode.valid() {
		panic(fmt.Sprintf("invalid request mode %d", int(mode)))
	}

	if mode == ModeNoHeader {
		return e.bareDispatch(rawURL)
	}

	rid := shortID()
	proxyFailures := 0

	for {
		e.pacer.RequestDispatched()

		useProxy := mode.usesProxy() && e.cfg.UseProxy

		var resp *Response
		var err error
		if useProxy {
			var proxyURL string
			proxyURL, err = e.creds.AcquireProxyURL()
			if err != nil {
				e.fatalf("acquiring proxy: %v", err)
				return nil, err
			}
			e.clientMu.Lock()
			if err = e.client.SetProxy(proxyURL); err != nil {
				e.clientMu.Unlock()
				return nil, fmt.Errorf("setting proxy: %w", err)
			}
			resp, err = e.do(rid, rawURL, mode)
			e.clientMu.Unlock()
		} else {
			resp, err = e.do(rid, rawURL, mode)
		}

		if err != nil {
			if useProxy && IsRetryableError(err) {
				proxyFailures++
				e.logger.Log("[%s] Proxy request failed (attempt %d): %v", rid, proxyFailures, err)
				if e.cfg.ProxyRetryLimit > 0 && proxyFailures >= e.cfg.ProxyRetryLimit {
					return nil, fmt.Errorf("proxy retry limit (%d) reached: %w", e.cfg.ProxyRetryLimit, err)
				}
				continue
			}
			return nil, err
		}

		if ClassifyResponse(resp.URL, e.cfg.ChallengeMarker) == ChallengeRedirect {
			if mode == ModeProxyNoCookie && !e.cfg.UseProxy {
				e.logger.Log("[%s] Verification page hit, skipping prompt on proxyless no-cookie call: %s", rid, resp.URL)
			} else {
				e.notifier.AwaitResolution(resp.URL)
				e.creds.RefreshCookie()
			}
			continue
		}

		return resp, nil
	}
}

// DispatchAPI wraps Dispatch for JSON endpoints that answer with a numeric
// status envelope. It enforces the retry budget, treats a parse failure as
// one consumed attempt, and on the first credentialed call of the run
// handles an expected early-session challenge outside the budget.
// Exhausting the budget is fatal: it means the cookie or the proxy batch
// is bad, not that the site hiccuped.
func (e *Engine) DispatchAPI(rawURL string) (*Response, error) {
	attempts := e.retryBudget()

	for attempts > 0 {
		attempts--

		resp, err := e.Dispatch(rawURL, ModeProxyNoCookie)
		if err != nil {
			return nil, err
		}

		code := gjson.GetBytes(resp.Body, "code")
		if !code.Exists() {
			e.logger.Log("API response not parseable as envelope, retrying (%d attempts left)", attempts)
			continue
		}

		if ClassifyAPIBody(resp.Body, e.cfg.ChallengeCode) == ChallengeAPI && e.takeColdStart() {
			e.notifier.AwaitResolution(VerifyPageURL(resp.Body))
			resp, err = e.Dispatch(rawURL, ModeProxyNoCookie)
			if err != nil {
				return nil, err
			}
			code = gjson.GetBytes(resp.Body, "code")
		}

		if code.Exists() && code.Int() == e.cfg.SuccessCode {
			return resp, nil
		}

		if attempts > 0 {
			e.logger.Log("API status %s, retrying (%d attempts left)", code.Raw, attempts)
		}
	}

	e.fatalf("API retry budget exhausted for %s: check cookie and token validity, or the proxy batch may be low quality", rawURL)
	return nil, NewFatalError(fmt.Errorf("api retry budget exhausted for %s", rawURL))
}

// retryBudget derives the attempt count from configuration: the historical
// default of 5 attempts, or the configured ceiling plus one.
func (e *Engine) retryBudget() int {
	if e.cfg.RetryCount == 0 {
		return 5
	}
	return e.cfg.RetryCount + 1
}

// takeColdStart consumes the cold-start flag. True exactly once per run.
func (e *Engine) takeColdStart() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.coldStart {
		e.coldStart = false
		return true
	}
	return false
}

// bareDispatch is the uncredentialed path: no pacing tick, no headers, no
// challenge handling. Relies on the transport's own timeout.
func (e *Engine) bareDispatch(rawURL string) (*Response, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return e.exchange(req, rawURL)
}

// do issues a credentialed GET with ordered browser headers.
func (e *Engine) do(rid, rawURL string, mode RequestMode) (*Response, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header = e.buildHeaders(mode.needsCookie())

	resp, err := e.exchange(req, rawURL)
	if err != nil {
		e.logger.Log("[%s] GET %s -> error: %v", rid, rawURL, err)
		return nil, err
	}
	e.logger.Log("[%s] GET %s -> %d", rid, rawURL, resp.StatusCode)
	return resp, nil
}

func (e *Engine) exchange(req *http.Request, rawURL string) (*Response, error) {
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readResponseBody(resp)
	if err != nil {
		return nil, err
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{URL: finalURL, StatusCode: resp.StatusCode, Body: body}, nil
}

// buildHeaders assembles the browser-shaped header set. Header order
// matters to the target's fingerprinting, hence the explicit order keys.
func (e *Engine) buildHeaders(withCookie bool) http.Header {
	h := http.Header{
		"sec-ch-ua":          {DefaultProfile.SecChUa},
		"sec-ch-ua-mobile":   {DefaultProfile.Mobile},
		"sec-ch-ua-platform": {DefaultProfile.Platform},
		"user-agent":         {e.cfg.UserAgent},
		"accept":             {"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"},
		"accept-encoding":    {"gzip, deflate, br"},
		"accept-language":    {"zh-CN,zh;q=0.9,en;q=0.8"},
		http.HeaderOrderKey: {
			"sec-ch-ua",
			"sec-ch-ua-mobile",
			"sec-ch-ua-platform",
			"user-agent",
			"accept",
			"accept-encoding",
			"accept-language",
			"cookie",
		},
		http.PHeaderOrderKey: PseudoHeaderOrder,
	}
	if withCookie {
		h["cookie"] = []string{e.creds.Cookie()}
	}
	return h
}
