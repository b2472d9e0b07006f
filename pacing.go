package main

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
)

// PacingRule suspends the crawl for SleepSeconds once every Every
// credentialed requests.
type PacingRule struct {
	Every        int
	SleepSeconds int
}

// ParsePacingTable parses a "requestCount,sleepSeconds;..." schedule into
// priority order. Rules declared later in the string are evaluated first,
// so an operator can append a coarser long-interval rule that wins over
// the short ones when both match.
func ParsePacingTable(s string) ([]PacingRule, error) {
	entries := strings.Split(strings.TrimSuffix(strings.TrimSpace(s), ";"), ";")
	rules := make([]PacingRule, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		parts := strings.Split(entries[i], ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed pacing rule %q (want \"count,seconds\")", entries[i])
		}
		every, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil || every <= 0 {
			return nil, fmt.Errorf("pacing rule %q: request count must be a positive integer", entries[i])
		}
		sleep, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || sleep <= 0 {
			return nil, fmt.Errorf("pacing rule %q: sleep seconds must be a positive integer", entries[i])
		}
		rules = append(rules, PacingRule{Every: every, SleepSeconds: sleep})
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("empty pacing table")
	}
	return rules, nil
}

// Pacer tracks the global request counter and enforces the anti-ban
// suspension schedule. One Pacer is shared by every credentialed request
// of a run; callers serialize through its mutex.
type Pacer struct {
	mu     sync.Mutex
	rules  []PacingRule
	count  int
	sleep  func(time.Duration)
	logger Logger
}

// NewPacer builds a Pacer from an already-parsed table.
func NewPacer(rules []PacingRule, logger Logger) *Pacer {
	return &Pacer{
		rules:  rules,
		sleep:  time.Sleep,
		logger: logger,
	}
}

// Count returns the number of credentialed requests dispatched so far.
func (p *Pacer) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// RequestDispatched increments the global counter and, when a rule's
// modulus is hit, suspends the calling goroutine for the rule's duration.
// The very first request never sleeps, and at most one rule fires per
// request even when several match.
func (p *Pacer) RequestDispatched() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.count++
	if p.count == 1 {
		return
	}

	for _, rule := range p.rules {
		if p.count%rule.Every != 0 {
			continue
		}
		p.logger.Log("Pacing: %d requests dispatched, sleeping %ds", p.count, rule.SleepSeconds)
		p.suspend(rule.SleepSeconds)
		break
	}
}

// suspend sleeps second by second with 1-10% jitter per tick, so progress
// stays observable and the cadence doesn't look machine-exact.
func (p *Pacer) suspend(seconds int) {
	for i := 0; i < seconds; i++ {
		jitter := time.Duration(rand.Intn(10)+1) * 10 * time.Millisecond
		p.sleep(time.Second + jitter)
	}
}
