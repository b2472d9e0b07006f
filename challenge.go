package main

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// Challenge classifies a completed exchange. It is recomputed per response
// and never persisted.
type Challenge int

const (
	ChallengeNone Challenge = iota
	// ChallengeRedirect means the site bounced the request to an
	// interactive verification page.
	ChallengeRedirect
	// ChallengeAPI means a JSON endpoint answered with the challenge
	// status sentinel instead of data.
	ChallengeAPI
)

// ClassifyResponse inspects a finished exchange for a redirect challenge.
// The marker is configuration: the upstream site owns the URL shape and
// changes it from time to time.
func ClassifyResponse(finalURL, marker string) Challenge {
	if marker != "" && strings.Contains(finalURL, marker) {
		return ChallengeRedirect
	}
	return ChallengeNone
}

// ClassifyAPIBody inspects a JSON envelope for the challenge sentinel.
// A body that doesn't parse as JSON is not a challenge; the caller treats
// it as a transient fault.
func ClassifyAPIBody(body []byte, challengeCode int64) Challenge {
	code := gjson.GetBytes(body, "code")
	if code.Exists() && code.Int() == challengeCode {
		return ChallengeAPI
	}
	return ChallengeNone
}

// VerifyPageURL extracts the verification page URL an API challenge points
// the operator at. Empty when the envelope doesn't carry one.
func VerifyPageURL(body []byte) string {
	return gjson.GetBytes(body, "customData.verifyPageUrl").String()
}

// ChallengeNotifier is the single user-interaction surface of the engine:
// it blocks until a human has resolved the verification at the given URL.
// Tests inject a stub; production prompts on the console.
type ChallengeNotifier interface {
	AwaitResolution(url string)
}

// StdinNotifier prompts the operator with the offending URL and resumes
// when a line is read. Only the calling goroutine blocks; concurrent
// workers that don't need a credential keep going.
type StdinNotifier struct {
	in     *bufio.Reader
	logger Logger
}

func NewStdinNotifier(logger Logger) *StdinNotifier {
	return &StdinNotifier{
		in:     bufio.NewReader(os.Stdin),
		logger: logger,
	}
}

func (n *StdinNotifier) AwaitResolution(url string) {
	n.logger.Log("Verification required. Complete it in a browser, then press Enter: %s", url)
	if _, err := n.in.ReadString('\n'); err != nil && err != io.EOF {
		n.logger.Log("Reading acknowledgement failed: %v", err)
	}
}

// NoopNotifier acknowledges immediately. Used by tests and headless runs
// where a challenge should not block.
type NoopNotifier struct{}

func (NoopNotifier) AwaitResolution(string) {}
