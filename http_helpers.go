package main

import (
	"io"

	http "github.com/bogdanfinn/fhttp"
)

// PseudoHeaderOrder is the HTTP/2 pseudo-header order sent with every
// credentialed request. It belongs to the Chrome fingerprint alongside
// the TLS profile in tls_chrome.go and the header order in buildHeaders.
var PseudoHeaderOrder = []string{
	":method",
	":authority",
	":scheme",
	":path",
}

// readResponseBody drains a response through its declared content
// encoding. Listing pages and API envelopes arrive gzip or brotli
// compressed, and the glyph decoder needs the plain bytes. The response
// body must still be open when this is called.
func readResponseBody(resp *http.Response) ([]byte, error) {
	body := http.DecompressBody(resp)
	defer body.Close()
	return io.ReadAll(body)
}
