package session

import (
	"math/rand"
	"net/http"
	"strings"
)

// Browser identity pools. Values are real browser strings kept current
// enough to blend into normal traffic; stale entries are worse than none.
var desktopUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
}

var mobileUserAgents = []string{
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8 Pro) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (Linux; Android 13; SM-G996B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Mobile Safari/537.36",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.9",
	"en-US,en;q=0.8,fr;q=0.6",
	"en-US,en;q=0.8,de;q=0.5",
}

var acceptValues = []string{
	"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
}

// blockPatterns are markers of challenge pages and WAF interstitials that
// arrive with a 200 status. Matched case-insensitively against the leading
// window of the body.
var blockPatterns = []string{
	"captcha",
	"recaptcha",
	"access denied",
	"verify you are human",
	"are you a robot",
	"unusual traffic",
	"blocked because",
	"forbidden",
}

// softStatusCodes are responses that signal rate limiting or a temporary
// block rather than a broken proxy.
var softStatusCodes = map[int]struct{}{
	http.StatusForbidden:          {},
	http.StatusTooManyRequests:    {},
	http.StatusServiceUnavailable: {},
}

// Emission odds for the optional headers. Real browsers do not send an
// identical header set on every navigation, so neither do we.
const (
	mobileUAChance     = 0.60
	refererChance      = 0.85
	dntChance          = 0.30
	cacheControlChance = 0.30
	pragmaChance       = 0.25
)

// blockScanWindow bounds how much of a body the block detector inspects.
const blockScanWindow = 4096

// RandomHeaders builds a browser-like header set for a single request.
// A mobile identity is preferred (not guaranteed) when mobile is set.
// referer is attached most of the time when non-empty, and extra entries
// override anything generated here.
func RandomHeaders(rng *rand.Rand, mobile bool, referer string, extra map[string]string) http.Header {
	uaPool := desktopUserAgents
	if mobile && rng.Float64() < mobileUAChance {
		uaPool = mobileUserAgents
	}

	h := http.Header{}
	h.Set("User-Agent", uaPool[rng.Intn(len(uaPool))])
	h.Set("Accept", acceptValues[rng.Intn(len(acceptValues))])
	h.Set("Accept-Language", acceptLanguages[rng.Intn(len(acceptLanguages))])
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Sec-Fetch-Dest", "document")

	if referer != "" && rng.Float64() < refererChance {
		h.Set("Referer", referer)
	}
	if rng.Float64() < dntChance {
		h.Set("DNT", "1")
	}
	if rng.Float64() < cacheControlChance {
		h.Set("Cache-Control", "max-age=0")
	}
	if rng.Float64() < pragmaChance {
		h.Set("Pragma", "no-cache")
	}

	for k, v := range extra {
		h.Set(k, v)
	}
	return h
}

// looksBlocked reports whether the leading window of a body contains a
// known challenge or block marker.
func looksBlocked(body []byte) bool {
	window := body
	if len(window) > blockScanWindow {
		window = window[:blockScanWindow]
	}
	text := strings.ToLower(string(window))
	for _, pattern := range blockPatterns {
		if strings.Contains(text, pattern) {
			return true
		}
	}
	return false
}

// isSoftStatus reports whether a status code indicates throttling or a
// temporary block.
func isSoftStatus(code int) bool {
	_, ok := softStatusCodes[code]
	return ok
}
