package session

import (
	"math/rand"
	"strings"
	"testing"
)

func inPool(pool []string, value string) bool {
	for _, v := range pool {
		if v == value {
			return true
		}
	}
	return false
}

func TestRandomHeaders_BaseSet(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 50; i++ {
		h := RandomHeaders(rng, false, "", nil)

		if ua := h.Get("User-Agent"); !inPool(desktopUserAgents, ua) {
			t.Fatalf("unexpected desktop user agent %q", ua)
		}
		if v := h.Get("Accept"); !inPool(acceptValues, v) {
			t.Fatalf("unexpected accept value %q", v)
		}
		if v := h.Get("Accept-Language"); !inPool(acceptLanguages, v) {
			t.Fatalf("unexpected accept-language %q", v)
		}
		if v := h.Get("Accept-Encoding"); v != "gzip, deflate, br" {
			t.Fatalf("accept-encoding = %q", v)
		}
		for header, want := range map[string]string{
			"Connection":                "keep-alive",
			"Upgrade-Insecure-Requests": "1",
			"Sec-Fetch-Site":            "none",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-User":            "?1",
			"Sec-Fetch-Dest":            "document",
		} {
			if got := h.Get(header); got != want {
				t.Fatalf("%s = %q, want %q", header, got, want)
			}
		}
	}
}

func TestRandomHeaders_MobilePreference(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	mobileSeen, desktopSeen := 0, 0
	for i := 0; i < 300; i++ {
		ua := RandomHeaders(rng, true, "", nil).Get("User-Agent")
		switch {
		case inPool(mobileUserAgents, ua):
			mobileSeen++
		case inPool(desktopUserAgents, ua):
			desktopSeen++
		default:
			t.Fatalf("user agent %q not in any pool", ua)
		}
	}
	if mobileSeen == 0 || desktopSeen == 0 {
		t.Fatalf("mobile hint should mix pools, got mobile=%d desktop=%d", mobileSeen, desktopSeen)
	}

	for i := 0; i < 100; i++ {
		ua := RandomHeaders(rng, false, "", nil).Get("User-Agent")
		if inPool(mobileUserAgents, ua) {
			t.Fatalf("desktop request produced mobile user agent %q", ua)
		}
	}
}

func TestRandomHeaders_Referer(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	for i := 0; i < 100; i++ {
		if h := RandomHeaders(rng, false, "", nil); h.Get("Referer") != "" {
			t.Fatal("referer set without one being provided")
		}
	}

	withReferer, without := 0, 0
	for i := 0; i < 200; i++ {
		h := RandomHeaders(rng, false, "https://www.google.com/", nil)
		switch h.Get("Referer") {
		case "https://www.google.com/":
			withReferer++
		case "":
			without++
		default:
			t.Fatalf("unexpected referer %q", h.Get("Referer"))
		}
	}
	if withReferer == 0 || without == 0 {
		t.Fatalf("referer should be attached most but not all of the time, got with=%d without=%d", withReferer, without)
	}
	if withReferer <= without {
		t.Fatalf("referer should dominate, got with=%d without=%d", withReferer, without)
	}
}

func TestRandomHeaders_ExtraOverrides(t *testing.T) {
	rng := rand.New(rand.NewSource(4))

	h := RandomHeaders(rng, false, "", map[string]string{
		"User-Agent":   "custom-agent/1.0",
		"X-Request-Id": "abc123",
	})
	if got := h.Get("User-Agent"); got != "custom-agent/1.0" {
		t.Fatalf("extra header should override, got %q", got)
	}
	if got := h.Get("X-Request-Id"); got != "abc123" {
		t.Fatalf("extra header missing, got %q", got)
	}
}

func TestLooksBlocked(t *testing.T) {
	cases := []struct {
		name string
		body string
		want bool
	}{
		{"clean page", "<html><body>all good here</body></html>", false},
		{"captcha", "<html>please solve the CAPTCHA to continue</html>", true},
		{"access denied", "Access Denied: request rejected", true},
		{"unusual traffic", "we detected unusual traffic from your network", true},
		{"robot check", "Are you a robot? Confirm below.", true},
		{"marker beyond window", strings.Repeat("a", blockScanWindow) + "captcha", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := looksBlocked([]byte(tc.body)); got != tc.want {
				t.Fatalf("looksBlocked = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsSoftStatus(t *testing.T) {
	for _, code := range []int{403, 429, 503} {
		if !isSoftStatus(code) {
			t.Errorf("status %d should be soft", code)
		}
	}
	for _, code := range []int{200, 204, 302, 404, 500, 502} {
		if isSoftStatus(code) {
			t.Errorf("status %d should not be soft", code)
		}
	}
}
