package origin

import "testing"

func TestNormalizeHeader(t *testing.T) {
	t.Run("normalizes scheme and host", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("HTTPS://Example.COM")
		if !ok {
			t.Fatalf("expected ok=true")
		}
		if normalized != "https://example.com" {
			t.Fatalf("normalized=%q, want %q", normalized, "https://example.com")
		}
		if host != "example.com" {
			t.Fatalf("host=%q, want %q", host, "example.com")
		}
	})

	t.Run("strips default ports", func(t *testing.T) {
		cases := map[string]string{
			"https://example.com:443": "https://example.com",
			"http://example.com:80":   "http://example.com",
			"http://example.com:8080": "http://example.com:8080",
		}
		for in, want := range cases {
			normalized, _, ok := NormalizeHeader(in)
			if !ok {
				t.Fatalf("expected ok=true for %q", in)
			}
			if normalized != want {
				t.Fatalf("normalized=%q, want %q", normalized, want)
			}
		}
	})

	t.Run("allows trailing slash", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("http://localhost:5173/")
		if !ok {
			t.Fatalf("expected ok=true")
		}
		if normalized != "http://localhost:5173" {
			t.Fatalf("normalized=%q, want %q", normalized, "http://localhost:5173")
		}
		if host != "localhost:5173" {
			t.Fatalf("host=%q, want %q", host, "localhost:5173")
		}
	})

	t.Run("brackets ipv6 literals", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("http://[2001:DB8::1]:8080")
		if !ok {
			t.Fatalf("expected ok=true")
		}
		if normalized != "http://[2001:db8::1]:8080" {
			t.Fatalf("normalized=%q", normalized)
		}
		if host != "[2001:db8::1]:8080" {
			t.Fatalf("host=%q", host)
		}
	})

	t.Run("allows null origin", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("null")
		if !ok {
			t.Fatalf("expected ok=true")
		}
		if normalized != "null" || host != "" {
			t.Fatalf("normalized=%q host=%q, want normalized=%q host=%q", normalized, host, "null", "")
		}
	})

	t.Run("rejects scheme other than http/https", func(t *testing.T) {
		if _, _, ok := NormalizeHeader("ftp://example.com"); ok {
			t.Fatalf("expected ok=false")
		}
	})

	t.Run("rejects path, query, credentials, fragment", func(t *testing.T) {
		cases := []string{
			"https://example.com/path",
			"https://example.com/?q=1",
			"https://user@example.com",
			"https://example.com/#frag",
		}
		for _, c := range cases {
			if _, _, ok := NormalizeHeader(c); ok {
				t.Fatalf("expected ok=false for %q", c)
			}
		}
	})

	t.Run("rejects bad ports", func(t *testing.T) {
		cases := []string{
			"https://example.com:0",
			"https://example.com:70000",
			"https://example.com:",
		}
		for _, c := range cases {
			if _, _, ok := NormalizeHeader(c); ok {
				t.Fatalf("expected ok=false for %q", c)
			}
		}
	})

	t.Run("rejects empty header", func(t *testing.T) {
		if _, _, ok := NormalizeHeader("   "); ok {
			t.Fatalf("expected ok=false")
		}
	})
}

func TestIsAllowed(t *testing.T) {
	t.Run("default is same host only", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("https://app.example.com")
		if !ok {
			t.Fatalf("NormalizeHeader ok=false")
		}
		if !IsAllowed(normalized, host, "app.example.com", nil) {
			t.Fatalf("expected same-host to be allowed")
		}
		// The request host canonicalizes under the origin's scheme, so the
		// default port compares equal.
		if !IsAllowed(normalized, host, "app.example.com:443", nil) {
			t.Fatalf("expected default-port host header to be allowed")
		}
		if IsAllowed(normalized, host, "app.example.com:8443", nil) {
			t.Fatalf("expected different port to be rejected")
		}
		if IsAllowed(normalized, host, "other.example.com", nil) {
			t.Fatalf("expected different host to be rejected")
		}
	})

	t.Run("same host is case insensitive", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("https://app.example.com")
		if !ok {
			t.Fatalf("NormalizeHeader ok=false")
		}
		if !IsAllowed(normalized, host, "App.Example.COM", nil) {
			t.Fatalf("expected case-insensitive host match")
		}
	})

	t.Run("allowlist matches exactly", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("https://app.example.com")
		if !ok {
			t.Fatalf("NormalizeHeader ok=false")
		}
		allowed := []string{"https://app.example.com"}
		if !IsAllowed(normalized, host, "unrelated.host", allowed) {
			t.Fatalf("expected allowlisted origin to pass regardless of host")
		}
		if IsAllowed("https://evil.example.com", "evil.example.com", "app.example.com", allowed) {
			t.Fatalf("expected non-listed origin to be rejected")
		}
	})

	t.Run("allowlist star matches everything", func(t *testing.T) {
		if !IsAllowed("https://anything.example.com", "anything.example.com", "x", []string{"*"}) {
			t.Fatalf("expected * to match")
		}
	})

	t.Run("allowlist overrides same-host fallback", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("https://app.example.com")
		if !ok {
			t.Fatalf("NormalizeHeader ok=false")
		}
		if IsAllowed(normalized, host, "app.example.com", []string{"https://other.example.com"}) {
			t.Fatalf("expected same-host to be rejected once an allowlist is set")
		}
	})

	t.Run("null origin", func(t *testing.T) {
		if IsAllowed("null", "", "app.example.com", nil) {
			t.Fatalf("expected null origin to fail the same-host check")
		}
		if !IsAllowed("null", "", "app.example.com", []string{"null"}) {
			t.Fatalf("expected explicitly allowlisted null origin to pass")
		}
	})
}
