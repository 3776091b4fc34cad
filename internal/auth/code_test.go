package auth

import (
	"strings"
	"testing"
)

func TestGenerateCode_Shape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("generate code: %v", err)
		}
		if len(code) != 9 {
			t.Errorf("code length = %d, want 9", len(code))
		}
		for _, c := range code {
			if !strings.ContainsRune(codeCharset, c) {
				t.Errorf("code %q contains %q outside charset", code, c)
			}
		}
		seen[code] = true
	}
	if len(seen) < 49 {
		t.Errorf("expected near-unique codes, got %d distinct of 50", len(seen))
	}
}

func TestNormalizeIP(t *testing.T) {
	cases := map[string]string{
		"203.0.113.7":      "203.0.113.7",
		"  203.0.113.7  ":  "203.0.113.7",
		"FE80::1%ETH0":     "fe80::1%eth0",
		"bad input here":   "bad-input-here",
	}
	for in, want := range cases {
		if got := NormalizeIP(in); got != want {
			t.Errorf("NormalizeIP(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenerateAvatarURL(t *testing.T) {
	url := GenerateAvatarURL("Ada Lovelace")
	if !strings.Contains(url, "ui-avatars.com") {
		t.Errorf("unexpected avatar host: %q", url)
	}
	if strings.Contains(url, " ") {
		t.Errorf("name must be escaped: %q", url)
	}
}

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"ada@example.com": "ad*@example.com",
		"ab@example.com":  "**@example.com",
		"not-an-email":    "****",
	}
	for in, want := range cases {
		if got := maskEmail(in); got != want {
			t.Errorf("maskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
