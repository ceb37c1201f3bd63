package safeurl

import "testing"

func TestIsHTTPOrHTTPS(t *testing.T) {
	tests := []struct {
		u    string
		want bool
	}{
		{"http://example.com/a.jpeg", true},
		{"https://cdn.example/x.mp4?sig=1", true},
		{"file:///etc/passwd", false},
		{"ftp://x/y", false},
		{"assets/1.jpeg", false},
		{"http://", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsHTTPOrHTTPS(tt.u); got != tt.want {
			t.Errorf("IsHTTPOrHTTPS(%q) = %v, want %v", tt.u, got, tt.want)
		}
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("https://cdn/x.mp4?token=abc"); got != "https://cdn/x.mp4?[redacted]" {
		t.Errorf("Redact = %q", got)
	}
	if got := Redact("https://cdn/x.mp4"); got != "https://cdn/x.mp4" {
		t.Errorf("Redact = %q", got)
	}
}
