package loader

import "testing"

func TestID_Scheme(t *testing.T) {
	tests := []struct {
		id   ID
		want string
	}{
		{"https://example.com/a", "https"},
		{"HTTP://example.com", "http"},
		{"file:///etc/hosts", "file"},
		{"static://greeting", "static"},
		{"redis://doc", "redis"},
		{"plain/path.txt", ""},
		{"/abs/path", ""},
		{`C:\dir\file`, ""},
		{"c://dir", ""},
		{"we ird://x", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			if got := tt.id.Scheme(); got != tt.want {
				t.Errorf("Scheme(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestID_Path(t *testing.T) {
	tests := []struct {
		id   ID
		want string
	}{
		{"file:///etc/hosts", "/etc/hosts"},
		{"file://rel/a.txt", "rel/a.txt"},
		{"plain/a.txt", "plain/a.txt"},
	}

	for _, tt := range tests {
		if got := tt.id.Path(); got != tt.want {
			t.Errorf("Path(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		name string
		id   ID
		want ID
	}{
		{
			name: "plain path unchanged",
			id:   "templates/Index.html",
			want: "templates/Index.html",
		},
		{
			name: "scheme and host lower-cased",
			id:   "HTTPS://Example.COM/Path",
			want: "https://example.com/Path",
		},
		{
			name: "query sorted",
			id:   "https://example.com/a?page=2&order=asc",
			want: "https://example.com/a?order=asc&page=2",
		},
		{
			name: "repeated values sorted",
			id:   "https://example.com/a?tag=b&tag=a",
			want: "https://example.com/a?tag=a&tag=b",
		},
		{
			name: "fragment dropped",
			id:   "https://example.com/a#section",
			want: "https://example.com/a",
		},
		{
			name: "file scheme unchanged",
			id:   "file:///A/B",
			want: "file:///A/B",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeID(tt.id); got != tt.want {
				t.Errorf("NormalizeID(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestToken(t *testing.T) {
	if !(Token{}).IsZero() {
		t.Error("empty token should be zero")
	}
	if (Token{Hash: 1}).IsZero() {
		t.Error("token with hash should not be zero")
	}
	if (Token{Hash: 1}).Conditional() {
		t.Error("hash-only token cannot be validated over HTTP")
	}
	if !(Token{ETag: `"x"`}).Conditional() {
		t.Error("ETag token should be conditional")
	}
}
