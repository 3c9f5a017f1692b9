package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestFileProviderFiltersByQueryAndLimit(t *testing.T) {
	path := writeFixture(t, `[
		{"title": "Go concurrency patterns", "url": "https://go.dev/blog/pipelines", "snippet": "goroutines and channels"},
		{"title": "Rust ownership", "url": "https://rust-lang.org/own", "snippet": "borrow checker"},
		{"title": "Go generics guide", "url": "https://go.dev/blog/generics", "snippet": "type parameters in go"}
	]`)
	f := &FileProvider{Path: path}

	results, err := f.Search(context.Background(), "go", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected limit to cap results, got %d", len(results))
	}
	if results[0].Source != "file" {
		t.Fatalf("expected provider name stamped on results, got %q", results[0].Source)
	}
}

func TestFileProviderAppliesDomainPolicy(t *testing.T) {
	path := writeFixture(t, `[
		{"title": "go docs", "url": "https://go.dev/doc", "snippet": "go documentation"},
		{"title": "go mirror", "url": "https://mirror.example.com/go", "snippet": "go documentation mirror"}
	]`)
	f := &FileProvider{Path: path, Policy: DomainPolicy{Denylist: []string{"example.com"}}}

	results, err := f.Search(context.Background(), "go", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].URL != "https://go.dev/doc" {
		t.Fatalf("expected denylisted domain dropped, got %+v", results)
	}
}

func TestIsDomainBlocked(t *testing.T) {
	cases := []struct {
		url       string
		allowlist []string
		denylist  []string
		blocked   bool
	}{
		{"https://go.dev/doc", nil, nil, false},
		{"https://spam.example.com/x", nil, []string{"example.com"}, true},
		{"https://docs.go.dev/x", []string{"go.dev"}, nil, false},
		{"https://other.org/x", []string{"go.dev"}, nil, true},
		{"https://go.dev/x", []string{"go.dev"}, []string{"go.dev"}, true},
	}
	for _, tc := range cases {
		blocked, err := isDomainBlocked(tc.url, tc.allowlist, tc.denylist)
		if err != nil {
			t.Fatalf("isDomainBlocked(%q): %v", tc.url, err)
		}
		if blocked != tc.blocked {
			t.Fatalf("isDomainBlocked(%q, %v, %v) = %v, want %v", tc.url, tc.allowlist, tc.denylist, blocked, tc.blocked)
		}
	}
}
