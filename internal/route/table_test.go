package route

import (
	"net/url"
	"slices"
	"testing"
	"time"

	"notus-gateway/internal/config"
	"notus-gateway/internal/model"
)

func target(t *testing.T, name, prefix, upstream string) model.RouteTarget {
	t.Helper()
	u, err := url.Parse(upstream)
	if err != nil {
		t.Fatal(err)
	}
	return model.RouteTarget{Name: name, Prefix: prefix, BaseURL: u, Timeout: 10 * time.Second}
}

func TestMatch(t *testing.T) {
	table := NewFromTargets([]model.RouteTarget{
		target(t, "notes", "/notes", "http://notes:8002/notes"),
		target(t, "summary", "/notes/summary", "http://ai:9000/summary"),
		target(t, "auth", "/auth", "http://auth:8001/auth"),
	})

	tests := []struct {
		name          string
		path          string
		wantOK        bool
		wantName      string
		wantRemainder string
	}{
		{"exact prefix", "/notes", true, "notes", ""},
		{"sub path", "/notes/7", true, "notes", "/7"},
		{"trailing slash", "/notes/", true, "notes", "/"},
		{"deep sub path", "/auth/users/me", true, "auth", "/users/me"},
		{"longest prefix wins", "/notes/summary/3", true, "summary", "/3"},
		{"longest prefix exact", "/notes/summary", true, "summary", ""},
		{"segment boundary", "/notesx", false, "", ""},
		{"segment boundary nested", "/notes/summaryx", true, "notes", "/summaryx"},
		{"unknown", "/unknown/path", false, "", ""},
		{"root", "/", false, "", ""},
		{"empty", "", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := table.Match(tt.path)
			if ok != tt.wantOK {
				t.Fatalf("Match(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if m.Target.Name != tt.wantName {
				t.Errorf("Match(%q) target = %q, want %q", tt.path, m.Target.Name, tt.wantName)
			}
			if m.Remainder != tt.wantRemainder {
				t.Errorf("Match(%q) remainder = %q, want %q", tt.path, m.Remainder, tt.wantRemainder)
			}
		})
	}
}

func TestTargetsReturnsCopy(t *testing.T) {
	table := NewFromTargets([]model.RouteTarget{
		target(t, "auth", "/auth", "http://auth:8001/auth"),
		target(t, "summary", "/notes/summary", "http://ai:9000/summary"),
	})

	got := table.Targets()
	if got[0].Prefix != "/notes/summary" {
		t.Errorf("Targets()[0] = %q, want longest prefix first", got[0].Prefix)
	}
	got[0].Prefix = "/mutated"

	if _, ok := table.Match("/notes/summary"); !ok {
		t.Error("mutating Targets() result changed the table")
	}
}

func TestPrefixes(t *testing.T) {
	table := NewFromTargets([]model.RouteTarget{
		target(t, "chat", "/chat", "http://chat:8003/chat"),
		target(t, "users", "/users", "http://auth:8001/users"),
	})

	got := table.Prefixes()
	slices.Sort(got)
	if want := []string{"/chat", "/users"}; !slices.Equal(got, want) {
		t.Errorf("Prefixes() = %v, want %v", got, want)
	}
}

func TestNew(t *testing.T) {
	cfg := &config.Config{
		Routes: []config.RouteConfig{
			{Name: "notes", Prefix: "/notes", Upstream: "http://note-service:8002/notes", TimeoutSeconds: 10},
			{Name: "chat", Prefix: "/chat", Upstream: "http://chat-service:8003/chat", TimeoutSeconds: 30},
		},
	}

	table, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	m, ok := table.Match("/chat/ask")
	if !ok {
		t.Fatal("Match(/chat/ask) found no route")
	}
	if m.Target.BaseURL.Host != "chat-service:8003" || m.Target.BaseURL.Path != "/chat" {
		t.Errorf("BaseURL = %s", m.Target.BaseURL)
	}
	if m.Target.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", m.Target.Timeout)
	}
}

func TestNew_BadUpstream(t *testing.T) {
	cfg := &config.Config{
		Routes: []config.RouteConfig{{Name: "bad", Prefix: "/bad", Upstream: "http://bad host\x7f/"}},
	}
	if _, err := New(cfg); err == nil {
		t.Fatal("New() expected error for unparsable upstream, got nil")
	}
}
