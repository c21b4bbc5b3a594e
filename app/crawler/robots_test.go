package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func robotsServer(t *testing.T, status int, body string) (*httptest.Server, string) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))

	host := strings.TrimPrefix(server.URL, "http://")
	return server, host
}

func TestResolve_ParsesRules(t *testing.T) {
	server, host := robotsServer(t, http.StatusOK, `
User-agent: rsstank
Disallow: /private/
Crawl-delay: 3

User-agent: *
Disallow: /
`)
	defer server.Close()

	resolver := NewPolicyResolver(server.Client(), "rsstank/1.0")
	policy := resolver.Resolve(context.Background(), host)
	if policy == nil {
		t.Fatal("Expected a policy, got nil")
	}

	if !policy.Allowed("http://" + host + "/feed.xml") {
		t.Error("Public path should be allowed for our user agent")
	}
	if policy.Allowed("http://" + host + "/private/feed.xml") {
		t.Error("Disallowed path should be blocked")
	}

	delay, ok := policy.CrawlDelay()
	if !ok {
		t.Fatal("Expected a crawl delay to be specified")
	}
	if delay != 3*time.Second {
		t.Errorf("Expected crawl delay 3s, got %v", delay)
	}
}

func TestResolve_NotFoundAllowsEverything(t *testing.T) {
	server, host := robotsServer(t, http.StatusNotFound, "")
	defer server.Close()

	resolver := NewPolicyResolver(server.Client(), "rsstank/1.0")
	policy := resolver.Resolve(context.Background(), host)
	if policy == nil {
		t.Fatal("A 404 robots.txt should still yield a policy")
	}

	if !policy.Allowed("http://" + host + "/anything") {
		t.Error("Missing robots.txt should allow everything")
	}
	if _, ok := policy.CrawlDelay(); ok {
		t.Error("Missing robots.txt should not mandate a crawl delay")
	}
}

func TestResolve_ServerErrorDisallowsEverything(t *testing.T) {
	server, host := robotsServer(t, http.StatusInternalServerError, "")
	defer server.Close()

	resolver := NewPolicyResolver(server.Client(), "rsstank/1.0")
	policy := resolver.Resolve(context.Background(), host)
	if policy == nil {
		t.Fatal("A 500 robots.txt should still yield a policy")
	}

	if policy.Allowed("http://" + host + "/feed.xml") {
		t.Error("A 5xx robots.txt response should block crawling")
	}
}

func TestResolve_UnreachableHostYieldsNilPolicy(t *testing.T) {
	server, host := robotsServer(t, http.StatusOK, "")
	server.Close() // connection refused from here on

	resolver := NewPolicyResolver(&http.Client{Timeout: time.Second}, "rsstank/1.0")
	policy := resolver.Resolve(context.Background(), host)
	if policy != nil {
		t.Error("A transport failure should yield a nil policy, not a blocking one")
	}
}

func TestPolicy_AllowedMalformedURL(t *testing.T) {
	server, host := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow:")
	defer server.Close()

	resolver := NewPolicyResolver(server.Client(), "rsstank/1.0")
	policy := resolver.Resolve(context.Background(), host)
	if policy == nil {
		t.Fatal("Expected a policy, got nil")
	}

	if !policy.Allowed("http://%zz-bad-url") {
		t.Error("Malformed URLs should pass the robots check and fail at fetch time")
	}
}
