package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
)

// Policy is a host's robots.txt rule set scoped to one user agent.
// It keeps the whole parsed rule set, not just the agent's group, so
// the status-code conventions (4xx allows all, 5xx disallows all)
// survive into the Allowed check.
type Policy struct {
	data  *robotstxt.RobotsData
	agent string
}

// Allowed reports whether the given URL may be fetched. Malformed URLs
// are treated as allowed; the fetch itself will surface the problem.
func (p *Policy) Allowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return p.data.TestAgent(path, p.agent)
}

// CrawlDelay returns the host-mandated delay and whether one was specified.
func (p *Policy) CrawlDelay() (time.Duration, bool) {
	group := p.data.FindGroup(p.agent)
	return group.CrawlDelay, group.CrawlDelay > 0
}

// PolicyResolver fetches and parses robots.txt files.
type PolicyResolver struct {
	httpClient *http.Client
	userAgent  string
}

func NewPolicyResolver(httpClient *http.Client, userAgent string) *PolicyResolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &PolicyResolver{httpClient: httpClient, userAgent: userAgent}
}

// Resolve fetches http://{host}/robots.txt and returns the policy for the
// resolver's user agent. Any transport failure yields a nil policy: the
// crawl proceeds with the default delay and no path restrictions rather
// than being suppressed. Error statuses are fed to the parser, which
// applies the usual conventions (4xx allows everything, 5xx disallows).
func (r *PolicyResolver) Resolve(ctx context.Context, host string) *Policy {
	robotsURL := fmt.Sprintf("http://%s/robots.txt", host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		slog.Warn("Failed to build robots.txt request", "host", host, "error", err)
		return nil
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		slog.Warn("robots.txt unavailable, proceeding with defaults", "host", host, "error", err)
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Warn("Failed to read robots.txt, proceeding with defaults", "host", host, "error", err)
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		slog.Warn("Failed to parse robots.txt, proceeding with defaults", "host", host, "error", err)
		return nil
	}

	return &Policy{data: data, agent: r.userAgent}
}
