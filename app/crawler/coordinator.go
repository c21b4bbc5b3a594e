package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"sync"

	"github.com/lysyi3m/rsstank/app/database"
)

// Coordinator runs one polling cycle: it groups the active feeds by host,
// resolves each host's robots.txt policy, and polls hosts concurrently
// under a bounded worker pool. Within a host, feeds stay strictly
// sequential; across hosts there is no ordering.
type Coordinator struct {
	feedRepo      FeedRepository
	resolver      *PolicyResolver
	hostScheduler *HostScheduler
	concurrency   int
}

func NewCoordinator(feedRepo FeedRepository, resolver *PolicyResolver, hostScheduler *HostScheduler, concurrency int) *Coordinator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Coordinator{
		feedRepo:      feedRepo,
		resolver:      resolver,
		hostScheduler: hostScheduler,
		concurrency:   concurrency,
	}
}

// Run executes one full polling cycle. A single host's failure is logged
// and never prevents sibling hosts from completing.
func (c *Coordinator) Run(ctx context.Context) error {
	feedsByHost, err := c.groupFeedsByHost()
	if err != nil {
		return err
	}
	if len(feedsByHost) == 0 {
		slog.Debug("No active feeds to poll")
		return nil
	}

	hosts := make([]string, 0, len(feedsByHost))
	for host := range feedsByHost {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)

	slog.Info("Polling cycle started", "hosts", len(hosts))

	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup

	for _, host := range hosts {
		wg.Add(1)
		go func(host string, feeds []database.Feed) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			policy := c.resolver.Resolve(ctx, host)

			if err := c.hostScheduler.Run(ctx, host, feeds, policy); err != nil {
				slog.Error("Host polling failed", "host", host, "error", err)
				return
			}
			slog.Debug("Host polling finished", "host", host, "feeds", len(feeds))
		}(host, feedsByHost[host])
	}

	wg.Wait()
	slog.Info("Polling cycle finished", "hosts", len(hosts))
	return nil
}

// groupFeedsByHost partitions the feeds of enabled keys by URL host,
// preserving the repository's stable feed order within each host.
func (c *Coordinator) groupFeedsByHost() (map[string][]database.Feed, error) {
	feeds, err := c.feedRepo.ListActiveFeeds()
	if err != nil {
		return nil, fmt.Errorf("failed to list active feeds: %w", err)
	}

	feedsByHost := make(map[string][]database.Feed)
	for _, feed := range feeds {
		u, err := url.Parse(feed.URL)
		if err != nil || u.Host == "" {
			slog.Warn("Feed has an unparseable URL, skipping", "feed", feed.String(), "error", err)
			continue
		}
		feedsByHost[u.Host] = append(feedsByHost[u.Host], feed)
	}

	return feedsByHost, nil
}
