package crawler

import (
	"context"
	"log/slog"
	"time"

	"github.com/lysyi3m/rsstank/app/database"
)

// HostScheduler polls the feeds of a single host strictly sequentially,
// honoring the host's crawl-delay between requests. Serializing per host
// is what keeps the crawler polite; hosts are independent of each other.
type HostScheduler struct {
	poller       *Poller
	defaultDelay time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

func NewHostScheduler(poller *Poller, defaultDelay time.Duration) *HostScheduler {
	return &HostScheduler{
		poller:       poller,
		defaultDelay: defaultDelay,
		sleep:        sleepCtx,
	}
}

// Run processes the feeds in the given order. The first feed is fetched
// immediately; before each subsequent feed the scheduler sleeps for the
// crawl delay. There is no trailing delay after the last feed.
//
// A feed disallowed by robots.txt is skipped with a notice, not counted
// as an error. A single feed's failure is logged and the rest of the
// host's queue continues.
func (s *HostScheduler) Run(ctx context.Context, host string, feeds []database.Feed, policy *Policy) error {
	delay := s.delay(policy)

	for i := range feeds {
		if i > 0 {
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
		}

		feed := &feeds[i]

		if policy != nil && !policy.Allowed(feed.URL) {
			slog.Info("Feed disallowed by robots.txt, skipping", "host", host, "feed", feed.String())
			continue
		}

		if err := s.poller.Poll(ctx, feed); err != nil {
			slog.Error("Feed poll failed", "host", host, "feed", feed.String(), "error", err)
		}
	}

	return nil
}

// delay returns the spacing between same-host requests: the robots.txt
// crawl-delay when one is specified, but never below the default.
func (s *HostScheduler) delay(policy *Policy) time.Duration {
	delay := s.defaultDelay
	if policy != nil {
		if crawlDelay, ok := policy.CrawlDelay(); ok && crawlDelay > delay {
			delay = crawlDelay
		}
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
