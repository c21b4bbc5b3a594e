package tagsync

import (
	"fmt"
	"strconv"
	"strings"
)

// Feed subscriptions are encoded in Mailtank tag names:
//
//	rss:<namespace>:<url>:<interval>
//
// The URL may itself contain colons, so the interval is split off from
// the right. The delimiter and field layout are fixed; do not extend
// this format.

const tagPrefix = "rss"

// TagMask returns the tag listing mask for a key's namespace.
func TagMask(namespace string) string {
	return fmt.Sprintf("%s:%s:", tagPrefix, namespace)
}

// ParseTag extracts the feed URL and sending interval from a tag name.
func ParseTag(tag string) (namespace, url string, interval int, err error) {
	head, rest, found := strings.Cut(tag, ":")
	if !found || head != tagPrefix {
		return "", "", 0, fmt.Errorf("tag %q does not carry the %q prefix", tag, tagPrefix)
	}

	namespace, rest, found = strings.Cut(rest, ":")
	if !found {
		return "", "", 0, fmt.Errorf("tag %q has no url and interval", tag)
	}

	cut := strings.LastIndex(rest, ":")
	if cut < 0 {
		return "", "", 0, fmt.Errorf("tag %q has no interval", tag)
	}
	url = rest[:cut]

	interval, err = strconv.Atoi(rest[cut+1:])
	if err != nil {
		return "", "", 0, fmt.Errorf("tag %q has a bad interval: %w", tag, err)
	}
	if url == "" {
		return "", "", 0, fmt.Errorf("tag %q has an empty url", tag)
	}

	return namespace, url, interval, nil
}
