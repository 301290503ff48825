// Package population loads the ranked target population, applies the
// denylist exclusion filter, and draws the deterministic seeded sample
// that a benchmark run operates on.
package population

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Target is one unit of work: an origin to load and analyze, plus its
// rank in the source list. Immutable once sampled.
type Target struct {
	Origin string `json:"origin"`
	Rank   int    `json:"rank"`
}

// Hostname extracts the hostname from the target origin. Origins may be
// bare domains ("example.com") or full URLs ("https://example.com/path").
func (t Target) Hostname() string {
	return hostnameOf(t.Origin)
}

func hostnameOf(origin string) string {
	s := origin
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.Hostname() != "" {
			return strings.ToLower(u.Hostname())
		}
	}
	// Bare domain, possibly with path or port attached.
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		if _, err := strconv.Atoi(s[i+1:]); err == nil {
			s = s[:i]
		}
	}
	return strings.ToLower(s)
}

// URL returns the navigable URL for the target, defaulting to https
// for bare-domain origins.
func (t Target) URL() string {
	if strings.Contains(t.Origin, "://") {
		return t.Origin
	}
	return "https://" + t.Origin
}

const fetchTimeout = 60 * time.Second

// Load reads a ranked population from src, which is either a local file
// path or an http(s) URL. The format is one "rank,origin" pair per line
// (Tranco-style CSV). Any failure to obtain or parse the list is fatal
// for the run: the caller must not fall back to a partial population.
func Load(src string) ([]Target, error) {
	r, err := openSource(src)
	if err != nil {
		return nil, fmt.Errorf("population: open %s: %w", src, err)
	}
	defer r.Close()

	var targets []Target
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		rank, origin, ok := strings.Cut(raw, ",")
		if !ok {
			return nil, fmt.Errorf("population: %s:%d: expected rank,origin", src, line)
		}
		n, err := strconv.Atoi(strings.TrimSpace(rank))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("population: %s:%d: bad rank %q", src, line, rank)
		}
		origin = strings.TrimSpace(origin)
		if origin == "" {
			return nil, fmt.Errorf("population: %s:%d: empty origin", src, line)
		}
		targets = append(targets, Target{Origin: origin, Rank: n})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("population: read %s: %w", src, err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("population: %s: no targets", src)
	}
	return targets, nil
}

// openSource opens a file path or fetches an http(s) URL.
func openSource(src string) (io.ReadCloser, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		client := &http.Client{Timeout: fetchTimeout}
		resp, err := client.Get(src)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		return resp.Body, nil
	}
	return os.Open(src)
}
