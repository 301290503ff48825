package population

import (
	"bufio"
	"fmt"
	"strings"
)

// Denylist is a set of domains whose targets are excluded from sampling.
type Denylist map[string]struct{}

// LoadDenylist reads a denylist from a file path or http(s) URL: one
// domain per line, blank lines and "#" comments ignored. A failure to
// obtain the list is fatal for the run.
func LoadDenylist(src string) (Denylist, error) {
	r, err := openSource(src)
	if err != nil {
		return nil, fmt.Errorf("denylist: open %s: %w", src, err)
	}
	defer r.Close()

	dl := make(Denylist)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		d := strings.ToLower(strings.TrimSpace(sc.Text()))
		if d == "" || strings.HasPrefix(d, "#") {
			continue
		}
		dl[d] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("denylist: read %s: %w", src, err)
	}
	return dl, nil
}

// Excluded reports whether host is denied: the host itself, or any
// non-trivial parent domain (strip leftmost labels one at a time, never
// down to the bare TLD), appears in the denylist. For "a.b.example.com"
// the parents checked are "b.example.com" and "example.com".
func (dl Denylist) Excluded(host string) bool {
	if len(dl) == 0 || host == "" {
		return false
	}
	host = strings.ToLower(host)
	if _, ok := dl[host]; ok {
		return true
	}
	labels := strings.Split(host, ".")
	for i := 1; i <= len(labels)-2; i++ {
		parent := strings.Join(labels[i:], ".")
		if _, ok := dl[parent]; ok {
			return true
		}
	}
	return false
}

// Filter returns the targets whose hostnames survive the denylist.
// Exclusion runs before sampling so a sample of size n is drawn from
// the eligible pool only.
func Filter(targets []Target, dl Denylist) []Target {
	if len(dl) == 0 {
		return targets
	}
	out := make([]Target, 0, len(targets))
	for _, t := range targets {
		if dl.Excluded(t.Hostname()) {
			continue
		}
		out = append(out, t)
	}
	return out
}
