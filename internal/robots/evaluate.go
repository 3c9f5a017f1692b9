package robots

import (
	"strings"
	"time"
)

// groupFor selects the group whose user-agent token most specifically
// matches agent: the longest named token contained in the agent string wins,
// and the "*" wildcard group applies only when no named group matches.
func (r Rules) groupFor(agent string) *Group {
	la := strings.ToLower(agent)
	var best *Group
	bestLen := -1
	for i := range r.Groups {
		g := &r.Groups[i]
		for _, a := range g.Agents {
			al := strings.ToLower(strings.TrimSpace(a))
			if al == "" {
				continue
			}
			if al == "*" {
				if bestLen < 0 {
					best = g
					bestLen = 0
				}
				continue
			}
			if strings.Contains(la, al) && len(al) > bestLen {
				best = g
				bestLen = len(al)
			}
		}
	}
	return best
}

// IsAllowed evaluates path against the rules for agent. Precedence is the
// conventional longest-match: the longest matching Allow or Disallow pattern
// decides, with Allow winning ties. No matching group or no matching
// Disallow means allowed.
func (r Rules) IsAllowed(agent, path string) bool {
	g := r.groupFor(agent)
	if g == nil {
		return true
	}
	allow := longestPatternMatch(g.Allow, path)
	disallow := longestPatternMatch(g.Disallow, path)
	if disallow < 0 {
		return true
	}
	return allow >= disallow
}

// CrawlDelayFor returns the crawl delay of the matched group, or nil when no
// group matches or the group declares none.
func (r Rules) CrawlDelayFor(agent string) *time.Duration {
	g := r.groupFor(agent)
	if g == nil {
		return nil
	}
	return g.CrawlDelay
}

// longestPatternMatch returns the length of the longest pattern matching
// path, or -1 when none match. Pattern length (wildcards included) stands in
// for specificity, which matches the de facto evaluation order crawlers use.
func longestPatternMatch(patterns []string, path string) int {
	best := -1
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if patternMatches(p, path) && len(p) > best {
			best = len(p)
		}
	}
	return best
}

// patternMatches implements robots.txt path patterns: a prefix match with
// '*' matching any run of characters and a trailing '$' anchoring the end.
func patternMatches(pattern, path string) bool {
	anchored := strings.HasSuffix(pattern, "$")
	if anchored {
		pattern = strings.TrimSuffix(pattern, "$")
	}
	parts := strings.Split(pattern, "*")

	pos := 0
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i == 0 {
			if !strings.HasPrefix(path, part) {
				return false
			}
			pos = len(part)
			continue
		}
		idx := strings.Index(path[pos:], part)
		if idx < 0 {
			return false
		}
		pos += idx + len(part)
	}
	if anchored {
		// A pattern ending in '*' before the anchor matches any tail.
		if parts[len(parts)-1] == "" {
			return true
		}
		return pos == len(path)
	}
	return true
}
