package ratelimit

import (
	"sort"
	"strings"
	"time"
)

// Rule binds a route pattern to a sliding-window budget. AuthSensitive rules
// fold a user-agent hash into the bucket key so distinct clients behind one
// NAT address are counted separately.
type Rule struct {
	Pattern       string
	Window        time.Duration
	Max           int
	AuthSensitive bool
}

// DefaultRules returns the standing rule table. The final entry is the
// site-wide fallback, configurable through the limiter options.
func DefaultRules(fallbackWindow time.Duration, fallbackMax int) []Rule {
	return []Rule{
		{Pattern: "/api/auth/login", Window: 15 * time.Minute, Max: 5, AuthSensitive: true},
		{Pattern: "/api/auth/register", Window: time.Hour, Max: 3, AuthSensitive: true},
		{Pattern: "/api/auth/refresh", Window: 5 * time.Minute, Max: 10, AuthSensitive: true},
		{Pattern: "/admin/", Window: time.Minute, Max: 30},
		{Pattern: "/api/", Window: time.Minute, Max: 100},
		{Pattern: "/", Window: fallbackWindow, Max: fallbackMax},
	}
}

// ruleTable resolves a request path to a rule: exact match first, then the
// longest matching prefix. The table is built once and read-only afterwards.
type ruleTable struct {
	exact    map[string]Rule
	prefixes []Rule // sorted by pattern length, longest first
}

func newRuleTable(rules []Rule) *ruleTable {
	t := &ruleTable{exact: map[string]Rule{}}
	for _, rule := range rules {
		if strings.HasSuffix(rule.Pattern, "/") && rule.Pattern != "/" {
			t.prefixes = append(t.prefixes, rule)
			continue
		}
		t.exact[rule.Pattern] = rule
		if rule.Pattern == "/" {
			t.prefixes = append(t.prefixes, rule)
		}
	}

	sort.SliceStable(t.prefixes, func(i, j int) bool {
		return len(t.prefixes[i].Pattern) > len(t.prefixes[j].Pattern)
	})
	return t
}

func (t *ruleTable) resolve(path string) (Rule, bool) {
	if rule, ok := t.exact[path]; ok {
		return rule, true
	}
	for _, rule := range t.prefixes {
		if strings.HasPrefix(path, rule.Pattern) {
			return rule, true
		}
	}
	return Rule{}, false
}
