package mime

import (
	"errors"
	"fmt"
	"mime"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nymtech/nym-sub006/internal/shared/types"
)

// ErrInvalidRule is returned for matchers or strategies that cannot be parsed
var ErrInvalidRule = errors.New("mime: invalid rule")

// Strategy is how a body is materialized
type Strategy string

const (
	StrategyBytes Strategy = "bytes"
	StrategyJSON  Strategy = "json"
	StrategyText  Strategy = "text"
	StrategyForm  Strategy = "form"
	StrategyBlob  Strategy = "blob"
)

// ParseStrategy accepts the Go names and the wire names
// (uint8array, formData) case-insensitively
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bytes", "uint8array":
		return StrategyBytes, nil
	case "json":
		return StrategyJSON, nil
	case "text":
		return StrategyText, nil
	case "form", "formdata":
		return StrategyForm, nil
	case "blob":
		return StrategyBlob, nil
	}
	return "", fmt.Errorf("%w: unknown strategy %q", ErrInvalidRule, s)
}

// Matcher tests a normalized media type
type Matcher interface {
	Match(mediaType string) bool
	String() string
}

type exactMatcher string

func (m exactMatcher) Match(mediaType string) bool { return string(m) == mediaType }
func (m exactMatcher) String() string              { return string(m) }

type globMatcher string

func (m globMatcher) Match(mediaType string) bool {
	ok, _ := doublestar.Match(string(m), mediaType)
	return ok
}

func (m globMatcher) String() string { return string(m) }

type regexMatcher struct {
	re *regexp.Regexp
}

func (m regexMatcher) Match(mediaType string) bool { return m.re.MatchString(mediaType) }
func (m regexMatcher) String() string              { return "re:" + m.re.String() }

// ParseMatcher builds a matcher from its textual form
func ParseMatcher(s string) (Matcher, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, fmt.Errorf("%w: empty matcher", ErrInvalidRule)
	case strings.HasPrefix(s, "re:"):
		return compileRegex(strings.TrimPrefix(s, "re:"))
	case len(s) > 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/"):
		return compileRegex(s[1 : len(s)-1])
	case strings.ContainsAny(s, "*?[{"):
		pattern := strings.ToLower(s)
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("%w: bad glob %q", ErrInvalidRule, s)
		}
		return globMatcher(pattern), nil
	default:
		return exactMatcher(strings.ToLower(s)), nil
	}
}

func compileRegex(expr string) (Matcher, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return regexMatcher{re: re}, nil
}

// Rule applies Strategy to any media type one of Matchers accepts
type Rule struct {
	Strategy Strategy
	Matchers []Matcher
}

// RuleSet is an ordered list of rules plus the strategy for untyped bodies
type RuleSet struct {
	Rules    []Rule
	Fallback Strategy
}

// Match returns the strategy of the first rule accepting contentType
func (rs RuleSet) Match(contentType string) (Strategy, bool) {
	mediaType := MediaType(contentType)
	for _, rule := range rs.Rules {
		for _, m := range rule.Matchers {
			if m.Match(mediaType) {
				return rule.Strategy, true
			}
		}
	}
	return "", false
}

// MediaType strips parameters from a Content-Type value and lower-cases it
func MediaType(contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// DefaultRuleSet returns the rule set used when setup supplies none
func DefaultRuleSet() RuleSet {
	rs, err := FromConfig(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return rs
}

// DefaultConfig is the textual form of DefaultRuleSet
func DefaultConfig() types.BodyConfigMap {
	return types.BodyConfigMap{
		Bytes:    []string{"application/octet-stream"},
		JSON:     []string{"application/json", "text/json", "application/ld+json", "application/*+json"},
		Text:     []string{"text/plain", "text/html"},
		Form:     []string{"application/x-www-form-urlencoded", "multipart/form-data"},
		Blob:     []string{"image/*", "video/*"},
		Fallback: string(StrategyBlob),
	}
}

// FromConfig builds a rule set that replaces the defaults entirely. Rules
// are ordered bytes, json, text, form, blob. An empty fallback means blob.
func FromConfig(cfg types.BodyConfigMap) (RuleSet, error) {
	rs := RuleSet{Fallback: StrategyBlob}
	if cfg.Fallback != "" {
		fallback, err := ParseStrategy(cfg.Fallback)
		if err != nil {
			return RuleSet{}, err
		}
		rs.Fallback = fallback
	}

	groups := []struct {
		strategy Strategy
		patterns []string
	}{
		{StrategyBytes, cfg.Bytes},
		{StrategyJSON, cfg.JSON},
		{StrategyText, cfg.Text},
		{StrategyForm, cfg.Form},
		{StrategyBlob, cfg.Blob},
	}
	for _, g := range groups {
		if len(g.patterns) == 0 {
			continue
		}
		rule := Rule{Strategy: g.strategy}
		for _, p := range g.patterns {
			m, err := ParseMatcher(p)
			if err != nil {
				return RuleSet{}, fmt.Errorf("%s: %w", g.strategy, err)
			}
			rule.Matchers = append(rule.Matchers, m)
		}
		rs.Rules = append(rs.Rules, rule)
	}
	return rs, nil
}
