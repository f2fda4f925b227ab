package rule

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxPatternLength bounds stored pattern size before compilation.
const DefaultMaxPatternLength = 2048

// SnapshotOptions tunes snapshot compilation.
type SnapshotOptions struct {
	MaxPatternLength int
	Source           string
}

// Entry is one rule inside a snapshot with its precomputed matching state.
type Entry struct {
	rule    Rule
	index   int
	keyword string
	pattern *regexp.Regexp
	// replyIssue keeps the rule from replying at all; patternIssue only from pattern matching.
	replyIssue   error
	patternIssue error
}

// Rule returns the rule definition.
func (e *Entry) Rule() Rule {
	return e.rule
}

// ID returns the rule identifier.
func (e *Entry) ID() string {
	return e.rule.ID
}

// Index returns the rule's position in the original rule sequence.
func (e *Entry) Index() int {
	return e.index
}

// Keyword returns the normalized exact-match keyword.
func (e *Entry) Keyword() string {
	return e.keyword
}

// Pattern returns the compiled expression, nil for non-pattern rules or broken patterns.
func (e *Entry) Pattern() *regexp.Regexp {
	return e.pattern
}

// Issue returns the reason this rule cannot fire in its own tier, if any.
func (e *Entry) Issue() error {
	if e.replyIssue != nil {
		return e.replyIssue
	}

	return e.patternIssue
}

// ReplyIssue returns the reason this rule cannot produce a reply in any tier.
// A broken pattern is not one: the rule can still act as a fallback.
func (e *Entry) ReplyIssue() error {
	return e.replyIssue
}

// Replies returns the reply templates.
func (e *Entry) Replies() []string {
	return e.rule.Replies
}

// Snapshot is an immutable, point-in-time view of all configured rules.
type Snapshot struct {
	entries  []*Entry
	tiers    map[Type][]*Entry
	defaults []*Entry
	issues   []error
	source   string
	loadedAt time.Time
}

// NewSnapshot copies and compiles rules. Per-rule problems never fail the build;
// they are recorded on the entry and listed by Issues.
func NewSnapshot(rules []Rule, opts SnapshotOptions) *Snapshot {
	maxPattern := opts.MaxPatternLength
	if maxPattern <= 0 {
		maxPattern = DefaultMaxPatternLength
	}

	snap := &Snapshot{
		entries:  make([]*Entry, 0, len(rules)),
		tiers:    make(map[Type][]*Entry, len(Types())),
		source:   opts.Source,
		loadedAt: time.Now().UTC(),
	}

	for i, r := range rules {
		r.Replies = slices.Clone(r.Replies)
		entry := &Entry{rule: r, index: i}

		if len(r.Replies) == 0 {
			entry.replyIssue = NewError(ErrorEmptyReplies, r.ID, "rule has no replies")
		}

		switch r.Type {
		case TypeExactMatch:
			entry.keyword = NormalizeText(r.Keyword)
		case TypePattern, TypeExpertPattern:
			compiled, err := compilePattern(r.Pattern, maxPattern)
			if err != nil {
				entry.patternIssue = NewError(ErrorPatternCompile, r.ID, err.Error())
			} else {
				entry.pattern = compiled
			}
		case TypeWelcome, TypeDefault:
		default:
			entry.replyIssue = NewError(ErrorUnknownType, r.ID, fmt.Sprintf("unknown rule type %q", r.Type))
		}

		if entry.replyIssue != nil {
			snap.issues = append(snap.issues, entry.replyIssue)
		}
		if entry.patternIssue != nil {
			snap.issues = append(snap.issues, entry.patternIssue)
		}

		snap.entries = append(snap.entries, entry)
		snap.tiers[r.Type] = append(snap.tiers[r.Type], entry)
		if r.IsDefault || r.Type == TypeDefault {
			snap.defaults = append(snap.defaults, entry)
		}
	}

	for _, tier := range snap.tiers {
		sortByPriority(tier)
	}
	sortByPriority(snap.defaults)

	return snap
}

// sortByPriority orders entries by priority descending, keeping original order on ties.
func sortByPriority(entries []*Entry) {
	slices.SortStableFunc(entries, func(a, b *Entry) int {
		return cmp.Compare(b.rule.Priority, a.rule.Priority)
	})
}

// Tier returns the rules of one type ordered by precedence.
func (s *Snapshot) Tier(t Type) []*Entry {
	if s == nil {
		return nil
	}

	return s.tiers[t]
}

// Defaults returns fallback candidates ordered by precedence.
func (s *Snapshot) Defaults() []*Entry {
	if s == nil {
		return nil
	}

	return s.defaults
}

// Rules returns a copy of the rule definitions in original order.
func (s *Snapshot) Rules() []Rule {
	if s == nil {
		return nil
	}

	out := make([]Rule, 0, len(s.entries))
	for _, entry := range s.entries {
		r := entry.rule
		r.Replies = slices.Clone(r.Replies)
		out = append(out, r)
	}

	return out
}

// Len returns the number of rules.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}

	return len(s.entries)
}

// Counts returns the number of rules per type.
func (s *Snapshot) Counts() map[Type]int {
	counts := make(map[Type]int, len(Types()))
	if s == nil {
		return counts
	}

	for t, entries := range s.tiers {
		counts[t] = len(entries)
	}

	return counts
}

// Issues lists the problems that keep rules from firing in their own tier.
func (s *Snapshot) Issues() []error {
	if s == nil {
		return nil
	}

	return slices.Clone(s.issues)
}

// HasFallback reports whether any fallback candidate can fire.
func (s *Snapshot) HasFallback() bool {
	for _, entry := range s.Defaults() {
		if entry.replyIssue == nil {
			return true
		}
	}

	return false
}

// Source returns the origin label given at build time.
func (s *Snapshot) Source() string {
	if s == nil {
		return ""
	}

	return s.source
}

// LoadedAt returns the build time.
func (s *Snapshot) LoadedAt() time.Time {
	if s == nil {
		return time.Time{}
	}

	return s.loadedAt
}

// NormalizeText prepares text for case-insensitive exact comparison.
func NormalizeText(text string) string {
	text = norm.NFC.String(strings.TrimSpace(text))
	return cases.Fold().String(text)
}

// compilePattern accepts RE2 syntax or a /body/flags literal.
func compilePattern(pattern string, maxLength int) (*regexp.Regexp, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("pattern is empty")
	}
	if len(pattern) > maxLength {
		return nil, fmt.Errorf("pattern length %d exceeds limit %d", len(pattern), maxLength)
	}

	compiled, err := regexp.Compile(translateLiteral(pattern))
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}

	return compiled, nil
}

// translateLiteral rewrites /body/flags into RE2 inline flags. Other input is returned as is.
func translateLiteral(pattern string) string {
	if len(pattern) < 2 || pattern[0] != '/' {
		return pattern
	}

	end := strings.LastIndexByte(pattern, '/')
	if end <= 0 {
		return pattern
	}

	body, flags := pattern[1:end], pattern[end+1:]
	inline := make([]byte, 0, 3)
	for _, flag := range flags {
		switch flag {
		case 'i', 'm', 's':
			if !slices.Contains(inline, byte(flag)) {
				inline = append(inline, byte(flag))
			}
		case 'g', 'u', 'y':
		default:
			return pattern
		}
	}

	if len(inline) == 0 {
		return body
	}

	return "(?" + string(inline) + ")" + body
}
