package matcher

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"replybot/pkg/random"
	"replybot/pkg/rule"
)

// Tier is one precedence level of the matcher.
type Tier string

const (
	TierWelcome       Tier = "welcome"
	TierExactMatch    Tier = "exact_match"
	TierPattern       Tier = "pattern_matching"
	TierExpertPattern Tier = "expert_pattern_matching"
	TierDefault       Tier = "default"
)

// ReplyPolicy selects which of a rule's replies is used.
type ReplyPolicy string

const (
	ReplyRandom ReplyPolicy = "random"
	ReplyFirst  ReplyPolicy = "first"
)

// ParseReplyPolicy validates a policy name. Empty means random.
func ParseReplyPolicy(value string) (ReplyPolicy, error) {
	switch p := ReplyPolicy(strings.ToLower(strings.TrimSpace(value))); p {
	case "":
		return ReplyRandom, nil
	case ReplyRandom, ReplyFirst:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported reply policy %q", value)
	}
}

// DefaultScanBudget bounds the time spent evaluating patterns for one message.
const DefaultScanBudget = 50 * time.Millisecond

// Result is the outcome of a successful match.
type Result struct {
	Rule     rule.Rule
	Reply    string
	Captures []string
	Tier     Tier
}

// Options tunes a Matcher.
type Options struct {
	Policy     ReplyPolicy
	ScanBudget time.Duration
	Random     *random.Generator
	Now        func() time.Time
}

// Matcher picks the rule that answers a message.
type Matcher struct {
	policy ReplyPolicy
	budget time.Duration
	rand   *random.Generator
	now    func() time.Time
}

// New builds a matcher. Zero options mean random replies and the default scan budget.
func New(opts Options) *Matcher {
	m := &Matcher{
		policy: opts.Policy,
		budget: opts.ScanBudget,
		rand:   opts.Random,
		now:    opts.Now,
	}
	if m.policy == "" {
		m.policy = ReplyRandom
	}
	if m.budget <= 0 {
		m.budget = DefaultScanBudget
	}
	if m.rand == nil {
		m.rand = random.NewTimeSeeded()
	}
	if m.now == nil {
		m.now = time.Now
	}

	return m
}

// Match walks the tiers in precedence order and returns the first rule that fires.
// Rules that cannot fire are skipped and reported as anomalies; only the absence of
// any firing rule, including a fallback, is an error.
func (m *Matcher) Match(message string, conv rule.Conversation, snap *rule.Snapshot) (Result, []error, error) {
	var anomalies []error
	started := m.now()
	normalized := rule.NormalizeText(message)

	for _, t := range rule.Types() {
		if t == rule.TypeDefault {
			break
		}

		entry, captures, issues := m.matchTier(t, message, normalized, conv, snap, started)
		anomalies = append(anomalies, issues...)
		if entry != nil {
			return m.result(entry, captures, tierFor(t)), anomalies, nil
		}
	}

	for _, entry := range snap.Defaults() {
		if issue := entry.ReplyIssue(); issue != nil {
			if !slices.Contains(anomalies, issue) {
				anomalies = append(anomalies, issue)
			}
			continue
		}

		return m.result(entry, nil, TierDefault), anomalies, nil
	}

	return Result{}, anomalies, rule.NewError(rule.ErrorNoRuleConfigured, "", "no rule matched and no default rule is configured")
}

// matchTier evaluates one non-default tier. Entries are already ordered by priority
// with original order as the tie-break, so the first hit wins.
func (m *Matcher) matchTier(t rule.Type, message string, normalized string, conv rule.Conversation, snap *rule.Snapshot, started time.Time) (*rule.Entry, []string, []error) {
	var anomalies []error

	switch t {
	case rule.TypeWelcome:
		if !conv.FirstContact {
			return nil, nil, nil
		}
		for _, entry := range snap.Tier(t) {
			if entry.Issue() != nil {
				anomalies = append(anomalies, entry.Issue())
				continue
			}
			return entry, nil, anomalies
		}
	case rule.TypeExactMatch:
		for _, entry := range snap.Tier(t) {
			if entry.Keyword() == "" || entry.Keyword() != normalized {
				continue
			}
			if entry.Issue() != nil {
				anomalies = append(anomalies, entry.Issue())
				continue
			}
			return entry, nil, anomalies
		}
	case rule.TypePattern, rule.TypeExpertPattern:
		for _, entry := range snap.Tier(t) {
			if elapsed := m.now().Sub(started); elapsed > m.budget {
				anomalies = append(anomalies, rule.NewError(rule.ErrorScanBudgetExceeded, entry.ID(),
					fmt.Sprintf("pattern scan stopped after %s", elapsed)))
				return nil, nil, anomalies
			}
			if entry.Issue() != nil {
				anomalies = append(anomalies, entry.Issue())
				continue
			}

			if t == rule.TypePattern {
				if entry.Pattern().MatchString(message) {
					return entry, nil, anomalies
				}
				continue
			}

			groups := entry.Pattern().FindStringSubmatch(message)
			if groups == nil {
				continue
			}
			return entry, groups[1:], anomalies
		}
	case rule.TypeDefault:
	}

	return nil, nil, anomalies
}

func (m *Matcher) result(entry *rule.Entry, captures []string, tier Tier) Result {
	return Result{
		Rule:     entry.Rule(),
		Reply:    m.pickReply(entry.Replies()),
		Captures: captures,
		Tier:     tier,
	}
}

func (m *Matcher) pickReply(replies []string) string {
	switch {
	case len(replies) == 0:
		return ""
	case m.policy == ReplyFirst || len(replies) == 1:
		return replies[0]
	default:
		return replies[m.rand.IntN(len(replies))]
	}
}

func tierFor(t rule.Type) Tier {
	switch t {
	case rule.TypeWelcome:
		return TierWelcome
	case rule.TypeExactMatch:
		return TierExactMatch
	case rule.TypePattern:
		return TierPattern
	case rule.TypeExpertPattern:
		return TierExpertPattern
	case rule.TypeDefault:
		return TierDefault
	default:
		return Tier(t)
	}
}
