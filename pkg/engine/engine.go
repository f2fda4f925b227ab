package engine

import (
	"errors"
	"log/slog"
	"time"

	"replybot/pkg/matcher"
	"replybot/pkg/placeholder"
	"replybot/pkg/random"
	"replybot/pkg/rule"
)

// Observer receives resolution outcomes, for example to export metrics.
type Observer interface {
	ObserveResolution(tier string, elapsed time.Duration, err error)
	ObserveAnomaly(category string)
}

// Reply is the rendered answer to one message.
type Reply struct {
	Text      string       `json:"text"`
	RuleID    string       `json:"rule_id"`
	RuleType  rule.Type    `json:"rule_type"`
	Tier      matcher.Tier `json:"tier"`
	Template  string       `json:"template"`
	Anomalies []error      `json:"-"`
}

// AnomalyStrings returns the anomalies as display strings.
func (r Reply) AnomalyStrings() []string {
	if len(r.Anomalies) == 0 {
		return nil
	}

	out := make([]string, 0, len(r.Anomalies))
	for _, err := range r.Anomalies {
		out = append(out, err.Error())
	}

	return out
}

// Options configures a Resolver.
type Options struct {
	Policy           matcher.ReplyPolicy
	ScanBudget       time.Duration
	Location         *time.Location
	Seed             *uint64
	Clock            func() time.Time
	MaxPatternLength int
	Observer         Observer
	Logger           *slog.Logger
}

// Resolver selects and renders replies. It holds no per-call state and is safe
// for concurrent use.
type Resolver struct {
	matcher          *matcher.Matcher
	renderer         *placeholder.Renderer
	observer         Observer
	log              *slog.Logger
	now              func() time.Time
	maxPatternLength int
}

// New builds a resolver. Matcher and renderer share one random generator so a fixed
// seed makes reply choice and random placeholders reproducible.
func New(opts Options) *Resolver {
	gen := random.NewTimeSeeded()
	if opts.Seed != nil {
		gen = random.New(*opts.Seed)
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Resolver{
		matcher: matcher.New(matcher.Options{
			Policy:     opts.Policy,
			ScanBudget: opts.ScanBudget,
			Random:     gen,
			Now:        now,
		}),
		renderer:         placeholder.NewRenderer(gen, placeholder.WithLocation(opts.Location), placeholder.WithClock(now)),
		observer:         opts.Observer,
		log:              log.With("component", "engine.resolver"),
		now:              now,
		maxPatternLength: opts.MaxPatternLength,
	}
}

// Resolve answers message against snap. The only error is NoRuleConfigured; every
// other problem is reported as an anomaly on the reply and through the logger.
func (r *Resolver) Resolve(message string, conv rule.Conversation, snap *rule.Snapshot) (Reply, error) {
	started := r.now()

	match, anomalies, err := r.matcher.Match(message, conv, snap)
	if err != nil {
		r.report(conv, anomalies)
		r.log.Warn("No reply rule fired", "session_key", conv.SessionKey, "error", err)
		r.observe("none", started, err)
		return Reply{Anomalies: anomalies}, err
	}

	text, renderAnomalies := r.renderer.Render(match.Reply, placeholder.Input{
		RuleID:       match.Rule.ID,
		Message:      message,
		Captures:     match.Captures,
		Conversation: conv,
	})
	anomalies = append(anomalies, renderAnomalies...)
	r.report(conv, anomalies)

	reply := Reply{
		Text:      text,
		RuleID:    match.Rule.ID,
		RuleType:  match.Rule.Type,
		Tier:      match.Tier,
		Template:  match.Reply,
		Anomalies: anomalies,
	}

	r.log.Debug("Resolved reply", "session_key", conv.SessionKey, "rule_id", reply.RuleID, "tier", reply.Tier)
	r.observe(string(reply.Tier), started, nil)

	return reply, nil
}

// ResolveRules compiles rules into a one-off snapshot and resolves against it.
func (r *Resolver) ResolveRules(message string, conv rule.Conversation, rules []rule.Rule) (Reply, error) {
	snap := rule.NewSnapshot(rules, rule.SnapshotOptions{MaxPatternLength: r.maxPatternLength})
	return r.Resolve(message, conv, snap)
}

// Render expands a template without matching. Used by tooling to preview replies.
func (r *Resolver) Render(template string, in placeholder.Input) (string, []error) {
	return r.renderer.Render(template, in)
}

func (r *Resolver) report(conv rule.Conversation, anomalies []error) {
	for _, anomaly := range anomalies {
		category := rule.CategoryFromError(anomaly)
		r.log.Warn("Reply anomaly",
			"category", category,
			"rule_id", rule.RuleIDFromError(anomaly),
			"session_key", conv.SessionKey,
			"error", anomaly,
		)
		if r.observer != nil {
			r.observer.ObserveAnomaly(category)
		}
	}
}

func (r *Resolver) observe(tier string, started time.Time, err error) {
	if r.observer == nil {
		return
	}

	r.observer.ObserveResolution(tier, r.now().Sub(started), err)
}

// IsNoRuleConfigured reports whether err means nothing could answer.
func IsNoRuleConfigured(err error) bool {
	return errors.Is(err, rule.ErrNoRuleConfigured)
}
