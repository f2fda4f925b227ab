package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"replybot/pkg/config"
	"replybot/pkg/engine"
	"replybot/pkg/matcher"
)

// newResolver builds the resolver described by the engine section of cfg.
func newResolver(cfg *config.Config, observer engine.Observer, log *slog.Logger) (*engine.Resolver, error) {
	policy, err := matcher.ParseReplyPolicy(cfg.Engine.ReplyPolicy)
	if err != nil {
		return nil, fmt.Errorf("engine.reply_policy: %w", err)
	}

	loc, err := cfg.Engine.Location()
	if err != nil {
		return nil, err
	}

	return engine.New(engine.Options{
		Policy:           policy,
		ScanBudget:       cfg.Engine.ScanBudget(),
		Location:         loc,
		Seed:             cfg.Engine.Seed,
		MaxPatternLength: cfg.Engine.MaxPatternLength,
		Observer:         observer,
		Logger:           log,
	}), nil
}

// splitName derives first and last names from a display name.
func splitName(name string) (string, string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}
