package rule

import (
	"fmt"
	"strings"
)

// Type is the closed set of reply rule categories.
type Type string

const (
	TypeWelcome       Type = "welcome_message"
	TypeExactMatch    Type = "exact_match"
	TypePattern       Type = "pattern_matching"
	TypeExpertPattern Type = "expert_pattern_matching"
	TypeDefault       Type = "default_message"
)

// Types lists every rule type in tier order.
func Types() []Type {
	return []Type{TypeWelcome, TypeExactMatch, TypePattern, TypeExpertPattern, TypeDefault}
}

// ParseType validates a rule type string.
func ParseType(value string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(value))); t {
	case TypeWelcome, TypeExactMatch, TypePattern, TypeExpertPattern, TypeDefault:
		return t, nil
	default:
		return "", fmt.Errorf("unknown rule type %q", value)
	}
}

// UsesPattern reports whether rules of this type carry a pattern expression.
func (t Type) UsesPattern() bool {
	return t == TypePattern || t == TypeExpertPattern
}

// Rule is one configured reply policy.
type Rule struct {
	ID        string   `json:"id" yaml:"id"`
	Type      Type     `json:"type" yaml:"type"`
	Keyword   string   `json:"keyword,omitempty" yaml:"keyword,omitempty"`
	Pattern   string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Replies   []string `json:"replies" yaml:"replies"`
	Priority  int      `json:"priority" yaml:"priority"`
	IsDefault bool     `json:"isDefault" yaml:"isDefault"`
}

// Conversation carries the caller-owned context a resolution may read.
type Conversation struct {
	Name         string `json:"name,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	ChatName     string `json:"chat_name,omitempty"`
	FirstContact bool   `json:"first_contact"`

	SessionKey string `json:"session_key,omitempty"`
	Channel    string `json:"channel,omitempty"`
}
