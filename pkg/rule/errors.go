package rule

import (
	"errors"
	"fmt"
)

const (
	ErrorNoRuleConfigured             = "no_rule_configured"
	ErrorInvalidPlaceholderParameters = "invalid_placeholder_parameters"
	ErrorPatternCompile               = "pattern_compile_error"
	ErrorCaptureIndexOutOfRange       = "capture_index_out_of_range"
	ErrorEmptyReplies                 = "empty_replies"
	ErrorScanBudgetExceeded           = "scan_budget_exceeded"
	ErrorUnknownType                  = "unknown_rule_type"
)

// Sentinels for errors.Is checks. Matching is by category only.
var (
	ErrNoRuleConfigured             = &Error{Category: ErrorNoRuleConfigured}
	ErrInvalidPlaceholderParameters = &Error{Category: ErrorInvalidPlaceholderParameters}
	ErrPatternCompile               = &Error{Category: ErrorPatternCompile}
	ErrCaptureIndexOutOfRange       = &Error{Category: ErrorCaptureIndexOutOfRange}
	ErrEmptyReplies                 = &Error{Category: ErrorEmptyReplies}
	ErrScanBudgetExceeded           = &Error{Category: ErrorScanBudgetExceeded}
)

// Error represents a stable, categorized resolution failure or anomaly.
type Error struct {
	Category string
	RuleID   string
	Detail   string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	msg := e.Category
	if e.RuleID != "" {
		msg = fmt.Sprintf("%s (rule %s)", msg, e.RuleID)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}

	return msg
}

// Is reports category equality so callers can match against the package sentinels.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}

	return e.Category == other.Category
}

// NewError creates a categorized error.
func NewError(category string, ruleID string, detail string) error {
	return &Error{Category: category, RuleID: ruleID, Detail: detail}
}

// CategoryFromError returns the stable category for an error when available.
func CategoryFromError(err error) string {
	if err == nil {
		return ""
	}

	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Category
	}

	return "unknown"
}

// RuleIDFromError returns the rule id attached to a categorized error, if any.
func RuleIDFromError(err error) string {
	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.RuleID
	}

	return ""
}
