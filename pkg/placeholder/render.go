package placeholder

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"replybot/pkg/random"
	"replybot/pkg/rule"
)

const delimiter = '%'

// Renderer expands placeholders in reply templates.
type Renderer struct {
	rand     *random.Generator
	location *time.Location
	now      func() time.Time
}

// Option customizes a Renderer.
type Option func(*Renderer)

// WithLocation sets the time zone used by calendar tokens.
func WithLocation(loc *time.Location) Option {
	return func(r *Renderer) {
		if loc != nil {
			r.location = loc
		}
	}
}

// WithClock overrides the render-time clock.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRenderer builds a renderer drawing random values from gen. Calendar tokens use UTC
// unless WithLocation is given.
func NewRenderer(gen *random.Generator, opts ...Option) *Renderer {
	if gen == nil {
		gen = random.NewTimeSeeded()
	}

	r := &Renderer{
		rand:     gen,
		location: time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Location returns the calendar time zone.
func (r *Renderer) Location() *time.Location {
	return r.location
}

// Render replaces every recognized placeholder in template. It never fails: unknown
// tokens and tokens with bad parameters stay verbatim, and each problem is returned
// as an anomaly. Substituted values are not scanned again.
func (r *Renderer) Render(template string, in Input) (string, []error) {
	if strings.IndexByte(template, delimiter) < 0 {
		return template, nil
	}

	e := &env{in: in, now: r.now().In(r.location), rand: r.rand}

	var (
		out       strings.Builder
		anomalies []error
	)
	out.Grow(len(template))

	i := 0
	for i < len(template) {
		open := strings.IndexByte(template[i:], delimiter)
		if open < 0 {
			out.WriteString(template[i:])
			break
		}
		open += i
		out.WriteString(template[i:open])

		closing := strings.IndexByte(template[open+1:], delimiter)
		if closing < 0 {
			out.WriteString(template[open:])
			break
		}
		closing += open + 1

		body := template[open+1 : closing]
		if !tokenShaped(body) {
			out.WriteByte(delimiter)
			i = open + 1
			continue
		}

		raw := template[open : closing+1]
		i = closing + 1

		t, param, ok := lookup(body)
		if !ok {
			out.WriteString(raw)
			continue
		}

		value, err := t.eval(e, param)
		if err != nil {
			anomalies = append(anomalies, annotate(err, in.RuleID, raw))
			if rule.CategoryFromError(err) == rule.ErrorCaptureIndexOutOfRange {
				continue
			}
			out.WriteString(raw)
			continue
		}

		out.WriteString(value)
	}

	return out.String(), anomalies
}

// tokenShaped reports whether text between two delimiters looks like a placeholder.
func tokenShaped(body string) bool {
	if body == "" {
		return false
	}

	for i, r := range body {
		if i == 0 && !unicode.IsLetter(r) {
			return false
		}
		if unicode.IsSpace(r) {
			return false
		}
	}

	return true
}

// annotate attaches the rule id and offending token to a categorized error.
func annotate(err error, ruleID string, raw string) error {
	var categorized *rule.Error
	if !errors.As(err, &categorized) {
		return rule.NewError(rule.ErrorInvalidPlaceholderParameters, ruleID, raw+": "+err.Error())
	}

	return rule.NewError(categorized.Category, ruleID, raw+": "+categorized.Detail)
}
