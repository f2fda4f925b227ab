package placeholder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"replybot/pkg/random"
	"replybot/pkg/rule"
)

// Kind groups tokens by what their value depends on.
type Kind string

const (
	KindIdentity Kind = "identity"
	KindCalendar Kind = "calendar"
	KindRandom   Kind = "random"
)

// Input is everything a template may reference.
type Input struct {
	RuleID       string
	Message      string
	Captures     []string
	Conversation rule.Conversation
}

// env is the per-render evaluation state.
type env struct {
	in   Input
	now  time.Time
	rand *random.Generator
}

// token describes one vocabulary entry. Parameterized tokens match by prefix and
// receive the text after it.
type token struct {
	name   string
	usage  string
	kind   Kind
	params bool
	eval   func(e *env, param string) (string, error)
}

// Token is the public description of a vocabulary entry.
type Token struct {
	Name  string `json:"name"`
	Usage string `json:"usage"`
	Kind  Kind   `json:"kind"`
}

func plain(name string, kind Kind, fn func(e *env) string) token {
	return token{
		name:  name,
		usage: "%" + name + "%",
		kind:  kind,
		eval:  func(e *env, _ string) (string, error) { return fn(e), nil },
	}
}

func clock(name string, layout string) token {
	return plain(name, KindCalendar, func(e *env) string { return e.now.Format(layout) })
}

func charsetToken(name string, charset random.Charset) token {
	return token{
		name:   name + "_",
		usage:  "%" + name + "_LENGTH%",
		kind:   KindRandom,
		params: true,
		eval: func(e *env, param string) (string, error) {
			length, err := parseLength(param)
			if err != nil {
				return "", err
			}
			return e.rand.String(charset, length)
		},
	}
}

// catalog is the closed vocabulary. Prefix entries must not shadow one another.
var catalog = []token{
	plain("message", KindIdentity, func(e *env) string { return e.in.Message }),
	plain("message_length", KindIdentity, func(e *env) string {
		return strconv.Itoa(utf8.RuneCountInString(e.in.Message))
	}),
	{
		name:   "capturing_group_",
		usage:  "%capturing_group_ID%",
		kind:   KindIdentity,
		params: true,
		eval:   captureGroup,
	},
	plain("name", KindIdentity, func(e *env) string { return e.in.Conversation.Name }),
	plain("first_name", KindIdentity, func(e *env) string { return e.in.Conversation.FirstName }),
	plain("last_name", KindIdentity, func(e *env) string { return e.in.Conversation.LastName }),
	plain("chat_name", KindIdentity, func(e *env) string { return e.in.Conversation.ChatName }),
	plain("rule_id", KindIdentity, func(e *env) string { return e.in.RuleID }),

	clock("date", "2006-01-02"),
	clock("time", "15:04:05"),
	clock("hour", "15"),
	plain("hour_short", KindCalendar, func(e *env) string { return strconv.Itoa(e.now.Hour()) }),
	clock("hour_12", "03"),
	clock("hour_12_short", "3"),
	clock("minute", "04"),
	clock("second", "05"),
	plain("millisecond", KindCalendar, func(e *env) string {
		return fmt.Sprintf("%03d", e.now.Nanosecond()/int(time.Millisecond))
	}),
	clock("am_pm", "PM"),
	clock("day", "02"),
	clock("day_short", "2"),
	clock("month", "01"),
	clock("month_short", "1"),
	clock("month_name", "January"),
	clock("month_name_short", "Jan"),
	clock("year", "2006"),
	clock("year_short", "06"),
	clock("day_of_week", "Monday"),
	clock("day_of_week_short", "Mon"),

	{
		name:   "rndm_num_",
		usage:  "%rndm_num_A_B%",
		kind:   KindRandom,
		params: true,
		eval:   randomNumber,
	},
	{
		name:   "rndm_custom_",
		usage:  "%rndm_custom_LENGTH_A,B,C%",
		kind:   KindRandom,
		params: true,
		eval:   randomCustom,
	},
	charsetToken("rndm_abc_lower", random.Lower),
	charsetToken("rndm_abc_upper", random.Upper),
	charsetToken("rndm_abc_mixed", random.Letters),
	charsetToken("rndm_abcnum_lower", random.LowerAlnum),
	charsetToken("rndm_abcnum_upper", random.UpperAlnum),
	charsetToken("rndm_abcnum_mixed", random.Alnum),
	charsetToken("rndm_ascii", random.ASCII),
	charsetToken("rndm_symbol", random.Symbols),
	charsetToken("rndm_grawlix", random.Grawlix),
}

var exactTokens, prefixTokens = indexCatalog()

func indexCatalog() (map[string]token, []token) {
	exact := make(map[string]token)
	var prefixed []token
	for _, t := range catalog {
		if t.params {
			prefixed = append(prefixed, t)
			continue
		}
		exact[t.name] = t
	}

	return exact, prefixed
}

// lookup resolves a token body (text between the % delimiters) to its entry and parameter text.
func lookup(body string) (token, string, bool) {
	if t, ok := exactTokens[strings.ToLower(body)]; ok {
		return t, "", true
	}

	for _, t := range prefixTokens {
		if len(body) > len(t.name) && strings.EqualFold(body[:len(t.name)], t.name) {
			return t, body[len(t.name):], true
		}
	}

	return token{}, "", false
}

// Vocabulary lists the closed placeholder vocabulary in catalog order.
func Vocabulary() []Token {
	out := make([]Token, 0, len(catalog))
	for _, t := range catalog {
		out = append(out, Token{Name: strings.TrimSuffix(t.name, "_"), Usage: t.usage, Kind: t.kind})
	}

	return out
}

// Lookup describes the vocabulary entry called name, matched case-insensitively.
// Parameterized entries are named without their parameters, as in "rndm_num".
func Lookup(name string) (Token, bool) {
	for _, tok := range Vocabulary() {
		if strings.EqualFold(tok.Name, strings.TrimSpace(name)) {
			return tok, true
		}
	}

	return Token{}, false
}

func captureGroup(e *env, param string) (string, error) {
	id, err := parseInt(param)
	if err != nil {
		return "", err
	}

	if id < 1 || id > int64(len(e.in.Captures)) {
		return "", rule.NewError(rule.ErrorCaptureIndexOutOfRange, e.in.RuleID,
			fmt.Sprintf("capturing group %d requested, %d available", id, len(e.in.Captures)))
	}

	return e.in.Captures[id-1], nil
}

func randomNumber(e *env, param string) (string, error) {
	parts := strings.Split(param, "_")
	if len(parts) != 2 {
		return "", invalidParams("expected rndm_num_A_B")
	}

	lo, err := parseInt(parts[0])
	if err != nil {
		return "", err
	}
	hi, err := parseInt(parts[1])
	if err != nil {
		return "", err
	}

	n, err := e.rand.Int(lo, hi)
	if err != nil {
		return "", err
	}

	return strconv.FormatInt(n, 10), nil
}

func randomCustom(e *env, param string) (string, error) {
	lengthText, set, ok := strings.Cut(param, "_")
	if !ok {
		return "", invalidParams("expected rndm_custom_LENGTH_SET")
	}

	length, err := parseLength(lengthText)
	if err != nil {
		return "", err
	}

	charset, err := random.ParseCharset(set)
	if err != nil {
		return "", err
	}

	return e.rand.String(charset, length)
}

// maxLength keeps a single token from producing unbounded output.
const maxLength = 4096

func parseInt(text string) (int64, error) {
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, invalidParams(fmt.Sprintf("%q is not an integer", text))
	}

	return n, nil
}

// parseLength parses a LENGTH parameter. Negative values are rejected by the generator.
func parseLength(text string) (int, error) {
	n, err := parseInt(text)
	if err != nil {
		return 0, err
	}
	if n > maxLength {
		return 0, invalidParams(fmt.Sprintf("length %d exceeds limit %d", n, maxLength))
	}
	if n < -maxLength {
		n = -1
	}

	return int(n), nil
}

func invalidParams(detail string) error {
	return rule.NewError(rule.ErrorInvalidPlaceholderParameters, "", detail)
}
