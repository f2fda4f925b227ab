package placeholder

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"replybot/pkg/random"
	"replybot/pkg/rule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, time.March, 9, 14, 5, 7, 123_000_000, time.UTC)

func newTestRenderer(opts ...Option) *Renderer {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewRenderer(random.New(7), opts...)
}

func TestRenderIdentityTokens(t *testing.T) {
	t.Parallel()

	r := newTestRenderer()
	in := Input{
		RuleID:  "rule-1",
		Message: "hello",
		Conversation: rule.Conversation{
			Name:      "Ada Lovelace",
			FirstName: "Ada",
			LastName:  "Lovelace",
			ChatName:  "engines",
		},
	}

	tests := []struct {
		template string
		want     string
	}{
		{template: "%message%", want: "hello"},
		{template: "%message_LENGTH%", want: "5"},
		{template: "%message_length%", want: "5"},
		{template: "%MESSAGE%", want: "hello"},
		{template: "%name%", want: "Ada Lovelace"},
		{template: "Hi %first_name% %last_name%!", want: "Hi Ada Lovelace!"},
		{template: "welcome to %chat_name%", want: "welcome to engines"},
		{template: "[%rule_id%]", want: "[rule-1]"},
		{template: "%first_name%%last_name%", want: "AdaLovelace"},
	}

	for _, tt := range tests {
		got, anomalies := r.Render(tt.template, in)
		assert.Empty(t, anomalies, tt.template)
		assert.Equal(t, tt.want, got, tt.template)
	}
}

func TestRenderMessageLengthCountsCharacters(t *testing.T) {
	t.Parallel()

	got, _ := newTestRenderer().Render("%message_length%", Input{Message: "héllo"})
	assert.Equal(t, "5", got)
}

func TestRenderCalendarTokens(t *testing.T) {
	t.Parallel()

	r := newTestRenderer()
	tests := map[string]string{
		"%date%":              "2026-03-09",
		"%time%":              "14:05:07",
		"%hour%":              "14",
		"%hour_short%":        "14",
		"%hour_12%":           "02",
		"%hour_12_short%":     "2",
		"%minute%":            "05",
		"%second%":            "07",
		"%millisecond%":       "123",
		"%am_pm%":             "PM",
		"%day%":               "09",
		"%day_short%":         "9",
		"%month%":             "03",
		"%month_short%":       "3",
		"%month_name%":        "March",
		"%month_name_short%":  "Mar",
		"%year%":              "2026",
		"%year_short%":        "26",
		"%day_of_week%":       "Monday",
		"%day_of_week_short%": "Mon",
	}

	for template, want := range tests {
		got, anomalies := r.Render(template, Input{})
		assert.Empty(t, anomalies, template)
		assert.Equal(t, want, got, template)
	}
}

func TestRenderCalendarUsesConfiguredZone(t *testing.T) {
	t.Parallel()

	zone := time.FixedZone("UTC+10", 10*60*60)
	got, _ := newTestRenderer(WithLocation(zone)).Render("%date% %hour%", Input{})
	assert.Equal(t, "2026-03-10 00", got)
}

func TestRenderCaptureGroups(t *testing.T) {
	t.Parallel()

	pattern := regexp.MustCompile(`^order (\d+)$`)
	groups := pattern.FindStringSubmatch("order 42")
	require.NotNil(t, groups)

	r := newTestRenderer()
	in := Input{RuleID: "orders", Message: "order 42", Captures: groups[1:]}

	got, anomalies := r.Render("%capturing_group_1%", in)
	assert.Equal(t, "42", got)
	assert.Empty(t, anomalies)

	got, anomalies = r.Render("[%capturing_group_2%]", in)
	assert.Equal(t, "[]", got)
	require.Len(t, anomalies, 1)
	assert.True(t, errors.Is(anomalies[0], rule.ErrCaptureIndexOutOfRange))
	assert.Equal(t, "orders", rule.RuleIDFromError(anomalies[0]))

	got, anomalies = r.Render("%capturing_group_0%", in)
	assert.Equal(t, "", got)
	require.Len(t, anomalies, 1)
	assert.True(t, errors.Is(anomalies[0], rule.ErrCaptureIndexOutOfRange))
}

func TestRenderUnknownTokensPassThrough(t *testing.T) {
	t.Parallel()

	r := newTestRenderer()
	tests := []string{
		"%not_a_real_token%",
		"before %not_a_real_token% after",
		"100% sure",
		"50 % off",
		"%",
		"%%",
		"trailing %message",
		"% message%",
	}

	for _, template := range tests {
		got, anomalies := r.Render(template, Input{Message: "x"})
		assert.Equal(t, template, got, template)
		assert.Empty(t, anomalies, template)
	}
}

func TestRenderLiteralPercentBeforeToken(t *testing.T) {
	t.Parallel()

	got, _ := newTestRenderer().Render("100% sure, %first_name%", Input{Conversation: rule.Conversation{FirstName: "Bo"}})
	assert.Equal(t, "100% sure, Bo", got)
}

func TestRenderInvalidParametersStayVerbatim(t *testing.T) {
	t.Parallel()

	r := newTestRenderer()
	tests := []string{
		"%rndm_num_5_1%",
		"%rndm_num_a_b%",
		"%rndm_num_1%",
		"%rndm_abc_lower_-1%",
		"%rndm_abc_lower_x%",
		"%rndm_custom_3%",
		"%rndm_custom_3_z-a%",
		"%rndm_ascii_999999%",
		"%capturing_group_one%",
	}

	for _, template := range tests {
		got, anomalies := r.Render("<"+template+">", Input{RuleID: "r1"})
		assert.Equal(t, "<"+template+">", got, template)
		require.Len(t, anomalies, 1, template)
		assert.True(t, errors.Is(anomalies[0], rule.ErrInvalidPlaceholderParameters), template)
		assert.Contains(t, anomalies[0].Error(), template)
	}
}

func TestRenderRandomNumber(t *testing.T) {
	t.Parallel()

	r := newTestRenderer()

	got, anomalies := r.Render("%rndm_num_4_4%", Input{})
	assert.Empty(t, anomalies)
	assert.Equal(t, "4", got)

	for range 1000 {
		got, _ := r.Render("%rndm_num_1_1%", Input{})
		require.Equal(t, "1", got)
	}

	for range 1000 {
		got, _ := r.Render("%rndm_num_-2_9%", Input{})
		n, err := strconv.Atoi(got)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, -2)
		require.LessOrEqual(t, n, 9)
	}
}

func TestRenderRandomStrings(t *testing.T) {
	t.Parallel()

	r := newTestRenderer()
	tests := []struct {
		template string
		length   int
		allowed  string
	}{
		{template: "%rndm_abc_lower_8%", length: 8, allowed: "abcdefghijklmnopqrstuvwxyz"},
		{template: "%rndm_abc_upper_8%", length: 8, allowed: "ABCDEFGHIJKLMNOPQRSTUVWXYZ"},
		{template: "%rndm_abc_mixed_8%", length: 8, allowed: "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"},
		{template: "%rndm_abcnum_lower_8%", length: 8, allowed: "abcdefghijklmnopqrstuvwxyz0123456789"},
		{template: "%rndm_abcnum_upper_8%", length: 8, allowed: "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"},
		{template: "%rndm_abcnum_mixed_8%", length: 8, allowed: "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"},
		{template: "%rndm_ascii_8%", length: 8, allowed: string(random.ASCII)},
		{template: "%rndm_symbol_8%", length: 8, allowed: string(random.Symbols)},
		{template: "%rndm_grawlix_8%", length: 8, allowed: "@#$%&*!"},
		{template: "%rndm_custom_8_x,y,0-1%", length: 8, allowed: "xy01"},
		{template: "%rndm_custom_5_65,66,67%", length: 5, allowed: "ABC"},
		{template: "%rndm_abc_lower_0%", length: 0, allowed: ""},
	}

	for _, tt := range tests {
		got, anomalies := r.Render(tt.template, Input{})
		assert.Empty(t, anomalies, tt.template)
		assert.Len(t, []rune(got), tt.length, tt.template)
		for _, ch := range got {
			assert.True(t, strings.ContainsRune(tt.allowed, ch), "%s produced %q", tt.template, ch)
		}
	}
}

func TestRenderDoesNotRescanSubstitutedText(t *testing.T) {
	t.Parallel()

	r := newTestRenderer()
	in := Input{Message: "%name%", Conversation: rule.Conversation{Name: "Eve"}}

	got, anomalies := r.Render("%message% / %name%", in)
	assert.Empty(t, anomalies)
	assert.Equal(t, "%name% / Eve", got)

	for range 100 {
		got, anomalies := r.Render("%rndm_grawlix_12%", Input{})
		require.Empty(t, anomalies)
		require.Len(t, got, 12)
	}
}

func TestRenderIsIdempotentWithoutPlaceholders(t *testing.T) {
	t.Parallel()

	r := newTestRenderer()
	first, _ := r.Render("Hello %first_name%, it is %hour%h.", Input{Conversation: rule.Conversation{FirstName: "Kim"}})
	require.NotContains(t, first, "%")

	second, anomalies := r.Render(first, Input{})
	assert.Empty(t, anomalies)
	assert.Equal(t, first, second)
}

func TestVocabularyIsClosed(t *testing.T) {
	t.Parallel()

	vocab := Vocabulary()
	assert.Len(t, vocab, 39)

	names := make(map[string]Kind, len(vocab))
	for _, tok := range vocab {
		_, dup := names[tok.Name]
		require.False(t, dup, "duplicate token %s", tok.Name)
		names[tok.Name] = tok.Kind
		assert.True(t, strings.HasPrefix(tok.Usage, "%") && strings.HasSuffix(tok.Usage, "%"), tok.Usage)
	}

	assert.Equal(t, KindIdentity, names["capturing_group"])
	assert.Equal(t, KindCalendar, names["day_of_week"])
	assert.Equal(t, KindRandom, names["rndm_grawlix"])
}

func TestLookupDescribesVocabularyEntries(t *testing.T) {
	t.Parallel()

	tok, ok := Lookup("RNDM_NUM")
	require.True(t, ok)
	assert.Equal(t, "%rndm_num_A_B%", tok.Usage)
	assert.Equal(t, KindRandom, tok.Kind)

	_, ok = Lookup("weather")
	assert.False(t, ok)
}
