package rule

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	t.Parallel()

	for _, want := range Types() {
		got, err := ParseType(" " + strings.ToUpper(string(want)) + " ")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseType("fuzzy_match")
	assert.Error(t, err)
}

func TestSnapshotOrdersTiersByPriorityThenInsertion(t *testing.T) {
	t.Parallel()

	snap := NewSnapshot([]Rule{
		{ID: "low", Type: TypeExactMatch, Keyword: "hi", Replies: []string{"a"}, Priority: 1},
		{ID: "high-first", Type: TypeExactMatch, Keyword: "hi", Replies: []string{"b"}, Priority: 5},
		{ID: "high-second", Type: TypeExactMatch, Keyword: "hi", Replies: []string{"c"}, Priority: 5},
		{ID: "negative", Type: TypeExactMatch, Keyword: "hi", Replies: []string{"d"}, Priority: -2},
	}, SnapshotOptions{})

	ids := make([]string, 0, 4)
	for _, entry := range snap.Tier(TypeExactMatch) {
		ids = append(ids, entry.ID())
	}

	assert.Equal(t, []string{"high-first", "high-second", "low", "negative"}, ids)
	assert.Equal(t, 1, snap.Tier(TypeExactMatch)[0].Index())
}

func TestSnapshotRecordsIssuesWithoutFailing(t *testing.T) {
	t.Parallel()

	snap := NewSnapshot([]Rule{
		{ID: "broken", Type: TypePattern, Pattern: "(unclosed", Replies: []string{"x"}},
		{ID: "empty-pattern", Type: TypeExpertPattern, Pattern: "  ", Replies: []string{"x"}},
		{ID: "too-long", Type: TypePattern, Pattern: strings.Repeat("a", 20), Replies: []string{"x"}},
		{ID: "silent", Type: TypeExactMatch, Keyword: "hi"},
		{ID: "mystery", Type: Type("fuzzy"), Replies: []string{"x"}},
		{ID: "ok", Type: TypePattern, Pattern: "ok", Replies: []string{"x"}},
	}, SnapshotOptions{MaxPatternLength: 10})

	issues := snap.Issues()
	require.Len(t, issues, 5)
	assert.True(t, errors.Is(issues[0], ErrPatternCompile))
	assert.True(t, errors.Is(issues[1], ErrPatternCompile))
	assert.True(t, errors.Is(issues[2], ErrPatternCompile))
	assert.True(t, errors.Is(issues[3], ErrEmptyReplies))
	assert.Equal(t, ErrorUnknownType, CategoryFromError(issues[4]))
	assert.Equal(t, "broken", RuleIDFromError(issues[0]))

	assert.Equal(t, 6, snap.Len())
	assert.NotNil(t, snap.Tier(TypePattern)[2].Pattern())
}

func TestSnapshotIsIsolatedFromCallerMutation(t *testing.T) {
	t.Parallel()

	rules := []Rule{{ID: "d", Type: TypeDefault, Replies: []string{"original"}}}
	snap := NewSnapshot(rules, SnapshotOptions{})

	rules[0].Replies[0] = "mutated"
	rules[0].ID = "other"

	assert.Equal(t, "original", snap.Defaults()[0].Replies()[0])
	assert.Equal(t, "d", snap.Rules()[0].ID)

	copied := snap.Rules()
	copied[0].Replies[0] = "changed again"
	assert.Equal(t, "original", snap.Rules()[0].Replies[0])
}

func TestSnapshotDefaultsCombineFlagAndType(t *testing.T) {
	t.Parallel()

	snap := NewSnapshot([]Rule{
		{ID: "typed", Type: TypeDefault, Replies: []string{"a"}},
		{ID: "flagged", Type: TypeExactMatch, Keyword: "x", IsDefault: true, Replies: []string{"b"}, Priority: 3},
		{ID: "plain", Type: TypeExactMatch, Keyword: "y", Replies: []string{"c"}},
	}, SnapshotOptions{})

	defaults := snap.Defaults()
	require.Len(t, defaults, 2)
	assert.Equal(t, "flagged", defaults[0].ID())
	assert.Equal(t, "typed", defaults[1].ID())
	assert.True(t, snap.HasFallback())

	assert.False(t, NewSnapshot(nil, SnapshotOptions{}).HasFallback())
}

func TestSnapshotBrokenPatternStillFallsBack(t *testing.T) {
	t.Parallel()

	snap := NewSnapshot([]Rule{
		{ID: "p", Type: TypePattern, Pattern: "(", IsDefault: true, Replies: []string{"fallback"}},
		{ID: "mute", Type: TypeExpertPattern, Pattern: "(", IsDefault: true},
	}, SnapshotOptions{})

	defaults := snap.Defaults()
	require.Len(t, defaults, 2)
	assert.True(t, errors.Is(defaults[0].Issue(), ErrPatternCompile))
	assert.NoError(t, defaults[0].ReplyIssue())
	assert.True(t, errors.Is(defaults[1].ReplyIssue(), ErrEmptyReplies))
	assert.True(t, snap.HasFallback())
	assert.Len(t, snap.Issues(), 3)
}

func TestSnapshotCounts(t *testing.T) {
	t.Parallel()

	snap := NewSnapshot([]Rule{
		{ID: "1", Type: TypeWelcome, Replies: []string{"w"}},
		{ID: "2", Type: TypeExactMatch, Keyword: "a", Replies: []string{"x"}},
		{ID: "3", Type: TypeExactMatch, Keyword: "b", Replies: []string{"y"}},
	}, SnapshotOptions{Source: "memory"})

	counts := snap.Counts()
	assert.Equal(t, 1, counts[TypeWelcome])
	assert.Equal(t, 2, counts[TypeExactMatch])
	assert.Equal(t, 0, counts[TypeDefault])
	assert.Equal(t, "memory", snap.Source())
	assert.False(t, snap.LoadedAt().IsZero())
}

func TestNilSnapshotIsEmpty(t *testing.T) {
	t.Parallel()

	var snap *Snapshot
	assert.Zero(t, snap.Len())
	assert.Nil(t, snap.Tier(TypePattern))
	assert.Nil(t, snap.Defaults())
	assert.False(t, snap.HasFallback())
}

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hello world", NormalizeText("  Hello WORLD \n"))
	assert.Equal(t, NormalizeText("café"), NormalizeText("CAFÉ"))
}

func TestTranslateLiteral(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: `^hi$`, want: `^hi$`},
		{in: `/hello/i`, want: `(?i)hello`},
		{in: `/a.b/gims`, want: `(?ims)a.b`},
		{in: `/plain/`, want: `plain`},
		{in: `/not/flags/x`, want: `/not/flags/x`},
		{in: `/`, want: `/`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, translateLiteral(tt.in), tt.in)
	}
}

func TestErrorFormattingAndMatching(t *testing.T) {
	t.Parallel()

	err := NewError(ErrorPatternCompile, "r1", "bad")
	assert.Equal(t, "pattern_compile_error (rule r1): bad", err.Error())
	assert.True(t, errors.Is(err, ErrPatternCompile))
	assert.False(t, errors.Is(err, ErrEmptyReplies))
	assert.Equal(t, "", CategoryFromError(nil))
	assert.Equal(t, "unknown", CategoryFromError(errors.New("plain")))
}
