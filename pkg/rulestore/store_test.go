package rulestore

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"replybot/pkg/logger"
	"replybot/pkg/rule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const mappingDoc = `
rules:
  - id: welcome
    type: welcome_message
    replies: ["Welcome, %first_name%!"]
  - id: hi
    type: Exact_Match
    keyword: hi
    replies:
      - Hello!
      - Hey there!
    priority: 2
  - id: orders
    type: expert_pattern_matching
    pattern: '^order (\d+)$'
    replies: ["Order %capturing_group_1% received"]
  - id: fallback
    type: default_message
    isDefault: true
    replies: ["Sorry, I didn't understand."]
`

func writeRules(t *testing.T, dir string, content string) string {
	t.Helper()

	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseMappingDocument(t *testing.T) {
	rules, err := Parse([]byte(mappingDoc))
	require.NoError(t, err)
	require.Len(t, rules, 4)

	assert.Equal(t, rule.TypeExactMatch, rules[1].Type)
	assert.Equal(t, []string{"Hello!", "Hey there!"}, rules[1].Replies)
	assert.Equal(t, 2, rules[1].Priority)
	assert.Equal(t, `^order (\d+)$`, rules[2].Pattern)
	assert.True(t, rules[3].IsDefault)
}

func TestParseListAndJSON(t *testing.T) {
	list := `
- type: exact_match
  keyword: ping
  replies: [pong]
`
	rules, err := Parse([]byte(list))
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.NotEmpty(t, rules[0].ID)

	again, err := Parse([]byte(list))
	require.NoError(t, err)
	assert.Equal(t, rules[0].ID, again[0].ID, "derived ids must be stable")

	jsonDoc := `{"rules": [{"id": "d", "type": "default_message", "replies": ["?"], "isDefault": true}]}`
	rules, err = Parse([]byte(jsonDoc))
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, rule.TypeDefault, rules[0].Type)
}

func TestParseKeepsUnknownTypesForReporting(t *testing.T) {
	rules, err := Parse([]byte(`[{id: x, type: fuzzy_match, replies: [a]}]`))
	require.NoError(t, err)
	assert.Equal(t, rule.Type("fuzzy_match"), rules[0].Type)

	snap := rule.NewSnapshot(rules, rule.SnapshotOptions{})
	require.Len(t, snap.Issues(), 1)
	assert.Equal(t, rule.ErrorUnknownType, rule.CategoryFromError(snap.Issues()[0]))
}

func TestParseRejectsBadDocuments(t *testing.T) {
	tests := map[string]string{
		"duplicate ids": "- {id: a, type: default_message, replies: [x]}\n- {id: a, type: default_message, replies: [y]}\n",
		"scalar root":   "just text",
		"bad yaml":      "rules: [",
		"wrong shape":   "rules: {id: a}",
	}

	for name, content := range tests {
		_, err := Parse([]byte(content))
		assert.Error(t, err, name)
	}

	rules, err := Parse([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestOpenServesSnapshot(t *testing.T) {
	path := writeRules(t, t.TempDir(), mappingDoc)

	store, err := Open(path, Options{Logger: logger.Discard()})
	require.NoError(t, err)

	snap := store.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 4, snap.Len())
	assert.Equal(t, path, snap.Source())
	assert.True(t, snap.HasFallback())
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.yaml"), Options{Logger: logger.Discard()})
	assert.Error(t, err)
}

func TestReloadKeepsPreviousSnapshotOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeRules(t, dir, mappingDoc)

	var failures atomic.Int32
	store, err := Open(path, Options{
		Logger: logger.Discard(),
		OnReload: func(_ *rule.Snapshot, err error) {
			if err != nil {
				failures.Add(1)
			}
		},
	})
	require.NoError(t, err)
	before := store.Snapshot()

	writeRules(t, dir, "rules: [")
	_, err = store.Reload()
	require.Error(t, err)
	assert.Same(t, before, store.Snapshot())
	assert.Equal(t, int32(1), failures.Load())

	writeRules(t, dir, "- {id: only, type: default_message, replies: [x]}\n")
	snap, err := store.Reload()
	require.NoError(t, err)
	assert.Same(t, snap, store.Snapshot())
	assert.Equal(t, 1, snap.Len())
}

func TestFromRulesCannotReload(t *testing.T) {
	store := FromRules([]rule.Rule{{ID: "d", Type: rule.TypeDefault, Replies: []string{"x"}}}, Options{Logger: logger.Discard()})
	assert.Equal(t, 1, store.Snapshot().Len())
	assert.Equal(t, "memory", store.Snapshot().Source())

	_, err := store.Reload()
	assert.Error(t, err)
	assert.Error(t, store.Watch(context.Background()))
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeRules(t, dir, mappingDoc)

	store, err := Open(path, Options{Logger: logger.Discard(), Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register before editing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("ignored"), 0o600))
	writeRules(t, dir, "- {id: fresh, type: default_message, replies: [new]}\n")

	require.Eventually(t, func() bool {
		snap := store.Snapshot()
		return snap.Len() == 1 && snap.Rules()[0].ID == "fresh"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatchStopsWithContext(t *testing.T) {
	path := writeRules(t, t.TempDir(), mappingDoc)
	store, err := Open(path, Options{Logger: logger.Discard()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
