package rulestore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"replybot/pkg/rule"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ruleIDSpace namespaces generated rule ids.
var ruleIDSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("replybot:rule"))

type ruleFile struct {
	Rules []rule.Rule `yaml:"rules"`
}

// Load reads a rules file. YAML and JSON are both accepted.
func Load(path string) ([]rule.Rule, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	rules, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}

	return rules, nil
}

// Parse decodes a rule document: either a mapping with a "rules" list or a bare
// list. Type names are normalized, missing ids are derived from the rule content,
// and duplicate ids are rejected. Unknown types are kept so the snapshot can
// report them.
func Parse(content []byte) ([]rule.Rule, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil
	}

	var rules []rule.Rule
	switch root := doc.Content[0]; root.Kind {
	case yaml.MappingNode:
		var file ruleFile
		if err := root.Decode(&file); err != nil {
			return nil, err
		}
		rules = file.Rules
	case yaml.SequenceNode:
		if err := root.Decode(&rules); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("expected a rules mapping or a list of rules")
	}

	seen := make(map[string]int, len(rules))
	for i := range rules {
		r := &rules[i]
		if t, err := rule.ParseType(string(r.Type)); err == nil {
			r.Type = t
		}

		r.ID = strings.TrimSpace(r.ID)
		if r.ID == "" {
			r.ID = derivedID(i, *r)
		}
		if first, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("rule %d: id %q already used by rule %d", i, r.ID, first)
		}
		seen[r.ID] = i
	}

	return rules, nil
}

// derivedID is stable for the same rule at the same position across reloads.
func derivedID(index int, r rule.Rule) string {
	key := strings.Join([]string{
		strconv.Itoa(index),
		string(r.Type),
		r.Keyword,
		r.Pattern,
		strings.Join(r.Replies, "\x00"),
	}, "\x1f")

	return uuid.NewSHA1(ruleIDSpace, []byte(key)).String()
}
