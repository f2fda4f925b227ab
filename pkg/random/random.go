package random

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"replybot/pkg/rule"
)

// Charset is an ordered, duplicate-free set of runes to draw from.
type Charset []rune

const (
	lowerLetters = "abcdefghijklmnopqrstuvwxyz"
	upperLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits       = "0123456789"
	symbols      = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
	grawlix      = "@#$%&*!"
)

var (
	Lower      = Charset(lowerLetters)
	Upper      = Charset(upperLetters)
	Digits     = Charset(digits)
	Letters    = Charset(lowerLetters + upperLetters)
	LowerAlnum = Charset(lowerLetters + digits)
	UpperAlnum = Charset(upperLetters + digits)
	Alnum      = Charset(lowerLetters + upperLetters + digits)
	Symbols    = Charset(symbols)
	Grawlix    = Charset(grawlix)
	ASCII      = printableASCII()
)

// printableASCII returns every visible ASCII character (0x21-0x7E).
func printableASCII() Charset {
	out := make(Charset, 0, 0x7e-0x21+1)
	for r := rune(0x21); r <= 0x7e; r++ {
		out = append(out, r)
	}

	return out
}

// Generator draws uniform integers and strings. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a generator with a fixed seed, so sequences are reproducible.
func New(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewTimeSeeded returns a generator seeded from the wall clock.
func NewTimeSeeded() *Generator {
	return New(uint64(time.Now().UnixNano()))
}

// Int returns a uniform integer in [min, max].
func (g *Generator) Int(min int64, max int64) (int64, error) {
	if min > max {
		return 0, rule.NewError(rule.ErrorInvalidPlaceholderParameters, "", fmt.Sprintf("range %d..%d has min greater than max", min, max))
	}

	span := uint64(max-min) + 1

	g.mu.Lock()
	defer g.mu.Unlock()

	if span == 0 {
		return int64(g.rng.Uint64()), nil
	}

	return min + int64(g.rng.Uint64N(span)), nil
}

// IntN returns a uniform index in [0, n). n must be positive.
func (g *Generator) IntN(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.rng.IntN(n)
}

// String returns length runes drawn uniformly from charset.
func (g *Generator) String(charset Charset, length int) (string, error) {
	if length < 0 {
		return "", rule.NewError(rule.ErrorInvalidPlaceholderParameters, "", fmt.Sprintf("length %d is negative", length))
	}
	if length == 0 {
		return "", nil
	}
	if len(charset) == 0 {
		return "", rule.NewError(rule.ErrorInvalidPlaceholderParameters, "", "charset is empty")
	}

	var b strings.Builder
	b.Grow(length)

	g.mu.Lock()
	defer g.mu.Unlock()

	for range length {
		b.WriteRune(charset[g.rng.IntN(len(charset))])
	}

	return b.String(), nil
}

// ParseCharset builds a custom charset from comma-separated items. Each item is a
// single character ("a"), a decimal codepoint of two or more digits ("65"), or an
// inclusive range of either ("a-z", "65-90"); a lone "-" is a hyphen.
func ParseCharset(spec string) (Charset, error) {
	if spec == "" {
		return nil, rule.NewError(rule.ErrorInvalidPlaceholderParameters, "", "charset is empty")
	}

	seen := make(map[rune]struct{})
	out := make(Charset, 0, len(spec))
	add := func(r rune) {
		if _, ok := seen[r]; ok {
			return
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}

	for _, item := range strings.Split(spec, ",") {
		if lo, ok := charsetBound(item); ok {
			add(lo)
			continue
		}

		first, last, found := strings.Cut(item, "-")
		lo, okLo := charsetBound(first)
		hi, okHi := charsetBound(last)
		if !found || !okLo || !okHi {
			return nil, rule.NewError(rule.ErrorInvalidPlaceholderParameters, "", fmt.Sprintf("charset item %q is not a character, codepoint or range", item))
		}
		if lo > hi {
			return nil, rule.NewError(rule.ErrorInvalidPlaceholderParameters, "", fmt.Sprintf("range %q is reversed", item))
		}
		if hi-lo >= maxRangeSize {
			return nil, rule.NewError(rule.ErrorInvalidPlaceholderParameters, "", fmt.Sprintf("range %q spans more than %d characters", item, maxRangeSize))
		}
		for r := lo; r <= hi; r++ {
			add(r)
		}
	}

	return out, nil
}

// maxRangeSize bounds a single custom range.
const maxRangeSize = 1 << 16

// charsetBound reads one character or one multi-digit decimal codepoint.
func charsetBound(text string) (rune, bool) {
	runes := []rune(text)
	if len(runes) == 1 {
		return runes[0], true
	}
	if len(runes) < 2 || strings.TrimLeft(text, "0123456789") != "" {
		return 0, false
	}

	n, err := strconv.ParseInt(text, 10, 32)
	if err != nil || !utf8.ValidRune(rune(n)) {
		return 0, false
	}

	return rune(n), true
}
