package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ErrBadScript is returned by Apply for a script that does not fit the
// previous output.
var ErrBadScript = errors.New("render: invalid diff script")

// TextDiffer computes rune-level edit scripts with diff-match-patch.
type TextDiffer struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

// NewTextDiffer creates a differ.
func NewTextDiffer() *TextDiffer {
	dmp := diffmatchpatch.New()
	return &TextDiffer{dmp: dmp}
}

// Diff returns the edit script turning old into new, or false when they
// are equal.
func (d *TextDiffer) Diff(old, new string) (any, bool) {
	if old == new {
		return nil, false
	}
	if old == "" {
		return []any{new}, true
	}

	diffs := d.dmp.DiffMain(old, new, false)
	diffs = d.dmp.DiffCleanupEfficiency(diffs)

	script := make([]any, 0, len(diffs))
	for _, df := range diffs {
		n := utf8.RuneCountInString(df.Text)
		switch df.Type {
		case diffmatchpatch.DiffEqual:
			script = append(script, n)
		case diffmatchpatch.DiffDelete:
			script = append(script, -n)
		case diffmatchpatch.DiffInsert:
			script = append(script, df.Text)
		}
	}
	return script, true
}

// Apply replays script against old. Integers may arrive as float64 or
// json.Number after a JSON round trip.
func Apply(old string, script []any) (string, error) {
	src := []rune(old)
	pos := 0

	var out strings.Builder
	out.Grow(len(old))

	for _, op := range script {
		switch v := op.(type) {
		case string:
			out.WriteString(v)
			continue
		}

		n, err := opCount(op)
		if err != nil {
			return "", err
		}
		count := n
		if count < 0 {
			count = -count
		}
		if pos+count > len(src) {
			return "", fmt.Errorf("%w: op %d past end of input", ErrBadScript, n)
		}
		if n > 0 {
			out.WriteString(string(src[pos : pos+count]))
		}
		pos += count
	}
	if pos != len(src) {
		return "", fmt.Errorf("%w: %d runes unaccounted for", ErrBadScript, len(src)-pos)
	}
	return out.String(), nil
}

func opCount(op any) (int, error) {
	switch v := op.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrBadScript, err)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("%w: unexpected op %T", ErrBadScript, op)
}
