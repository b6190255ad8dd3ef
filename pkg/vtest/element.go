package vtest

import "strings"

// findElement locates the element carrying id="id" in doc and returns
// its bounds. Elements of the same name nested inside it are balanced.
func findElement(doc, id string) (start, end int, ok bool) {
	attr := strings.Index(doc, ` id="`+id+`"`)
	if attr < 0 {
		return 0, 0, false
	}
	start = strings.LastIndexByte(doc[:attr], '<')
	if start < 0 {
		return 0, 0, false
	}
	name := doc[start+1 : attr]
	if i := strings.IndexAny(name, " \t\n"); i >= 0 {
		name = name[:i]
	}

	open, closing := "<"+name, "</"+name+">"
	depth := 0
	for i := start; i < len(doc); i++ {
		if doc[i] != '<' {
			continue
		}
		rest := doc[i:]
		switch {
		case strings.HasPrefix(rest, closing):
			depth--
			if depth == 0 {
				return start, i + len(closing), true
			}
		case strings.HasPrefix(rest, open) && len(rest) > len(open) && isNameEnd(rest[len(open)]):
			depth++
		}
	}
	return 0, 0, false
}

func isNameEnd(b byte) bool {
	return b == ' ' || b == '>' || b == '\t' || b == '\n' || b == '/'
}
