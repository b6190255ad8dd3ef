package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorBlue  = "\033[34m"
	colorCyan  = "\033[36m"
	colorGray  = "\033[90m"
	colorBold  = "\033[1m"
)

var colorEnabled = true

// Style selects how Fprint renders errors.
type Style string

const (
	StylePretty  Style = "pretty"
	StyleCompact Style = "compact"
	StyleJSON    Style = "json"
)

var outputStyle = StylePretty

// SetStyle selects the Fprint style.
func SetStyle(s Style) error {
	switch s {
	case StylePretty, StyleCompact, StyleJSON:
		outputStyle = s
		return nil
	}
	return fmt.Errorf("unknown error format %q (want pretty, compact or json)", s)
}

// DisableColors disables ANSI color output.
func DisableColors() {
	colorEnabled = false
}

// EnableColors enables ANSI color output.
func EnableColors() {
	colorEnabled = true
}

func color(code, text string) string {
	if !colorEnabled {
		return text
	}
	return code + text + colorReset
}

// Format renders the error for a terminal.
func (e *ReactorError) Format() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(color(colorRed+colorBold, "ERROR "))
	if e.Code != "" {
		b.WriteString(color(colorBold, e.Code+": "))
	}
	b.WriteString(e.Message)
	b.WriteString("\n\n")

	if e.Location != nil {
		b.WriteString("  ")
		b.WriteString(color(colorCyan, e.Location.String()))
		b.WriteString("\n\n")

		start := e.Location.Line - len(e.Context)/2
		if start < 1 {
			start = 1
		}
		for i, line := range e.Context {
			n := start + i
			marker := "    "
			if n == e.Location.Line {
				marker = "  " + color(colorRed, "→ ")
			}
			fmt.Fprintf(&b, "%s%4d%s%s\n", marker, n, color(colorGray, " │ "), line)
		}
		if len(e.Context) > 0 {
			b.WriteString("\n")
		}
	}

	if e.Detail != "" {
		for _, line := range wrapText(e.Detail, 70) {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	if e.Wrapped != nil {
		b.WriteString("  ")
		b.WriteString(color(colorGray, "Cause: "))
		b.WriteString(e.Wrapped.Error())
		b.WriteString("\n\n")
	}
	if e.Suggestion != "" {
		b.WriteString("  ")
		b.WriteString(color(colorCyan, "Hint: "))
		b.WriteString(e.Suggestion)
		b.WriteString("\n\n")
	}
	if e.DocURL != "" {
		b.WriteString("  ")
		b.WriteString(color(colorGray, "Learn more: "))
		b.WriteString(color(colorBlue, e.DocURL))
		b.WriteString("\n")
	}
	return b.String()
}

// FormatCompact returns a single-line form.
func (e *ReactorError) FormatCompact() string {
	var b strings.Builder
	if e.Location != nil {
		b.WriteString(e.Location.String())
		b.WriteString(": ")
	}
	b.WriteString(e.Error())
	return b.String()
}

type jsonError struct {
	Code       string    `json:"code,omitempty"`
	Category   Category  `json:"category"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	Location   *Location `json:"location,omitempty"`
	Suggestion string    `json:"suggestion,omitempty"`
	Cause      string    `json:"cause,omitempty"`
	DocURL     string    `json:"docUrl,omitempty"`
}

// FormatJSON returns the error as a JSON object.
func (e *ReactorError) FormatJSON() string {
	out := jsonError{
		Code:       e.Code,
		Category:   e.Category,
		Message:    e.Message,
		Detail:     e.Detail,
		Location:   e.Location,
		Suggestion: e.Suggestion,
		DocURL:     e.DocURL,
	}
	if e.Wrapped != nil {
		out.Cause = e.Wrapped.Error()
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf(`{"message":%q}`, e.Message)
	}
	return string(data)
}

func wrapText(text string, width int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= width {
		return []string{text}
	}

	var lines []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		if current.Len() > 0 && current.Len()+len(word)+1 > width {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}

// Fprint writes err to w in the style chosen by SetStyle. Errors without
// a ReactorError in their chain are reported by message alone.
func Fprint(w io.Writer, err error) {
	if err == nil {
		return
	}
	var re *ReactorError
	if !stderrors.As(err, &re) {
		re = &ReactorError{Message: err.Error()}
	}

	switch {
	case outputStyle == StyleJSON:
		fmt.Fprintln(w, re.FormatJSON())
	case outputStyle == StyleCompact:
		fmt.Fprintln(w, re.FormatCompact())
	case re.Code != "":
		fmt.Fprint(w, re.Format())
	default:
		fmt.Fprintf(w, "\n%s %s\n\n", color(colorRed+colorBold, "ERROR:"), re.Message)
	}
}

// PrintError prints err to stderr.
func PrintError(err error) {
	Fprint(os.Stderr, err)
}
