package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as a string such as "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return &fieldError{code: "R104", line: node.Line, column: node.Column, err: err}
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return &fieldError{code: "R104", line: node.Line, column: node.Column, err: err}
	}
	if v < 0 {
		return &fieldError{code: "R104", line: node.Line, column: node.Column,
			err: fmt.Errorf("negative duration %s", s)}
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// fieldError is a value error at a position in the file being decoded.
type fieldError struct {
	code   string
	line   int
	column int
	err    error
}

func (e *fieldError) Error() string {
	return fmt.Sprintf("line %d: %v", e.line, e.err)
}

func (e *fieldError) Unwrap() error { return e.err }
