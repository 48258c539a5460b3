// Package types contains the lenient scalar types shared by rubric and grading documents.
// Rubrics and model responses are machine written and mix "5" and 5 freely; these
// types accept either form.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Number is a float that unmarshals from a JSON/YAML number, a numeric string or null.
type Number float64

// Float returns n as float64.
func (n Number) Float() float64 { return float64(n) }

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		return n.parse(s)
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("number: %w", err)
	}
	*n = Number(f)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (n *Number) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!null" {
		*n = 0
		return nil
	}
	return n.parse(value.Value)
}

func (n *Number) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("number: %q is not numeric", s)
	}
	*n = Number(f)
	return nil
}

// ID is a string identifier that unmarshals from a string or a number.
type ID string

// String returns the trimmed identifier.
func (id ID) String() string { return strings.TrimSpace(string(id)) }

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(num.String())
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (id *ID) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!null" {
		*id = ""
		return nil
	}
	*id = ID(value.Value)
	return nil
}

// Text is free text that also accepts a bare number, e.g. an expected answer of 0.5.
type Text string

// String returns the trimmed text.
func (t Text) String() string { return strings.TrimSpace(string(t)) }

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	var id ID
	if err := id.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("text: %w", err)
	}
	*t = Text(id)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Text) UnmarshalYAML(value *yaml.Node) error {
	var id ID
	if err := id.UnmarshalYAML(value); err != nil {
		return err
	}
	*t = Text(id)
	return nil
}
