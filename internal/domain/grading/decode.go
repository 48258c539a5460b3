package grading

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/okian/grader/internal/util"
)

// Identity is the reply of the header identification call.
type Identity struct {
	StudentID string `json:"Student ID"`
	Name      string `json:"Name"`
}

// Empty reports whether neither field was read.
func (i Identity) Empty() bool { return i.StudentID == "" && i.Name == "" }

// BlankUnknown trims s and blanks the placeholders models use for unreadable
// text.
func BlankUnknown(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "unknown", "none", "null":
		return ""
	}
	return s
}

func decodeJSON(text string, v any) error {
	body := strings.TrimSpace(util.StripCodeFences(text))
	if body == "" {
		return ErrEmptyReply
	}
	err := json.Unmarshal([]byte(body), v)
	if err == nil {
		return nil
	}
	if obj, ok := util.ExtractJSONObject(body); ok {
		if err2 := json.Unmarshal([]byte(obj), v); err2 == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %v", ErrDecodeReply, err)
}

// DecodeResponse parses a whole-submission reply.
func DecodeResponse(text string) (*Response, error) {
	var r Response
	if err := decodeJSON(text, &r); err != nil {
		return nil, err
	}
	if r.Questions == nil {
		r.Questions = []Question{}
	}
	return &r, nil
}

// DecodeGrid parses a grid reply.
func DecodeGrid(text string) (*GridResponse, error) {
	var g GridResponse
	if err := decodeJSON(text, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// DecodeIdentity parses an identity reply. Placeholder answers such as
// "Unknown" are blanked.
func DecodeIdentity(text string) (Identity, error) {
	var id Identity
	if err := decodeJSON(text, &id); err != nil {
		return Identity{}, err
	}
	id.StudentID = BlankUnknown(id.StudentID)
	id.Name = BlankUnknown(id.Name)
	return id, nil
}
