// Package util holds small helpers for model-produced payloads.
package util

import (
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?is)```(?:json|yaml|yml)?\\s*(.*?)\\s*```")

// StripCodeFences returns the body of the first fenced block in s, or s
// trimmed when it carries no fence.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// ExtractJSONObject returns the text between the first '{' and the last '}'
// of s, for replies that wrap their JSON in prose.
func ExtractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
