package grading

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// latexMacros are repaired when they appear as a whole word without a
// leading backslash.
var latexMacros = map[string]struct{}{
	"frac": {}, "int": {}, "sqrt": {}, "sum": {}, "lim": {},
	"times": {}, "infty": {}, "approx": {}, "cdot": {},
	"sin": {}, "cos": {}, "tan": {}, "cot": {}, "sec": {}, "csc": {},
	"ln": {}, "log": {},
}

// SanitizeText restores escapes that a single-escaped JSON string turned
// into control characters and drops the remaining control characters.
// Newlines and carriage returns are kept.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\f':
			b.WriteString(`\f`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\n', '\r':
			b.WriteRune(r)
		default:
			if r < 0x20 || r == 0x7f {
				continue
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// RepairLaTeX prefixes a backslash to known macro names written as a whole
// word with no backslash before them. Words glued to other letters, digits
// or CJK text are left untouched.
func RepairLaTeX(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	prev := rune(-1)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isWordRune(r) {
			b.WriteRune(r)
			prev = r
			i += size
			continue
		}
		j := i
		for j < len(s) {
			rr, sz := utf8.DecodeRuneInString(s[j:])
			if !isWordRune(rr) {
				break
			}
			j += sz
		}
		word := s[i:j]
		if _, ok := latexMacros[word]; ok && prev != '\\' {
			b.WriteByte('\\')
		}
		b.WriteString(word)
		prev, _ = utf8.DecodeLastRuneInString(word)
		i = j
	}
	return b.String()
}

func cleanField(s string) string {
	return RepairLaTeX(SanitizeText(s))
}

// SanitizeResponse cleans every human readable string field of resp.
// Transcribed expressions only lose control characters; macro repair never
// touches them.
func SanitizeResponse(resp *Response) *Response {
	if resp == nil {
		return nil
	}
	resp.StudentInfo.Name = SanitizeText(resp.StudentInfo.Name)
	resp.StudentInfo.ID = SanitizeText(resp.StudentInfo.ID)
	resp.ThinkingProcess = cleanField(resp.ThinkingProcess)
	resp.GeneralComment = cleanField(resp.GeneralComment)
	for qi := range resp.Questions {
		q := &resp.Questions[qi]
		q.Reasoning = cleanField(q.Reasoning)
		sanitizeItems(q.Breakdown)
	}
	return resp
}

// SanitizeGrid cleans the string fields of a grid reply.
func SanitizeGrid(g *GridResponse) *GridResponse {
	if g == nil {
		return nil
	}
	for i := range g.Results {
		g.Results[i].Reasoning = cleanField(g.Results[i].Reasoning)
		sanitizeItems(g.Results[i].Breakdown)
	}
	return g
}

func sanitizeItems(items []Item) {
	for i := range items {
		it := &items[i]
		it.Rule = cleanField(it.Rule)
		it.Comment = cleanField(it.Comment)
		it.Evidence = cleanField(it.Evidence)
		it.SympyExpr = SanitizeText(it.SympyExpr)
	}
}
