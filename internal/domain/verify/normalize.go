package verify

import "strings"

var latexStripper = strings.NewReplacer(
	`\left`, "",
	`\right`, "",
	`\mathrm`, "",
	`\text`, "",
)

var operatorReplacer = strings.NewReplacer(
	"−", "-",
	"×", "*",
	"÷", "/",
)

// Normalize turns a LaTeX-flavoured transcription into the plain operator
// syntax the parser accepts. It is a lexical pass and loses structure for
// nested \frac, \sum or \int input.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = latexStripper.Replace(s)
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, `\frac`, "")
	s = strings.ReplaceAll(s, `\`, "")
	s = operatorReplacer.Replace(s)
	return caretToPower(s)
}

// caretToPower rewrites every '^' that is not next to a '*' into "**".
func caretToPower(s string) string {
	if !strings.Contains(s, "^") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '^' {
			b.WriteByte(c)
			continue
		}
		prevStar := i > 0 && s[i-1] == '*'
		nextStar := i+1 < len(s) && s[i+1] == '*'
		if prevStar || nextStar {
			b.WriteByte(c)
			continue
		}
		b.WriteString("**")
	}
	return b.String()
}
