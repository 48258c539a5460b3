package rubric

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	numberLetterRe = regexp.MustCompile(`^(\d+)([A-Z])$`)
	separatorRe    = regexp.MustCompile(`[_.\s]+`)
	nonAlnumRe     = regexp.MustCompile(`[^0-9a-zA-Z]`)
	nonLowerAlnum  = regexp.MustCompile(`[^a-z0-9]`)
)

var idReplacer = strings.NewReplacer(
	"(", "-",
	")", "",
	"[", "",
	"]", "",
	"Q", "",
	"_", "-",
)

// NormalizeID folds common spellings of a question label onto one form, so
// "1A", "Q1_1" and "1.1" all become "1-1".
func NormalizeID(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = idReplacer.Replace(s)
	if m := numberLetterRe.FindStringSubmatch(s); m != nil {
		return fmt.Sprintf("%s-%d", m[1], int(m[2][0]-'A')+1)
	}
	return strings.Trim(separatorRe.ReplaceAllString(s, "-"), "-")
}

// CompactID lowercases id and drops everything that is not a letter or digit.
func CompactID(id string) string {
	return nonLowerAlnum.ReplaceAllString(strings.ToLower(strings.TrimSpace(id)), "")
}

// Labels lists the gradable regions of the rubric in declaration order: one
// label per sub-question, or the question id when it has none. Sub-question
// ids that do not already carry the parent id are prefixed with it.
func (r *Rubric) Labels() []string {
	if r == nil {
		return nil
	}
	var labels []string
	for _, q := range r.Questions {
		pid := q.ID.String()
		if pid == "" {
			pid = "Q?"
		}
		if len(q.SubQuestions) == 0 {
			labels = append(labels, pid)
			continue
		}
		for i, sq := range q.SubQuestions {
			sid := sq.ID.String()
			if sid != "" && strings.HasPrefix(sid, pid) {
				labels = append(labels, sid)
				continue
			}
			clean := nonAlnumRe.ReplaceAllString(sid, "")
			if clean == "" {
				clean = strconv.Itoa(i + 1)
			}
			labels = append(labels, pid+"-"+clean)
		}
	}
	return labels
}

// MaxPoints returns the declared maximum for a question or sub-question id.
// Ids are compared in compact form, and a sub-question also matches the
// concatenation of its parent id and its own id.
func (r *Rubric) MaxPoints(id string) (float64, bool) {
	if r == nil {
		return 0, false
	}
	target := CompactID(id)
	for _, q := range r.Questions {
		qn := CompactID(q.ID.String())
		if qn == target {
			return q.Max(), true
		}
		for _, sq := range q.SubQuestions {
			sn := CompactID(sq.ID.String())
			if sn == target || qn+sn == target {
				return sq.Max(), true
			}
		}
	}
	return 0, false
}
