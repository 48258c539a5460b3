package storage

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"unicode"

	"github.com/okian/grader/internal/domain/model"
	"github.com/okian/grader/internal/util"
)

// ObjectSource loads submissions laid out as <prefix>/<submission>/<page>
// and archives finished batches under results/<batch>.json.
type ObjectSource struct {
	bucket Bucket
}

// NewObjectSource wraps a bucket.
func NewObjectSource(b Bucket) *ObjectSource {
	return &ObjectSource{bucket: b}
}

// Submissions returns one submission per directory under prefix, ordered by
// name, with pages in natural name order. Objects directly under prefix are
// ignored.
func (s *ObjectSource) Submissions(ctx context.Context, prefix string) ([]model.Submission, error) {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, ErrEmptyPrefix
	}
	keys, err := s.bucket.List(ctx, prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	pages := map[string][]string{}
	for _, k := range keys {
		rel := strings.TrimPrefix(k, prefix+"/")
		dir, file := path.Split(rel)
		dir = strings.TrimSuffix(dir, "/")
		if dir == "" || file == "" || strings.Contains(dir, "/") {
			continue
		}
		pages[dir] = append(pages[dir], k)
	}

	names := make([]string, 0, len(pages))
	for n := range pages {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return NaturalLess(names[i], names[j]) })

	out := make([]model.Submission, 0, len(names))
	for _, n := range names {
		ks := pages[n]
		sort.Slice(ks, func(i, j int) bool { return NaturalLess(ks[i], ks[j]) })
		sub := model.Submission{Key: n}
		for _, k := range ks {
			data, err := s.bucket.Get(ctx, k)
			if err != nil {
				return nil, fmt.Errorf("get %s: %w", k, err)
			}
			sub.Pages = append(sub.Pages, model.Page{Data: data, MIME: util.PickMIME("", "", data)})
		}
		out = append(out, sub)
	}
	return out, nil
}

// Archive stores the final batch document.
func (s *ObjectSource) Archive(ctx context.Context, batchID string, doc []byte) error {
	return s.bucket.Put(ctx, "results/"+batchID+".json", doc, "application/json")
}

// NaturalLess orders strings with embedded numbers by numeric value, so
// page2 sorts before page10.
func NaturalLess(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	i, j := 0, 0
	for i < len(ra) && j < len(rb) {
		if unicode.IsDigit(ra[i]) && unicode.IsDigit(rb[j]) {
			si := i
			for i < len(ra) && unicode.IsDigit(ra[i]) {
				i++
			}
			sj := j
			for j < len(rb) && unicode.IsDigit(rb[j]) {
				j++
			}
			na := strings.TrimLeft(string(ra[si:i]), "0")
			nb := strings.TrimLeft(string(rb[sj:j]), "0")
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			continue
		}
		if ra[i] != rb[j] {
			return ra[i] < rb[j]
		}
		i++
		j++
	}
	return len(ra)-i < len(rb)-j
}
