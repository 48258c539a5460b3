package rubric

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/okian/grader/pkg/metrics"
)

// CompileOptions controls ingestion hygiene.
type CompileOptions struct {
	Subject     string
	InferChecks bool
	FixTotals   bool
}

// Compiled is a parsed rubric with its derived, read-only lookups. It is
// shared between concurrent graders and must not be mutated.
type Compiled struct {
	Rubric *Rubric
	Index  *Index
	Labels []string
	Text   string
}

// Compile parses text and derives the index and label list.
func Compile(text string, opts CompileOptions) (*Compiled, error) {
	r, err := Parse(text)
	if err != nil {
		return nil, err
	}
	if opts.FixTotals {
		r.FixTotals()
	}
	if opts.InferChecks {
		r.InferChecks(opts.Subject)
	}
	out := &Compiled{Rubric: r, Index: BuildIndex(r), Labels: r.Labels(), Text: text}
	if opts.FixTotals || opts.InferChecks {
		out.Text = r.JSON()
	}
	return out, nil
}

// Cache memoizes Compile by rubric content; one rubric is shared by every
// submission of a batch and often across batches.
type Cache struct {
	entries *lru.Cache[string, *Compiled]
}

// NewCache returns a cache holding up to size compiled rubrics.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = 128
	}
	entries, err := lru.New[string, *Compiled](size)
	if err != nil {
		return nil, fmt.Errorf("rubric cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Compile returns the cached compilation of text, compiling on a miss.
func (c *Cache) Compile(text string, opts CompileOptions) (*Compiled, error) {
	key := cacheKey(text, opts)
	if v, ok := c.entries.Get(key); ok {
		metrics.RecordRubricCacheLookup(true)
		return v, nil
	}
	metrics.RecordRubricCacheLookup(false)
	v, err := Compile(text, opts)
	if err != nil {
		return nil, err
	}
	c.entries.Add(key, v)
	return v, nil
}

// Len returns the number of cached rubrics.
func (c *Cache) Len() int { return c.entries.Len() }

func cacheKey(text string, opts CompileOptions) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%t|%t|", opts.Subject, opts.InferChecks, opts.FixTotals)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
