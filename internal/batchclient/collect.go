package batchclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/okian/grader/internal/adapters/storage"
	"github.com/okian/grader/internal/util"
	"github.com/okian/grader/pkg/logger"
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true}

func isImage(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// Collect reads dir into submissions. Each sub-directory is one student whose
// image files are the pages in natural order; an image directly under dir is
// a one-page submission keyed by its file name.
func Collect(ctx context.Context, dir string, workers int) ([]Submission, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	type unit struct {
		key   string
		files []string
	}
	var units []unit
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		switch {
		case e.IsDir():
			files, err := pageFiles(filepath.Join(dir, name))
			if err != nil {
				return nil, err
			}
			if len(files) == 0 {
				logger.Get().Warn(ctx, "skipping folder without images", logger.String("folder", name))
				continue
			}
			units = append(units, unit{key: name, files: files})
		case isImage(name):
			units = append(units, unit{
				key:   strings.TrimSuffix(name, filepath.Ext(name)),
				files: []string{filepath.Join(dir, name)},
			})
		}
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSubmissions, dir)
	}
	sort.Slice(units, func(i, j int) bool { return storage.NaturalLess(units[i].key, units[j].key) })

	subs := make([]Submission, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, u := range units {
		g.Go(func() error {
			pages := make([]Page, 0, len(u.files))
			for _, f := range u.files {
				if err := gctx.Err(); err != nil {
					return err
				}
				p, err := readPage(f)
				if err != nil {
					return err
				}
				pages = append(pages, p)
			}
			subs[i] = Submission{Key: u.key, Pages: pages}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return subs, nil
}

func pageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !isImage(e.Name()) {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Slice(files, func(i, j int) bool { return storage.NaturalLess(files[i], files[j]) })
	for i, f := range files {
		files[i] = filepath.Join(dir, f)
	}
	return files, nil
}

func readPage(path string) (Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Page{}, fmt.Errorf("read page: %w", err)
	}
	hint := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	return Page{
		Data: base64.StdEncoding.EncodeToString(data),
		MIME: util.PickMIME("", hint, data),
	}, nil
}
