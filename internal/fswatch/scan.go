// Package fswatch scans content folders and watches them for changes.
// Scanning builds immutable path indices; watching feeds changed paths
// into a bounded channel after debouncing.
package fswatch

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/logger"
)

// scanWorkers bounds concurrent per-entry work during a scan.
const scanWorkers = 8

// Filters restricts which directories are descended into and which
// files are recorded. Nil patterns match everything.
type Filters struct {
	Dir  *regexp.Regexp
	File *regexp.Regexp
}

// Record describes one scanned file.
type Record struct {
	// Abs is the canonicalized absolute path.
	Abs string

	// Rel is the path relative to the canonical root.
	Rel string

	// Size and ModTime come from the stat at scan time.
	Size    int64
	ModTime int64
}

// Report collects the non-fatal problems hit during a scan.
type Report struct {
	mu     sync.Mutex
	Errors []error
}

func (r *Report) add(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, err)
}

// Len reports how many non-fatal errors were collected.
func (r *Report) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Errors)
}

// Result is an immutable scan outcome with both path indices. Refresh
// re-scans with the same root and filters.
type Result struct {
	Root    string
	ByAbs   map[string]*Record
	ByRel   map[string]*Record
	Report  *Report
	filters Filters
}

// Scan traverses root without following symlinks, canonicalizes every
// file path and indexes records by absolute and relative path. Walk and
// stat problems land in the report instead of aborting.
func Scan(root string, filters Filters) (*Result, error) {
	canonRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, err
	}
	canonRoot, err = filepath.Abs(canonRoot)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Root:    canonRoot,
		ByAbs:   make(map[string]*Record),
		ByRel:   make(map[string]*Record),
		Report:  &Report{},
		filters: filters,
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(scanWorkers)

	// hard-linked files coalesce into one record keyed by device+inode
	seen := make(map[fileKey]string)

	walkErr := filepath.WalkDir(canonRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			res.Report.add(err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != canonRoot && filters.Dir != nil && !filters.Dir.MatchString(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if filters.File != nil && !filters.File.MatchString(d.Name()) {
			return nil
		}

		g.Go(func() error {
			abs, err := filepath.EvalSymlinks(path)
			if err != nil {
				res.Report.add(err)
				return nil
			}
			rel, err := filepath.Rel(canonRoot, abs)
			if err != nil {
				res.Report.add(err)
				return nil
			}
			info, err := os.Stat(abs)
			if err != nil {
				res.Report.add(err)
				return nil
			}

			rec := &Record{
				Abs:     abs,
				Rel:     rel,
				Size:    info.Size(),
				ModTime: info.ModTime().UnixNano(),
			}

			mu.Lock()
			defer mu.Unlock()
			if key, ok := sameFileKey(info); ok {
				if prior, dup := seen[key]; dup {
					logger.Debug("coalescing hard link", "path", abs, "into", prior)
					return nil
				}
				seen[key] = abs
			}
			res.ByAbs[abs] = rec
			res.ByRel[rel] = rec
			return nil
		})
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if walkErr != nil {
		res.Report.add(walkErr)
	}
	return res, nil
}

// Refresh performs a fresh scan with the original root and filters.
func (r *Result) Refresh() (*Result, error) {
	return Scan(r.Root, r.filters)
}
