// Package diff compares two trees: it pairs up the nodes at the same paths and
// reports how each pair of leaves differs.
package diff

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/internal/metrics"
	"github.com/brettbedarf/treefs/internal/util"
	"github.com/brettbedarf/treefs/pattern"
	"github.com/puzpuzpuz/xsync/v4"
)

// ErrNoMatch is the cause of the [treefs.NotFoundError] returned for an exact
// pattern that names nothing in either tree.
var ErrNoMatch = errors.New("No such file or directory on remote or local")

// Options configures [Diff].
type Options struct {
	// Depth limits recursion below each match, [Unlimited] for none
	Depth int
	// Parallelism above 1 compares sibling subtrees concurrently
	Parallelism int
	// Filter selects which statuses are reported; the zero Filter reports all
	Filter Filter
}

// Diff compares every leaf pair of a and b under the matches of p and calls fn
// for each difference. fn is never called concurrently. Results arrive in walk
// order, which depends on the stores; use [Collect] for sorted results.
//
// A failure on one leaf is logged and collected; the walk continues and the
// collected errors are returned joined at the end.
func Diff(ctx context.Context, p *pattern.Pattern, a, b treefs.Node, opts Options, fn func(*Result) error) error {
	logger := util.GetLogger("diff")
	var (
		found atomic.Bool
		mu    sync.Mutex
	)

	leaf := func(x, y treefs.Node) error {
		r, exists, err := diffLeaves(ctx, x, y)
		if exists {
			found.Store(true)
		}
		if err != nil {
			logger.Error().Err(err).Str("path", x.Path()).Msg("Failed to compare")
			return fmt.Errorf("%s: %w", x.Path(), err)
		}
		if r == nil {
			logger.Trace().Str("path", x.Path()).Msg("No difference")
			return nil
		}
		for _, w := range r.Warnings {
			logger.Warn().Str("path", r.Path).Msg(w)
		}
		if !opts.Filter.Allows(r.Status) {
			return nil
		}
		metrics.RecordDiffResult(r.Status.String())
		logger.Debug().Str("path", r.Path).Str("status", r.Status.String()).Msg("Difference")

		mu.Lock()
		defer mu.Unlock()
		return fn(r)
	}

	w := Walker{Depth: opts.Depth, Parallelism: opts.Parallelism}
	err := w.pairFromPattern(ctx, p, a, b, leaf)

	if !found.Load() {
		if path, ok := p.ExactPath(); ok {
			err = errors.Join(err, &treefs.NotFoundError{Path: path, Err: ErrNoMatch})
		}
	}
	return err
}

// Collect runs [Diff] and returns the results sorted by path.
// Results gathered before an error are returned with it.
func Collect(ctx context.Context, p *pattern.Pattern, a, b treefs.Node, opts Options) ([]*Result, error) {
	collected := xsync.NewMap[string, *Result]()
	err := Diff(ctx, p, a, b, opts, func(r *Result) error {
		collected.Store(r.Path, r)
		return nil
	})

	results := make([]*Result, 0, collected.Size())
	collected.Range(func(_ string, r *Result) bool {
		results = append(results, r)
		return true
	})
	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	return results, err
}

// Filter selects statuses by their codes.
type Filter struct {
	include map[Status]bool
	exclude map[Status]bool
}

// ParseFilter parses a diff filter such as "MAT". Upper case codes select only
// those statuses, lower case codes exclude them.
func ParseFilter(s string) (Filter, error) {
	var f Filter
	for _, r := range s {
		status, ok := statusForCode(strings.ToUpper(string(r)))
		if !ok {
			return Filter{}, fmt.Errorf("unknown diff filter %q", string(r))
		}
		if strings.ToUpper(string(r)) == string(r) {
			if f.include == nil {
				f.include = map[Status]bool{}
			}
			f.include[status] = true
		} else {
			if f.exclude == nil {
				f.exclude = map[Status]bool{}
			}
			f.exclude[status] = true
		}
	}
	return f, nil
}

// Allows reports whether results with status s pass the filter.
func (f Filter) Allows(s Status) bool {
	if f.exclude[s] {
		return false
	}
	if f.include != nil {
		return f.include[s]
	}
	return true
}

func statusForCode(code string) (Status, bool) {
	for _, s := range []Status{StatusModified, StatusAdded, StatusDeleted, StatusTypeChanged} {
		if s.Code() == code {
			return s, true
		}
	}
	return 0, false
}
