package mesh

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrUnregistrable means some scanners could not be chained to the
	// reference: a full pass made no progress or the pass limit was reached.
	ErrUnregistrable = errors.New("unregistrable scanner set")

	// ErrInvalidScanners means the scanner list cannot be registered at all
	// (duplicate ids or no reference scanner).
	ErrInvalidScanners = errors.New("invalid scanner set")
)

// RegistrationError reports which scanners were left unregistered.
type RegistrationError struct {
	Unregistered []int
	Passes       int
	PassLimit    bool // stopped by RegisterOptions.MaxPasses rather than lack of progress
}

func (e *RegistrationError) Error() string {
	reason := "no progress"
	if e.PassLimit {
		reason = "pass limit reached"
	}
	return fmt.Sprintf("%v: %s after %d passes, unregistered scanners %v",
		ErrUnregistrable, reason, e.Passes, e.Unregistered)
}

func (e *RegistrationError) Unwrap() error { return ErrUnregistrable }

// RegisterOptions controls a registration run.
type RegisterOptions struct {
	Workers         int  // parallel alignment attempts per scanner; <= 1 is sequential
	MaxPasses       int  // 0 = run until done or a pass makes no progress
	DetectAmbiguity bool // log when a second transform also clears the threshold
	Verbose         bool
	Metrics         *Metrics
}

type attemptKey struct {
	child  int
	parent int
}

// RegistrationGraph holds the alignment of every registered scanner to its
// parent, and the (child, parent) pairs already attempted. The reference
// scanner is registered by definition and has no alignment.
type RegistrationGraph struct {
	reference  int
	alignments map[int]Alignment
	tried      map[attemptKey]struct{}
	passes     int
}

// NewRegistrationGraph returns a graph where only the reference scanner is registered.
func NewRegistrationGraph() *RegistrationGraph {
	return &RegistrationGraph{
		reference:  ReferenceScannerID,
		alignments: make(map[int]Alignment),
		tried:      make(map[attemptKey]struct{}),
	}
}

// Reference returns the id of the reference scanner.
func (g *RegistrationGraph) Reference() int { return g.reference }

// Passes returns the number of passes run so far.
func (g *RegistrationGraph) Passes() int { return g.passes }

// IsRegistered reports whether id has a known transform to the reference.
func (g *RegistrationGraph) IsRegistered(id int) bool {
	if id == g.reference {
		return true
	}
	_, ok := g.alignments[id]
	return ok
}

// Alignment returns the alignment recorded for id.
func (g *RegistrationGraph) Alignment(id int) (Alignment, bool) {
	a, ok := g.alignments[id]
	return a, ok
}

// Alignments returns all recorded alignments ordered by child id.
func (g *RegistrationGraph) Alignments() []Alignment {
	out := make([]Alignment, 0, len(g.alignments))
	for _, a := range g.alignments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Child < out[j].Child })
	return out
}

// Registered returns the ids of all registered scanners in ascending order.
func (g *RegistrationGraph) Registered() []int {
	ids := make([]int, 0, len(g.alignments)+1)
	ids = append(ids, g.reference)
	for id := range g.alignments {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Tried reports whether child has already been attempted against parent.
func (g *RegistrationGraph) Tried(child, parent int) bool {
	_, ok := g.tried[attemptKey{child, parent}]
	return ok
}

// Len returns the number of registered scanners, reference included.
func (g *RegistrationGraph) Len() int { return len(g.alignments) + 1 }

// record stores an alignment. A scanner is registered at most once.
func (g *RegistrationGraph) record(a Alignment) error {
	if a.Child == g.reference {
		return fmt.Errorf("recording alignment: scanner %d is the reference", a.Child)
	}
	if _, exists := g.alignments[a.Child]; exists {
		return fmt.Errorf("recording alignment: scanner %d already registered", a.Child)
	}
	if !g.IsRegistered(a.Parent) {
		return fmt.Errorf("recording alignment: parent %d of scanner %d is not registered", a.Parent, a.Child)
	}
	g.alignments[a.Child] = a
	return nil
}

// Register resolves an alignment for every scanner, starting from a graph in
// which only the reference scanner is registered.
func Register(ctx context.Context, scanners []Scanner, opts RegisterOptions) (*RegistrationGraph, error) {
	g := NewRegistrationGraph()
	if err := g.Resolve(ctx, scanners, opts); err != nil {
		return g, err
	}
	return g, nil
}

// Resolve runs passes until every scanner is registered. Each pass visits
// unregistered scanners in ascending id order and tries them against every
// registered scanner they have not been tried against, in ascending id
// order; a scanner registered earlier in a pass is a parent candidate for
// the scanners after it. The lowest-id parent that aligns is kept, so the
// result does not depend on Workers.
func (g *RegistrationGraph) Resolve(ctx context.Context, scanners []Scanner, opts RegisterOptions) error {
	byID, ids, err := indexScanners(scanners)
	if err != nil {
		return err
	}
	if _, ok := byID[g.reference]; !ok {
		return fmt.Errorf("%w: reference scanner %d missing", ErrInvalidScanners, g.reference)
	}

	start := time.Now()
	defer func() { opts.Metrics.observeRegistration(time.Since(start), g.Len()) }()

	for !g.complete(ids) {
		if opts.MaxPasses > 0 && g.passes >= opts.MaxPasses {
			return &RegistrationError{Unregistered: g.unregistered(ids), Passes: g.passes, PassLimit: true}
		}
		g.passes++
		opts.Metrics.observePass()

		progress := false
		for _, child := range ids {
			if g.IsRegistered(child) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("registering scanner %d: %w", child, err)
			}

			parents := g.untriedParents(child)
			if len(parents) == 0 {
				continue
			}

			a, ok, err := g.attempt(ctx, byID, child, parents, opts)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := g.record(a); err != nil {
				return err
			}
			progress = true
			if opts.Verbose {
				log.Printf("[REGISTER] scanner %d -> %d orientation=%s translation=%s overlap=%d",
					a.Child, a.Parent, a.Orientation, a.Translation, a.Overlap)
			}
		}

		if opts.Verbose {
			log.Printf("[REGISTER] pass %d: %d/%d scanners registered", g.passes, g.Len(), len(ids))
		}
		if !progress && !g.complete(ids) {
			return &RegistrationError{Unregistered: g.unregistered(ids), Passes: g.passes}
		}
	}
	return nil
}

// attempt aligns child against each candidate parent and returns the
// alignment to the first parent (in the given order) that succeeds. Every
// pair that was actually searched is marked as tried.
func (g *RegistrationGraph) attempt(ctx context.Context, byID map[int]Scanner, child int, parents []int, opts RegisterOptions) (Alignment, bool, error) {
	alignOpts := AlignOptions{DetectAmbiguity: opts.DetectAmbiguity}
	childProbes := byID[child].Probes

	if opts.Workers <= 1 {
		for _, parent := range parents {
			res, ok := AlignWithOptions(byID[parent].Probes, childProbes, alignOpts)
			g.tried[attemptKey{child, parent}] = struct{}{}
			opts.Metrics.observeAttempt(ok)
			if ok {
				warnAmbiguous(child, parent, res)
				return newAlignment(child, parent, res), true, nil
			}
		}
		return Alignment{}, false, nil
	}

	type outcome struct {
		res AlignResult
		ok  bool
	}
	results := make([]outcome, len(parents))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.Workers)
	for i, parent := range parents {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			res, ok := AlignWithOptions(byID[parent].Probes, childProbes, alignOpts)
			results[i] = outcome{res: res, ok: ok}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Alignment{}, false, fmt.Errorf("registering scanner %d: %w", child, err)
	}

	for i, parent := range parents {
		g.tried[attemptKey{child, parent}] = struct{}{}
		opts.Metrics.observeAttempt(results[i].ok)
	}
	for i, parent := range parents {
		if results[i].ok {
			warnAmbiguous(child, parent, results[i].res)
			return newAlignment(child, parent, results[i].res), true, nil
		}
	}
	return Alignment{}, false, nil
}

func newAlignment(child, parent int, res AlignResult) Alignment {
	return Alignment{
		Child:       child,
		Parent:      parent,
		Orientation: res.Orientation,
		Translation: res.Translation,
		Overlap:     res.Overlap,
	}
}

func warnAmbiguous(child, parent int, res AlignResult) {
	if res.Ambiguous {
		log.Printf("[REGISTER] Warning: scanner %d has more than one transform onto %d; using %s + %s",
			child, parent, res.Orientation, res.Translation)
	}
}

// untriedParents lists registered scanners not yet attempted for child.
func (g *RegistrationGraph) untriedParents(child int) []int {
	var parents []int
	for _, id := range g.Registered() {
		if !g.Tried(child, id) {
			parents = append(parents, id)
		}
	}
	return parents
}

func (g *RegistrationGraph) complete(ids []int) bool {
	for _, id := range ids {
		if !g.IsRegistered(id) {
			return false
		}
	}
	return true
}

func (g *RegistrationGraph) unregistered(ids []int) []int {
	var out []int
	for _, id := range ids {
		if !g.IsRegistered(id) {
			out = append(out, id)
		}
	}
	return out
}

// indexScanners maps scanners by id and returns the ids in ascending order.
func indexScanners(scanners []Scanner) (map[int]Scanner, []int, error) {
	byID := make(map[int]Scanner, len(scanners))
	ids := make([]int, 0, len(scanners))
	for _, s := range scanners {
		if _, dup := byID[s.ID]; dup {
			return nil, nil, fmt.Errorf("%w: duplicate scanner id %d", ErrInvalidScanners, s.ID)
		}
		byID[s.ID] = s
		ids = append(ids, s.ID)
	}
	sort.Ints(ids)
	return byID, ids, nil
}
