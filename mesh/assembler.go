package mesh

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrIncompleteGraph means a scanner's parent chain is missing a link or
// loops back on itself before reaching the reference scanner.
var ErrIncompleteGraph = errors.New("incomplete registration graph")

// GlobalFrame is every scanner and probe expressed in the reference frame.
type GlobalFrame struct {
	RunID     string
	Reference int
	Landmarks []Point3          // deduplicated, sorted
	Positions []ScannerPosition // ordered by scanner id
	SolvedAt  time.Time

	transforms map[int]RigidTransform
}

// Assemble walks each scanner's parent chain to the reference, composing the
// alignments into one transform per scanner, and collects the scanners'
// absolute positions and the union of their absolute probes.
func Assemble(g *RegistrationGraph, scanners []Scanner) (*GlobalFrame, error) {
	byID, ids, err := indexScanners(scanners)
	if err != nil {
		return nil, err
	}

	frame := &GlobalFrame{
		RunID:      uuid.New().String(),
		Reference:  g.Reference(),
		SolvedAt:   time.Now(),
		transforms: make(map[int]RigidTransform, len(ids)),
	}

	landmarks := make(PointSet)
	for _, id := range ids {
		chain, err := g.ChainTo(id)
		if err != nil {
			return nil, err
		}
		t := ComposeChain(chain)
		frame.transforms[id] = t

		parent := -1
		if a, ok := g.Alignment(id); ok {
			parent = a.Parent
		}
		frame.Positions = append(frame.Positions, ScannerPosition{
			ScannerID: id,
			Parent:    parent,
			Position:  t.Apply(Point3{}),
		})

		for _, p := range byID[id].Probes {
			landmarks[t.Apply(p)] = struct{}{}
		}
	}

	frame.Landmarks = make([]Point3, 0, len(landmarks))
	for p := range landmarks {
		frame.Landmarks = append(frame.Landmarks, p)
	}
	sort.Slice(frame.Landmarks, func(i, j int) bool {
		return frame.Landmarks[i].Less(frame.Landmarks[j])
	})

	return frame, nil
}

// ChainTo returns the alignment links from id out to the reference, most
// local first. The reference itself has an empty chain.
func (g *RegistrationGraph) ChainTo(id int) ([]RigidTransform, error) {
	var chain []RigidTransform
	visited := make(map[int]bool)
	for cur := id; cur != g.reference; {
		if visited[cur] {
			return nil, fmt.Errorf("%w: cycle through scanner %d", ErrIncompleteGraph, cur)
		}
		visited[cur] = true
		a, ok := g.alignments[cur]
		if !ok {
			return nil, fmt.Errorf("%w: scanner %d has no alignment", ErrIncompleteGraph, cur)
		}
		chain = append(chain, a.Transform())
		cur = a.Parent
	}
	return chain, nil
}

// Solve registers the scanners and assembles the global frame.
func Solve(ctx context.Context, scanners []Scanner, opts RegisterOptions) (*GlobalFrame, *RegistrationGraph, error) {
	return SolveFrom(ctx, NewRegistrationGraph(), scanners, opts)
}

// SolveFrom is like Solve but continues from an existing (for example cached) graph.
func SolveFrom(ctx context.Context, g *RegistrationGraph, scanners []Scanner, opts RegisterOptions) (*GlobalFrame, *RegistrationGraph, error) {
	if err := g.Resolve(ctx, scanners, opts); err != nil {
		return nil, g, err
	}
	frame, err := Assemble(g, scanners)
	if err != nil {
		return nil, g, err
	}
	opts.Metrics.observeFrame(frame)
	return frame, g, nil
}

// LandmarkCount is the number of distinct landmarks in the global frame.
func (f *GlobalFrame) LandmarkCount() int { return len(f.Landmarks) }

// MaxScannerDistance is the largest manhattan distance between any two
// scanner positions, or 0 with fewer than two scanners.
func (f *GlobalFrame) MaxScannerDistance() int64 {
	_, _, d, _ := f.FarthestPair()
	return d
}

// FarthestPair returns the two scanners furthest apart by manhattan distance.
// Ties keep the first pair in scanner id order.
func (f *GlobalFrame) FarthestPair() (a, b int, dist int64, ok bool) {
	for i := 0; i < len(f.Positions); i++ {
		for j := i + 1; j < len(f.Positions); j++ {
			d := ManhattanDistance(f.Positions[i].Position, f.Positions[j].Position)
			if !ok || d > dist {
				a, b, dist, ok = f.Positions[i].ScannerID, f.Positions[j].ScannerID, d, true
			}
		}
	}
	return a, b, dist, ok
}

// Transform returns the scanner's local-to-global transform.
func (f *GlobalFrame) Transform(id int) (RigidTransform, bool) {
	t, ok := f.transforms[id]
	return t, ok
}

// ToGlobal maps a point in scanner id's local frame into the global frame.
func (f *GlobalFrame) ToGlobal(id int, p Point3) (Point3, bool) {
	t, ok := f.transforms[id]
	if !ok {
		return Point3{}, false
	}
	return t.Apply(p), true
}

// Position returns the scanner's absolute position.
func (f *GlobalFrame) Position(id int) (ScannerPosition, bool) {
	for _, pos := range f.Positions {
		if pos.ScannerID == id {
			return pos, true
		}
	}
	return ScannerPosition{}, false
}

// Bounds returns the per-axis minimum and maximum over landmarks and scanner
// positions. ok is false for an empty frame.
func (f *GlobalFrame) Bounds() (lo, hi Point3, ok bool) {
	extend := func(p Point3) {
		if !ok {
			lo, hi, ok = p, p, true
			return
		}
		lo = Point3{X: min(lo.X, p.X), Y: min(lo.Y, p.Y), Z: min(lo.Z, p.Z)}
		hi = Point3{X: max(hi.X, p.X), Y: max(hi.Y, p.Y), Z: max(hi.Z, p.Z)}
	}
	for _, p := range f.Landmarks {
		extend(p)
	}
	for _, pos := range f.Positions {
		extend(pos.Position)
	}
	return lo, hi, ok
}

// Summary returns the JSON view of the frame.
func (f *GlobalFrame) Summary() FrameSummary {
	return FrameSummary{
		RunID:              f.RunID,
		ScannerCount:       len(f.Positions),
		LandmarkCount:      f.LandmarkCount(),
		MaxScannerDistance: f.MaxScannerDistance(),
		Positions:          f.Positions,
		SolvedAt:           f.SolvedAt,
	}
}
