package mesh

// OverlapThreshold is the minimum number of coincident probes needed to
// accept an alignment as genuine.
const OverlapThreshold = 12

// PointSet is an exact-coordinate set of points.
type PointSet map[Point3]struct{}

// NewPointSet builds a set from points, dropping duplicates.
func NewPointSet(points []Point3) PointSet {
	s := make(PointSet, len(points))
	for _, p := range points {
		s[p] = struct{}{}
	}
	return s
}

// Contains reports whether p is in the set.
func (s PointSet) Contains(p Point3) bool {
	_, ok := s[p]
	return ok
}

// uniquePoints returns points with duplicates removed, keeping first-seen order.
func uniquePoints(points []Point3) []Point3 {
	seen := make(PointSet, len(points))
	out := make([]Point3, 0, len(points))
	for _, p := range points {
		if seen.Contains(p) {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// AlignOptions tunes the pairwise search.
type AlignOptions struct {
	// DetectAmbiguity keeps searching after the first match to report
	// whether a second, different transform also clears the threshold.
	// The first match is still the one returned.
	DetectAmbiguity bool
}

// AlignResult is an accepted candidate-to-fixed transform.
type AlignResult struct {
	Orientation Orientation
	Translation Point3
	Overlap     int  // coincident probes under the transform
	Ambiguous   bool // another transform also cleared the threshold
}

// Transform returns the result as a rigid transform from candidate to fixed frame.
func (r AlignResult) Transform() RigidTransform {
	return RigidTransform{Orientation: r.Orientation, Translation: r.Translation}
}

// Align searches the 24 orientations in their fixed order, and within each
// orientation every translation p-q for p in fixed and q in the rotated
// candidate, for a transform under which at least OverlapThreshold candidate
// probes land exactly on fixed probes. The first qualifying transform wins.
func Align(fixed, candidate []Point3) (AlignResult, bool) {
	return AlignWithOptions(fixed, candidate, AlignOptions{})
}

// AlignWithOptions is like Align but accepts search options.
func AlignWithOptions(fixed, candidate []Point3, opts AlignOptions) (AlignResult, bool) {
	fixedSet := NewPointSet(fixed)
	fixedPoints := uniquePoints(fixed)
	candidatePoints := uniquePoints(candidate)

	if len(fixedPoints) < OverlapThreshold || len(candidatePoints) < OverlapThreshold {
		return AlignResult{}, false
	}

	var (
		best  AlignResult
		found bool
	)

	for _, o := range orientationTable {
		rotated := o.ApplyAll(candidatePoints)
		tried := make(map[Point3]struct{}, len(fixedPoints)*len(rotated))

		for _, p := range fixedPoints {
			for _, q := range rotated {
				t := p.Sub(q)
				if _, seen := tried[t]; seen {
					continue
				}
				tried[t] = struct{}{}

				n := countTranslated(fixedSet, rotated, t)
				if n < OverlapThreshold {
					continue
				}
				if !found {
					best = AlignResult{Orientation: o, Translation: t, Overlap: n}
					found = true
					if !opts.DetectAmbiguity {
						return best, true
					}
					continue
				}
				if !sameMapping(best, o, t, candidatePoints) {
					best.Ambiguous = true
					return best, true
				}
			}
		}
	}

	return best, found
}

// countTranslated counts rotated points that land in fixed after adding t.
// It stops early once the threshold can no longer be reached.
func countTranslated(fixed PointSet, rotated []Point3, t Point3) int {
	n := 0
	for i, q := range rotated {
		if fixed.Contains(q.Add(t)) {
			n++
		}
		if remaining := len(rotated) - i - 1; n+remaining < OverlapThreshold {
			return n
		}
	}
	return n
}

// sameMapping reports whether (o, t) sends every candidate point to the same
// place as the accepted result. Degenerate probe sets can admit several
// equivalent (orientation, translation) pairs that are not a real conflict.
func sameMapping(accepted AlignResult, o Orientation, t Point3, candidate []Point3) bool {
	first := accepted.Transform()
	other := RigidTransform{Orientation: o, Translation: t}
	for _, q := range candidate {
		if first.Apply(q) != other.Apply(q) {
			return false
		}
	}
	return true
}

// CountOverlap counts candidate probes that coincide with fixed probes after
// applying transform.
func CountOverlap(fixed, candidate []Point3, transform RigidTransform) int {
	fixedSet := NewPointSet(fixed)
	n := 0
	for _, q := range uniquePoints(candidate) {
		if fixedSet.Contains(transform.Apply(q)) {
			n++
		}
	}
	return n
}

// VerifyAlignment reports whether the alignment still brings at least
// OverlapThreshold of the child's probes onto the parent's.
func VerifyAlignment(a Alignment, parent, child []Point3) bool {
	return CountOverlap(parent, child, a.Transform()) >= OverlapThreshold
}
