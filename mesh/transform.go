package mesh

// component returns the coordinate at index 0 (x), 1 (y) or 2 (z).
func (p Point3) component(i int) int64 {
	switch i {
	case 0:
		return p.X
	case 1:
		return p.Y
	default:
		return p.Z
	}
}

// Add returns p + q
func (p Point3) Add(q Point3) Point3 {
	return Point3{X: p.X + q.X, Y: p.Y + q.Y, Z: p.Z + q.Z}
}

// Sub returns p - q
func (p Point3) Sub(q Point3) Point3 {
	return Point3{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// Neg returns -p
func (p Point3) Neg() Point3 {
	return Point3{X: -p.X, Y: -p.Y, Z: -p.Z}
}

// Less orders points by x, then y, then z.
func (p Point3) Less(q Point3) bool {
	if p.X != q.X {
		return p.X < q.X
	}
	if p.Y != q.Y {
		return p.Y < q.Y
	}
	return p.Z < q.Z
}

// ManhattanDistance is the sum of absolute coordinate differences.
func ManhattanDistance(p, q Point3) int64 {
	return abs64(p.X-q.X) + abs64(p.Y-q.Y) + abs64(p.Z-q.Z)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// RigidTransform rotates by Orientation and then adds Translation.
type RigidTransform struct {
	Orientation Orientation `json:"orientation"`
	Translation Point3      `json:"translation"`
}

// IdentityTransform leaves points unchanged.
func IdentityTransform() RigidTransform {
	return RigidTransform{Orientation: IdentityOrientation}
}

// Apply maps p through the transform: Orientation.Apply(p) + Translation.
func (t RigidTransform) Apply(p Point3) Point3 {
	return t.Orientation.Apply(p).Add(t.Translation)
}

// ApplyAll transforms every point.
func (t RigidTransform) ApplyAll(points []Point3) []Point3 {
	out := make([]Point3, len(points))
	for i, p := range points {
		out[i] = t.Apply(p)
	}
	return out
}

// Then composes two transforms: applying the result is equivalent to
// applying t first and next second.
func (t RigidTransform) Then(next RigidTransform) RigidTransform {
	return RigidTransform{
		Orientation: t.Orientation.Then(next.Orientation),
		Translation: next.Apply(t.Translation),
	}
}

// Inverse returns the transform mapping t's output back to its input.
func (t RigidTransform) Inverse() RigidTransform {
	inv := t.Orientation.Inverse()
	return RigidTransform{
		Orientation: inv,
		Translation: inv.Apply(t.Translation).Neg(),
	}
}

// ComposeChain folds a chain of links ordered from the most local frame
// outward to the root into a single transform. Each link is applied to the
// output of the previous one. An empty chain is the identity.
func ComposeChain(chain []RigidTransform) RigidTransform {
	result := IdentityTransform()
	for _, link := range chain {
		result = result.Then(link)
	}
	return result
}
