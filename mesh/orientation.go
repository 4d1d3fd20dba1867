package mesh

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// OrientationCount is the number of proper axis-aligned rotations of a cube.
const OrientationCount = 24

// Axis is a signed source axis. Each output coordinate of an orientation
// reads exactly one signed input coordinate.
type Axis int8

const (
	AxisXPos Axis = iota
	AxisXNeg
	AxisYPos
	AxisYNeg
	AxisZPos
	AxisZNeg
)

var axisNames = [...]string{"+X", "-X", "+Y", "-Y", "+Z", "-Z"}

// newAxis builds the axis reading coordinate index (0=x, 1=y, 2=z) with sign.
func newAxis(index int, sign int64) Axis {
	a := Axis(index * 2)
	if sign < 0 {
		a++
	}
	return a
}

// Index returns the coordinate the axis reads: 0 for X, 1 for Y, 2 for Z.
func (a Axis) Index() int { return int(a) / 2 }

// Sign returns +1 or -1.
func (a Axis) Sign() int64 {
	if a%2 == 0 {
		return 1
	}
	return -1
}

// Neg returns the same axis with the opposite sign.
func (a Axis) Neg() Axis { return a ^ 1 }

// Valid reports whether a is one of the six named axes.
func (a Axis) Valid() bool { return a >= AxisXPos && a <= AxisZNeg }

func (a Axis) String() string {
	if !a.Valid() {
		return fmt.Sprintf("Axis(%d)", int8(a))
	}
	return axisNames[a]
}

func parseAxis(s string) (Axis, error) {
	for i, name := range axisNames {
		if strings.EqualFold(s, name) {
			return Axis(i), nil
		}
	}
	return 0, fmt.Errorf("unknown axis %q", s)
}

// Orientation assigns a signed source axis to each output axis (x, y, z).
// Only proper rotations are valid orientations.
type Orientation [3]Axis

// IdentityOrientation leaves every coordinate in place.
var IdentityOrientation = Orientation{AxisXPos, AxisYPos, AxisZPos}

// orientationTable is built once at package init and never mutated.
var orientationTable = buildOrientations()

// Orientations returns the 24 proper rotations in their fixed search order.
// The identity comes first. The returned slice is a copy.
func Orientations() []Orientation {
	out := make([]Orientation, len(orientationTable))
	copy(out, orientationTable)
	return out
}

// buildOrientations enumerates the 48 signed axis permutations in
// lexicographic order (permutation first, then signs) and keeps those whose
// matrix has determinant +1.
func buildOrientations() []Orientation {
	perms := [][3]int{
		{0, 1, 2}, {0, 2, 1},
		{1, 0, 2}, {1, 2, 0},
		{2, 0, 1}, {2, 1, 0},
	}
	signs := []int64{1, -1}

	result := make([]Orientation, 0, OrientationCount)
	for _, perm := range perms {
		for _, sx := range signs {
			for _, sy := range signs {
				for _, sz := range signs {
					o := Orientation{
						newAxis(perm[0], sx),
						newAxis(perm[1], sy),
						newAxis(perm[2], sz),
					}
					if o.Determinant() > 0 {
						result = append(result, o)
					}
				}
			}
		}
	}
	if len(result) != OrientationCount {
		panic(fmt.Sprintf("mesh: built %d orientations, want %d", len(result), OrientationCount))
	}
	return result
}

// Matrix returns the 3x3 rotation matrix, row i having the sign of output
// axis i in the column of the coordinate it reads.
func (o Orientation) Matrix() *mat.Dense {
	data := make([]float64, 9)
	for row, a := range o {
		data[row*3+a.Index()] = float64(a.Sign())
	}
	return mat.NewDense(3, 3, data)
}

// Determinant is +1 for proper rotations, -1 for reflections and 0 when two
// output axes read the same coordinate.
func (o Orientation) Determinant() float64 {
	return mat.Det(o.Matrix())
}

// IsProper reports whether o is one of the 24 rotations.
func (o Orientation) IsProper() bool {
	for _, a := range o {
		if !a.Valid() {
			return false
		}
	}
	return o.Determinant() > 0.5
}

// Apply permutes and sign-flips p's coordinates.
func (o Orientation) Apply(p Point3) Point3 {
	return Point3{
		X: p.component(o[0].Index()) * o[0].Sign(),
		Y: p.component(o[1].Index()) * o[1].Sign(),
		Z: p.component(o[2].Index()) * o[2].Sign(),
	}
}

// ApplyAll rotates every point.
func (o Orientation) ApplyAll(points []Point3) []Point3 {
	out := make([]Point3, len(points))
	for i, p := range points {
		out[i] = o.Apply(p)
	}
	return out
}

// Inverse returns the orientation that undoes o.
func (o Orientation) Inverse() Orientation {
	var inv Orientation
	for out, a := range o {
		inv[a.Index()] = newAxis(out, a.Sign())
	}
	return inv
}

// Then returns the orientation equivalent to applying o first and next second.
func (o Orientation) Then(next Orientation) Orientation {
	var r Orientation
	for j, a := range next {
		inner := o[a.Index()]
		r[j] = newAxis(inner.Index(), a.Sign()*inner.Sign())
	}
	return r
}

func (o Orientation) String() string {
	return o[0].String() + "," + o[1].String() + "," + o[2].String()
}

// MarshalText encodes the orientation as "+X,+Y,+Z".
func (o Orientation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes "+X,+Y,+Z" and rejects improper orientations.
func (o *Orientation) UnmarshalText(text []byte) error {
	parsed, err := ParseOrientation(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// ParseOrientation parses the "+X,+Y,+Z" form.
func ParseOrientation(s string) (Orientation, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return Orientation{}, fmt.Errorf("parsing orientation %q: expected 3 axes", s)
	}
	var o Orientation
	for i, part := range parts {
		a, err := parseAxis(strings.TrimSpace(part))
		if err != nil {
			return Orientation{}, fmt.Errorf("parsing orientation %q: %w", s, err)
		}
		o[i] = a
	}
	if !o.IsProper() {
		return Orientation{}, fmt.Errorf("parsing orientation %q: not a proper rotation", s)
	}
	return o, nil
}
