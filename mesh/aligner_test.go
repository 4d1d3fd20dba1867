package mesh

import (
	"slices"
	"testing"
)

func TestAlign_ExampleScannerOneOntoZero(t *testing.T) {
	s0 := exampleScanner(t, 0)
	s1 := exampleScanner(t, 1)

	res, ok := Align(s0.Probes, s1.Probes)
	if !ok {
		t.Fatal("Align() found no alignment")
	}

	if want := (Orientation{AxisXNeg, AxisYPos, AxisZNeg}); res.Orientation != want {
		t.Errorf("Orientation = %s, want %s", res.Orientation, want)
	}
	if want := (Point3{68, -1246, -43}); res.Translation != want {
		t.Errorf("Translation = %v, want %v", res.Translation, want)
	}
	if res.Overlap != OverlapThreshold {
		t.Errorf("Overlap = %d, want exactly %d", res.Overlap, OverlapThreshold)
	}
	if got := CountOverlap(s0.Probes, s1.Probes, res.Transform()); got != res.Overlap {
		t.Errorf("CountOverlap() = %d, want %d", got, res.Overlap)
	}
}

func TestAlign_RejectsElevenSharedProbes(t *testing.T) {
	s0 := exampleScanner(t, 0)
	s1 := exampleScanner(t, 1)

	// One of the twelve probes scanner 1 shares with scanner 0
	shared := Point3{686, 422, 578}
	probes := slices.DeleteFunc(slices.Clone(s1.Probes), func(p Point3) bool { return p == shared })
	if len(probes) != len(s1.Probes)-1 {
		t.Fatalf("fixture no longer contains %v", shared)
	}

	if res, ok := Align(s0.Probes, probes); ok {
		t.Errorf("Align() accepted %s + %v with overlap %d", res.Orientation, res.Translation, res.Overlap)
	}
}

func TestAlign_RecoversKnownTransform(t *testing.T) {
	for i, o := range Orientations() {
		want := RigidTransform{Orientation: o, Translation: Point3{X: int64(100 * i), Y: -37, Z: 2500}}
		candidate := localView(want, irregularCloud)

		res, ok := Align(irregularCloud, candidate)
		if !ok {
			t.Errorf("orientation %d (%s): no alignment", i, o)
			continue
		}
		if res.Transform() != want {
			t.Errorf("orientation %d: got %s + %v, want %s + %v",
				i, res.Orientation, res.Translation, want.Orientation, want.Translation)
		}
		if res.Overlap != len(irregularCloud) {
			t.Errorf("orientation %d: overlap = %d, want %d", i, res.Overlap, len(irregularCloud))
		}
	}
}

func TestAlign_TooFewProbes(t *testing.T) {
	tests := []struct {
		name             string
		fixed, candidate []Point3
	}{
		{"empty candidate", irregularCloud, nil},
		{"eleven candidate probes", irregularCloud, irregularCloud[:11]},
		{"eleven fixed probes", irregularCloud[:11], irregularCloud},
		{
			"duplicates do not count",
			irregularCloud,
			append(slices.Clone(irregularCloud[:11]), irregularCloud[0], irregularCloud[1]),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := Align(tt.fixed, tt.candidate); ok {
				t.Error("Align() should fail below the overlap threshold")
			}
		})
	}
}

func TestAlign_DuplicateProbesCountOnce(t *testing.T) {
	candidate := slices.Concat(irregularCloud[:12], irregularCloud[:12])
	res, ok := Align(irregularCloud, candidate)
	if !ok {
		t.Fatal("Align() found no alignment")
	}
	if res.Overlap != 12 {
		t.Errorf("Overlap = %d, want 12", res.Overlap)
	}
}

// symmetricCloud is invariant under a quarter turn about z.
func symmetricCloud() []Point3 {
	base := []Point3{{100, 30, 5}, {250, -70, 40}, {-40, 310, -90}}
	quarter := Orientation{AxisYNeg, AxisXPos, AxisZPos}

	var out []Point3
	for _, p := range base {
		for range 4 {
			out = append(out, p)
			p = quarter.Apply(p)
		}
	}
	return out
}

func TestAlignWithOptions_Ambiguity(t *testing.T) {
	cloud := symmetricCloud()

	res, ok := AlignWithOptions(cloud, cloud, AlignOptions{})
	if !ok {
		t.Fatal("no alignment")
	}
	if res.Orientation != IdentityOrientation || res.Translation != (Point3{}) {
		t.Errorf("first match = %s + %v, want identity", res.Orientation, res.Translation)
	}
	if res.Ambiguous {
		t.Error("Ambiguous should not be set without DetectAmbiguity")
	}

	res, ok = AlignWithOptions(cloud, cloud, AlignOptions{DetectAmbiguity: true})
	if !ok {
		t.Fatal("no alignment")
	}
	if res.Orientation != IdentityOrientation {
		t.Errorf("DetectAmbiguity changed the chosen orientation to %s", res.Orientation)
	}
	if !res.Ambiguous {
		t.Error("a quarter-turn symmetric cloud should be reported as ambiguous")
	}

	res, ok = AlignWithOptions(irregularCloud, irregularCloud, AlignOptions{DetectAmbiguity: true})
	if !ok || res.Ambiguous {
		t.Errorf("irregular cloud: ok=%v ambiguous=%v, want ok and unambiguous", ok, res.Ambiguous)
	}
}

func TestVerifyAlignment(t *testing.T) {
	s0 := exampleScanner(t, 0)
	s1 := exampleScanner(t, 1)

	good := Alignment{
		Child:       1,
		Parent:      0,
		Orientation: Orientation{AxisXNeg, AxisYPos, AxisZNeg},
		Translation: Point3{68, -1246, -43},
	}
	if !VerifyAlignment(good, s0.Probes, s1.Probes) {
		t.Error("VerifyAlignment() rejected the known alignment")
	}

	bad := good
	bad.Translation.X++
	if VerifyAlignment(bad, s0.Probes, s1.Probes) {
		t.Error("VerifyAlignment() accepted a shifted alignment")
	}
}
