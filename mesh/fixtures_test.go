package mesh

import "testing"

const exampleScannersPath = "testdata/example_scanners.txt"

// loadExample parses the five-scanner example: 79 landmarks, max distance 3621.
func loadExample(t *testing.T) []Scanner {
	t.Helper()
	scanners, err := ParseScannerFile(exampleScannersPath)
	if err != nil {
		t.Fatalf("ParseScannerFile(%s) error: %v", exampleScannersPath, err)
	}
	return scanners
}

// exampleScanner returns one scanner of the example by id.
func exampleScanner(t *testing.T, id int) Scanner {
	t.Helper()
	for _, s := range loadExample(t) {
		if s.ID == id {
			return s
		}
	}
	t.Fatalf("example has no scanner %d", id)
	return Scanner{}
}

// irregularCloud has no rotational symmetry, so any two views of it align
// under exactly one transform.
var irregularCloud = []Point3{
	{17, -403, 88}, {256, 12, -731}, {-589, 331, 45}, {402, -77, 610},
	{-13, 529, -288}, {733, -640, -91}, {-311, -215, 402}, {95, 876, 330},
	{-702, -58, -517}, {468, 243, -120}, {-150, -690, -744}, {621, 505, 711},
	{-437, 712, -63}, {289, -318, -402}, {-820, 411, 598}, {54, -97, 183},
	{377, 640, -555}, {-256, -843, 279}, {808, 29, -348}, {-95, 184, -902},
}

// localView expresses global points in a scanner frame whose local-to-global
// transform is t.
func localView(t RigidTransform, global []Point3) []Point3 {
	return t.Inverse().ApplyAll(global)
}

// chainScanners builds a three-scanner set where scanner 2 only overlaps
// scanner 1, so its transform must be composed through 1.
//
//	scanner 0: cloud[0:13]  (identity)
//	scanner 1: cloud[0:20]  (t1), 13 shared with 0
//	scanner 2: cloud[8:20]  (t2), 12 shared with 1, 5 with 0
func chainScanners() (scanners []Scanner, t1, t2 RigidTransform) {
	orients := Orientations()
	t1 = RigidTransform{Orientation: orients[7], Translation: Point3{X: 1200, Y: -35, Z: 410}}
	t2 = RigidTransform{Orientation: orients[17], Translation: Point3{X: -640, Y: 1105, Z: -88}}

	scanners = []Scanner{
		{ID: 0, Probes: append([]Point3(nil), irregularCloud[0:13]...)},
		{ID: 1, Probes: localView(t1, irregularCloud[0:20])},
		{ID: 2, Probes: localView(t2, irregularCloud[8:20])},
	}
	return scanners, t1, t2
}

// triangleScanners builds three mutually overlapping scanners, so scanner 2
// reaches the reference both directly and through scanner 1.
//
//	scanner 0: cloud[0:16]  (identity)
//	scanner 1: cloud[0:20]  (t1), 16 shared with 0
//	scanner 2: cloud[4:20]  (t2), 12 shared with 0, 16 with 1
func triangleScanners() (scanners []Scanner, t1, t2 RigidTransform) {
	orients := Orientations()
	t1 = RigidTransform{Orientation: orients[11], Translation: Point3{X: -350, Y: 910, Z: 72}}
	t2 = RigidTransform{Orientation: orients[20], Translation: Point3{X: 488, Y: -1290, Z: 615}}

	scanners = []Scanner{
		{ID: 0, Probes: append([]Point3(nil), irregularCloud[0:16]...)},
		{ID: 1, Probes: localView(t1, irregularCloud[0:20])},
		{ID: 2, Probes: localView(t2, irregularCloud[4:20])},
	}
	return scanners, t1, t2
}
