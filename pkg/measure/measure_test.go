package measure

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/menta2k/spine-analyzer/pkg/types"
)

// testVertebra builds a vertebra whose endplates are tilted by tiltDeg,
// centered at (cx, cy). Width 80, height 40.
func testVertebra(clsID int, cx, cy, tiltDeg float64) types.Vertebra {
	rad := tiltDeg * math.Pi / 180
	dx := 40 * math.Cos(rad)
	dy := 40 * math.Sin(rad)

	return types.Vertebra{
		Name: types.VertebraNameForClass(clsID),
		Corners: types.NewVertebraCorners(
			types.Point{X: cx - dx, Y: cy - 20 - dy},
			types.Point{X: cx + dx, Y: cy - 20 + dy},
			types.Point{X: cx - dx, Y: cy + 20 - dy},
			types.Point{X: cx + dx, Y: cy + 20 + dy},
		),
		Confidence: 0.95,
		ClassID:    clsID,
	}
}

func testLandmark(x, y float64) *types.Landmark {
	return &types.Landmark{Point: types.Point{X: x, Y: y}, Confidence: 0.9}
}

// symmetricTorso places every landmark pair on a level line.
func symmetricTorso() types.TorsoLandmarks {
	return types.TorsoLandmarks{
		CR: testLandmark(300, 160), CL: testLandmark(500, 160),
		IR: testLandmark(280, 900), IL: testLandmark(520, 900),
		SR: testLandmark(360, 950), SL: testLandmark(440, 950),
	}
}

// straightColumn builds T1..T12,L1 perfectly aligned with zero tilt.
func straightColumn() types.VertebraSet {
	set := types.VertebraSet{}
	for clsID := 1; clsID <= 13; clsID++ {
		set.Add(testVertebra(clsID, 400, 150+float64(clsID)*60, 0))
	}
	return set
}

// thoracicCurve builds T2..T10 with the apex at T5 displaced +50 px and
// tilted end vertebrae at T2 (+15°) and T10 (-15°).
func thoracicCurve() types.VertebraSet {
	set := types.VertebraSet{}
	for i, clsID := range []int{2, 3, 4, 5, 6, 7, 8, 9, 10} {
		cx, tilt := 400.0, 0.0
		switch clsID {
		case 2:
			tilt = 15
		case 5:
			cx = 450
		case 10:
			tilt = -15
		}
		set.Add(testVertebra(clsID, cx, 200+float64(i)*60, tilt))
	}
	return set
}

func measurementsByType(result types.AnnotationResult, measurementType string) []types.Measurement {
	var out []types.Measurement
	for _, m := range result.Measurements {
		if m.Type == measurementType {
			out = append(out, m)
		}
	}
	return out
}

func TestAnalyzeStraightColumn(t *testing.T) {
	result := Analyze(symmetricTorso(), straightColumn(), "straight", 800, 1200)

	for _, m := range result.Measurements {
		if strings.HasPrefix(m.Type, "Cobb-") {
			t.Errorf("straight column produced %s", m.Type)
		}
	}

	for _, typ := range []string{TypeCA, TypePelvic, TypeSacral} {
		ms := measurementsByType(result, typ)
		if len(ms) != 1 {
			t.Fatalf("expected one %s measurement, got %d", typ, len(ms))
		}
		if ms[0].Angle == nil || *ms[0].Angle != 0 {
			t.Errorf("%s angle = %v, expected 0", typ, ms[0].Angle)
		}
	}
}

func TestAnalyzeThoracicCurve(t *testing.T) {
	result := Analyze(types.TorsoLandmarks{}, thoracicCurve(), "curve", 800, 1200)

	cobbs := measurementsByType(result, "Cobb-Thoracic")
	if len(cobbs) != 1 {
		t.Fatalf("expected exactly one Cobb-Thoracic, got %d", len(cobbs))
	}

	m := cobbs[0]
	if m.Angle == nil {
		t.Fatal("Cobb-Thoracic has no angle")
	}
	if math.Abs(*m.Angle-30) > 0.5 {
		t.Errorf("Cobb-Thoracic angle = %f, expected ≈30", *m.Angle)
	}
	if m.UpperVertebra != "T2" || m.LowerVertebra != "T10" || m.ApexVertebra != "T5" {
		t.Errorf("end/apex = %s/%s/%s, expected T2/T10/T5",
			m.UpperVertebra, m.LowerVertebra, m.ApexVertebra)
	}

	// Point order: upper caudal endplate, then lower cranial endplate
	upper := thoracicCurve()["T2"]
	lower := thoracicCurve()["T10"]
	expected := []types.Point{
		upper.Corners.BottomLeft, upper.Corners.BottomRight,
		lower.Corners.TopLeft, lower.Corners.TopRight,
	}
	if len(m.Points) != 4 {
		t.Fatalf("expected 4 points, got %d", len(m.Points))
	}
	for i := range expected {
		if m.Points[i] != expected[i] {
			t.Errorf("point %d = %v, expected %v", i, m.Points[i], expected[i])
		}
	}

	// T2..T10 also populate the thoracolumbar region: the same curve is
	// reported under both types on purpose.
	if len(measurementsByType(result, "Cobb-Thoracolumbar")) != 1 {
		t.Error("expected the overlapping thoracolumbar region to report the same curve")
	}
	if len(measurementsByType(result, "Cobb-Lumbar")) != 0 {
		t.Error("lumbar region has <2 members and must not report")
	}
}

func TestAnalyzeEmptyInput(t *testing.T) {
	result := Analyze(types.TorsoLandmarks{}, types.VertebraSet{}, "X", 100, 100)

	if result.ImageID != "X" || result.ImageWidth != 100 || result.ImageHeight != 100 {
		t.Errorf("header = %s %dx%d, expected X 100x100",
			result.ImageID, result.ImageWidth, result.ImageHeight)
	}
	if len(result.Measurements) != 0 {
		t.Errorf("expected no measurements, got %d", len(result.Measurements))
	}

	// The JSON shape stays stable even when empty
	js, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(js), `"measurements":[]`) {
		t.Errorf("empty result marshals to %s", js)
	}
}

func TestCobbThresholdFilter(t *testing.T) {
	// A shallow curve: end tilts of ±4° give ~8°, below the 10° minimum
	set := types.VertebraSet{}
	for i, clsID := range []int{2, 3, 4, 5, 6, 7, 8} {
		cx, tilt := 400.0, 0.0
		switch clsID {
		case 2:
			tilt = 4
		case 4:
			cx = 430
		case 8:
			tilt = -4
		}
		set.Add(testVertebra(clsID, cx, 200+float64(i)*60, tilt))
	}

	result := Analyze(types.TorsoLandmarks{}, set, "shallow", 800, 1200)
	for _, m := range result.Measurements {
		if !strings.HasPrefix(m.Type, "Cobb-") {
			continue
		}
		t.Errorf("sub-threshold curve emitted %s with angle %v", m.Type, m.Angle)
	}
}

func TestNoEmittedCobbBelowThreshold(t *testing.T) {
	// Property check across a few synthetic columns: whatever is emitted
	// clears the 10° minimum and never pairs a vertebra with itself.
	columns := []types.VertebraSet{straightColumn(), thoracicCurve()}
	for _, set := range columns {
		result := Analyze(types.TorsoLandmarks{}, set, "prop", 800, 1200)
		for _, m := range result.Measurements {
			if !strings.HasPrefix(m.Type, "Cobb-") {
				continue
			}
			if m.Angle == nil || math.Abs(*m.Angle) <= 10.0 {
				t.Errorf("%s emitted with angle %v", m.Type, m.Angle)
			}
			if m.UpperVertebra == m.LowerVertebra {
				t.Errorf("%s emitted with upper == lower == %s", m.Type, m.UpperVertebra)
			}
		}
	}
}

func TestRegionSkippedBelowTwoMembers(t *testing.T) {
	set := types.VertebraSet{}
	set.Add(testVertebra(14, 400, 800, 20)) // L2 alone in the lumbar region

	result := Analyze(types.TorsoLandmarks{}, set, "single", 800, 1200)
	if n := len(measurementsByType(result, "Cobb-Lumbar")); n != 0 {
		t.Errorf("single-member region emitted %d measurements", n)
	}
}

func TestEndVertebraFallsBackToApex(t *testing.T) {
	// Apex is the topmost member: no candidates above it, so the upper
	// end equals the apex. With a distinct lower end the curve still
	// measures.
	set := types.VertebraSet{}
	set.Add(testVertebra(2, 480, 200, 15)) // apex and upper end
	set.Add(testVertebra(3, 400, 260, 0))
	set.Add(testVertebra(4, 400, 320, -15))

	result := Analyze(types.TorsoLandmarks{}, set, "fallback", 800, 1200)
	cobbs := measurementsByType(result, "Cobb-Thoracic")
	if len(cobbs) != 1 {
		t.Fatalf("expected one Cobb-Thoracic, got %d", len(cobbs))
	}
	if cobbs[0].UpperVertebra != "T2" || cobbs[0].ApexVertebra != "T2" {
		t.Errorf("upper/apex = %s/%s, expected T2/T2",
			cobbs[0].UpperVertebra, cobbs[0].ApexVertebra)
	}
	if cobbs[0].LowerVertebra != "T4" {
		t.Errorf("lower = %s, expected T4", cobbs[0].LowerVertebra)
	}
}

func TestApexTieBreakCranioCaudal(t *testing.T) {
	// T3 and T5 sit equidistant from the midline on opposite sides; the
	// more cranial T3 must win the tie.
	set := types.VertebraSet{}
	set.Add(testVertebra(2, 400, 200, 20))
	set.Add(testVertebra(3, 380, 260, 0))
	set.Add(testVertebra(5, 420, 380, -20))

	result := Analyze(types.TorsoLandmarks{}, set, "tie", 800, 1200)
	cobbs := measurementsByType(result, "Cobb-Thoracic")
	if len(cobbs) != 1 {
		t.Fatalf("expected one Cobb-Thoracic, got %d", len(cobbs))
	}
	if cobbs[0].ApexVertebra != "T3" {
		t.Errorf("apex = %s, expected the more cranial T3", cobbs[0].ApexVertebra)
	}
}

func TestEmissionOrder(t *testing.T) {
	set := thoracicCurve()
	set.Add(testVertebra(0, 400, 80, 0)) // C7 for TS
	set.Add(testVertebra(1, 400, 140, 0))

	result := Analyze(symmetricTorso(), set, "order", 800, 1200)

	expected := []string{
		TypeT1Tilt, "Cobb-Thoracic", "Cobb-Thoracolumbar",
		TypeCA, TypePelvic, TypeSacral, TypeAVT, TypeTS,
	}
	if len(result.Measurements) != len(expected) {
		var got []string
		for _, m := range result.Measurements {
			got = append(got, m.Type)
		}
		t.Fatalf("emitted %v, expected %v", got, expected)
	}
	for i, typ := range expected {
		if result.Measurements[i].Type != typ {
			t.Errorf("measurement %d = %s, expected %s", i, result.Measurements[i].Type, typ)
		}
	}
}

func TestAnalyzeIdempotent(t *testing.T) {
	torso := symmetricTorso()
	set := thoracicCurve()
	set.Add(testVertebra(0, 400, 80, 0))
	set.Add(testVertebra(1, 400, 140, 0))

	first, err := json.Marshal(Analyze(torso, set, "idem", 800, 1200))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		next, err := json.Marshal(Analyze(torso, set, "idem", 800, 1200))
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if string(first) != string(next) {
			t.Fatalf("run %d differs:\n%s\n%s", i, first, next)
		}
	}
}

func TestSyntheticNamesIgnoredByRegions(t *testing.T) {
	set := thoracicCurve()
	set.Add(testVertebra(99, 900, 400, 45)) // V99 never joins a region

	result := Analyze(types.TorsoLandmarks{}, set, "synthetic", 800, 1200)
	cobbs := measurementsByType(result, "Cobb-Thoracic")
	if len(cobbs) != 1 {
		t.Fatalf("expected one Cobb-Thoracic, got %d", len(cobbs))
	}
	if math.Abs(*cobbs[0].Angle-30) > 0.5 {
		t.Errorf("V99 changed the thoracic curve: angle = %f", *cobbs[0].Angle)
	}
}

func BenchmarkAnalyze(b *testing.B) {
	torso := symmetricTorso()
	set := thoracicCurve()
	set.Add(testVertebra(0, 400, 80, 0))
	set.Add(testVertebra(1, 400, 140, 0))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Analyze(torso, set, "bench", 800, 1200)
	}
}
