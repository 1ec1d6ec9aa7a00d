package measure

import (
	"math"
	"testing"

	"github.com/menta2k/spine-analyzer/pkg/types"
)

func TestT1TiltMeasurement(t *testing.T) {
	set := types.VertebraSet{}
	set.Add(testVertebra(1, 400, 140, 10))

	result := Analyze(types.TorsoLandmarks{}, set, "t1", 800, 1200)
	ms := measurementsByType(result, TypeT1Tilt)
	if len(ms) != 1 {
		t.Fatalf("expected one T1 Tilt, got %d", len(ms))
	}

	m := ms[0]
	// T1 Tilt carries the endplate points but, unlike the paired-landmark
	// tilts, no angle field.
	if m.Angle != nil {
		t.Errorf("T1 Tilt carries angle %f, expected none", *m.Angle)
	}
	t1 := set["T1"]
	if len(m.Points) != 2 || m.Points[0] != t1.Corners.TopLeft || m.Points[1] != t1.Corners.TopRight {
		t.Errorf("T1 Tilt points = %v, expected upper endplate corners", m.Points)
	}

	// Without T1 the measurement disappears
	result = Analyze(types.TorsoLandmarks{}, types.VertebraSet{}, "not1", 800, 1200)
	if len(measurementsByType(result, TypeT1Tilt)) != 0 {
		t.Error("T1 Tilt emitted without T1")
	}
}

func TestPairedTilts(t *testing.T) {
	// CR sits higher than CL: positive clavicle angle. IL and SL sit
	// higher than their right counterparts, which folds the pelvic and
	// sacral tilts to small negative angles.
	torso := types.TorsoLandmarks{
		CR: testLandmark(300, 150), CL: testLandmark(500, 170),
		IR: testLandmark(280, 910), IL: testLandmark(520, 890),
		SR: testLandmark(360, 955), SL: testLandmark(440, 945),
	}

	result := Analyze(torso, types.VertebraSet{}, "tilts", 800, 1200)

	tests := []struct {
		typ      string
		expected float64
		points   []types.Point
	}{
		{TypeCA, math.Atan2(20, 200) * 180 / math.Pi, []types.Point{torso.CR.Point, torso.CL.Point}},
		{TypePelvic, math.Atan2(20, -240)*180/math.Pi - 180, []types.Point{torso.IR.Point, torso.IL.Point}},
		{TypeSacral, math.Atan2(10, -80)*180/math.Pi - 180, []types.Point{torso.SR.Point, torso.SL.Point}},
	}

	for _, test := range tests {
		ms := measurementsByType(result, test.typ)
		if len(ms) != 1 {
			t.Fatalf("expected one %s, got %d", test.typ, len(ms))
		}
		if ms[0].Angle == nil || math.Abs(*ms[0].Angle-test.expected) > 1e-6 {
			t.Errorf("%s angle = %v, expected %f", test.typ, ms[0].Angle, test.expected)
		}
		if len(ms[0].Points) != 2 || ms[0].Points[0] != test.points[0] || ms[0].Points[1] != test.points[1] {
			t.Errorf("%s points = %v, expected %v", test.typ, ms[0].Points, test.points)
		}
	}
}

func TestPairedTiltsOmittedWhenMissing(t *testing.T) {
	// Only one clavicle landmark: no CA, and no sacral pair means no
	// CSVL, so AVT and TS vanish too.
	torso := types.TorsoLandmarks{
		CR: testLandmark(300, 150),
		IR: testLandmark(280, 900), IL: testLandmark(520, 900),
	}
	set := types.VertebraSet{}
	set.Add(testVertebra(0, 430, 80, 0))

	result := Analyze(torso, set, "partial", 800, 1200)

	if len(measurementsByType(result, TypeCA)) != 0 {
		t.Error("CA emitted with only one clavicle landmark")
	}
	if len(measurementsByType(result, TypePelvic)) != 1 {
		t.Error("Pelvic missing despite both iliac landmarks")
	}
	for _, typ := range []string{TypeSacral, TypeAVT, TypeTS} {
		if len(measurementsByType(result, typ)) != 0 {
			t.Errorf("%s emitted without the sacral pair", typ)
		}
	}
}

func TestAVT(t *testing.T) {
	torso := types.TorsoLandmarks{
		SR: testLandmark(360, 950), SL: testLandmark(440, 950),
	}
	set := types.VertebraSet{}
	set.Add(testVertebra(0, 410, 80, 0))  // C7, 10 px off the CSVL
	set.Add(testVertebra(5, 460, 380, 0)) // T5, 60 px off: the apex
	set.Add(testVertebra(8, 390, 560, 0))

	result := Analyze(torso, set, "avt", 800, 1200)
	ms := measurementsByType(result, TypeAVT)
	if len(ms) != 1 {
		t.Fatalf("expected one AVT, got %d", len(ms))
	}

	m := ms[0]
	csvlX := 400.0
	if m.ApexVertebra != "T5" {
		t.Errorf("AVT apex = %s, expected T5", m.ApexVertebra)
	}
	expected := []types.Point{{X: 460, Y: 380}, {X: csvlX, Y: 380}}
	if len(m.Points) != 2 || m.Points[0] != expected[0] || m.Points[1] != expected[1] {
		t.Errorf("AVT points = %v, expected %v", m.Points, expected)
	}

	// TS runs from the C7 center to the CSVL at C7's height
	ts := measurementsByType(result, TypeTS)
	if len(ts) != 1 {
		t.Fatalf("expected one TS, got %d", len(ts))
	}
	expectedTS := []types.Point{{X: 410, Y: 80}, {X: csvlX, Y: 80}}
	if ts[0].Points[0] != expectedTS[0] || ts[0].Points[1] != expectedTS[1] {
		t.Errorf("TS points = %v, expected %v", ts[0].Points, expectedTS)
	}
}

func TestTSRequiresC7(t *testing.T) {
	torso := types.TorsoLandmarks{
		SR: testLandmark(360, 950), SL: testLandmark(440, 950),
	}
	set := types.VertebraSet{}
	set.Add(testVertebra(5, 460, 380, 0))

	result := Analyze(torso, set, "nots", 800, 1200)
	if len(measurementsByType(result, TypeTS)) != 0 {
		t.Error("TS emitted without C7")
	}
	if len(measurementsByType(result, TypeAVT)) != 1 {
		t.Error("AVT missing despite CSVL and a vertebra")
	}
}

func TestAVTRequiresVertebrae(t *testing.T) {
	torso := types.TorsoLandmarks{
		SR: testLandmark(360, 950), SL: testLandmark(440, 950),
	}

	result := Analyze(torso, types.VertebraSet{}, "noavt", 800, 1200)
	if len(measurementsByType(result, TypeAVT)) != 0 {
		t.Error("AVT emitted with an empty vertebra set")
	}
}
