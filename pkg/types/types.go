package types

// Point is a pixel coordinate on the radiograph, x growing right and y
// growing down (image space, not patient-anatomical space).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Landmark is a single detected torso landmark with its model confidence.
type Landmark struct {
	Point
	Confidence float64 `json:"confidence"`
}

// TorsoLandmarks holds the six paired torso landmarks used for coronal
// balance. A nil entry means the detector's confidence was insufficient
// and every measurement depending on it is omitted.
type TorsoLandmarks struct {
	CR *Landmark `json:"CR,omitempty"` // clavicle, right
	CL *Landmark `json:"CL,omitempty"` // clavicle, left
	IR *Landmark `json:"IR,omitempty"` // iliac crest, right
	IL *Landmark `json:"IL,omitempty"` // iliac crest, left
	SR *Landmark `json:"SR,omitempty"` // sacrum, right
	SL *Landmark `json:"SL,omitempty"` // sacrum, left
}

// VertebraCorners are the four detected corners of a vertebral body plus
// the derived edge midpoints and center. Top is cranial, bottom caudal.
type VertebraCorners struct {
	TopLeft     Point `json:"top_left"`
	TopRight    Point `json:"top_right"`
	BottomLeft  Point `json:"bottom_left"`
	BottomRight Point `json:"bottom_right"`
	TopMid      Point `json:"top_mid"`
	BottomMid   Point `json:"bottom_mid"`
	Center      Point `json:"center"`
}

// NewVertebraCorners derives the edge midpoints and center from the four
// detected corners.
func NewVertebraCorners(topLeft, topRight, bottomLeft, bottomRight Point) VertebraCorners {
	topMid := midpoint(topLeft, topRight)
	bottomMid := midpoint(bottomLeft, bottomRight)
	return VertebraCorners{
		TopLeft:     topLeft,
		TopRight:    topRight,
		BottomLeft:  bottomLeft,
		BottomRight: bottomRight,
		TopMid:      topMid,
		BottomMid:   bottomMid,
		Center:      midpoint(topMid, bottomMid),
	}
}

func midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

// Vertebra is one detected vertebral body, constructed once per detection.
type Vertebra struct {
	Name       string          `json:"name"`
	Corners    VertebraCorners `json:"corners"`
	Confidence float64         `json:"confidence"`
	ClassID    int             `json:"class_id"`
}

// Measurement is a single annotated clinical parameter. The order of
// Points is semantically meaningful and preserved exactly.
type Measurement struct {
	Type          string   `json:"type"`
	Points        []Point  `json:"points"`
	Angle         *float64 `json:"angle,omitempty"`
	UpperVertebra string   `json:"upper_vertebra,omitempty"`
	LowerVertebra string   `json:"lower_vertebra,omitempty"`
	ApexVertebra  string   `json:"apex_vertebra,omitempty"`
}

// AnnotationResult is the complete measurement set for one radiograph,
// built fresh per call.
type AnnotationResult struct {
	ImageID      string        `json:"imageId"`
	ImageWidth   int           `json:"imageWidth"`
	ImageHeight  int           `json:"imageHeight"`
	Measurements []Measurement `json:"measurements"`
}

// RawTorsoLandmark is a torso landmark as the detection backend reports it.
type RawTorsoLandmark struct {
	Key        string  `json:"key"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// RawVertebra is a vertebra detection as the backend reports it. Corners
// are [x,y] pairs in top-left, top-right, bottom-left, bottom-right order.
type RawVertebra struct {
	ClsID      int          `json:"cls_id"`
	Confidence float64      `json:"confidence"`
	Corners    [][2]float64 `json:"corners"`
}

// RawDetection is the wire format returned by the landmark backends.
type RawDetection struct {
	Landmarks []RawTorsoLandmark `json:"landmarks"`
	Vertebrae []RawVertebra      `json:"vertebrae"`
}
