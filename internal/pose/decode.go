package pose

import "fmt"

// DecoderParams holds configuration for decoding a raw pose-model
// prediction block.
type DecoderParams struct {
	// NumClasses is the number of class score channels per anchor.
	// YOLOv8-pose person models have one.
	NumClasses int
	// NumKeypoints is the number of (x, y, conf) joint triplets per anchor.
	NumKeypoints int
	// ScoreThreshold is the minimum class score for an anchor to enter
	// deduplication.
	ScoreThreshold float64
	// IoUThreshold is the overlap above which deduplication suppresses the
	// lower-scored box.
	IoUThreshold float64
	// KeypointConfThreshold is the minimum joint confidence for a wrist to
	// be treated as observed.
	KeypointConfThreshold float64
	// MaxDetections caps the surviving detections per frame.
	MaxDetections int
}

// DefaultDecoderParams returns decoder parameters for a single-class
// COCO-keypoint YOLOv8-pose model.
func DefaultDecoderParams() DecoderParams {
	return DecoderParams{
		NumClasses:            1,
		NumKeypoints:          NumKeypoints,
		ScoreThreshold:        0.5,
		IoUThreshold:          0.45,
		KeypointConfThreshold: 0.4,
		MaxDetections:         64,
	}
}

// Ratios map model-space coordinates to display pixels, one multiplier per
// axis. They come from the preprocessing resize for live frames and from
// the recorded header on replay.
type Ratios struct {
	X float64
	Y float64
}

// IdentityRatios returns ratios that leave coordinates unchanged.
func IdentityRatios() Ratios { return Ratios{X: 1, Y: 1} }

// Decoder converts raw prediction blocks into Detections. Decoding is a
// pure transform: identical inputs always produce identical output.
type Decoder struct {
	Params DecoderParams
}

// NewDecoder creates a decoder with the given parameters.
func NewDecoder(params DecoderParams) *Decoder {
	return &Decoder{Params: params}
}

// RowLen returns the number of values per anchor row:
// 4 box fields + class scores + 3 per keypoint.
func (d *Decoder) RowLen() int {
	return 4 + d.Params.NumClasses + 3*d.Params.NumKeypoints
}

// NumAnchors returns the anchor count implied by the block length, or an
// error when the block is not a whole number of rows. An empty block is
// valid and holds zero anchors: replay frames with nobody in view encode
// to nothing.
func (d *Decoder) NumAnchors(block []float32) (int, error) {
	rowLen := d.RowLen()
	if len(block)%rowLen != 0 {
		return 0, fmt.Errorf("prediction block length %d is not a multiple of row length %d", len(block), rowLen)
	}
	return len(block) / rowLen, nil
}

// Candidates extracts every anchor's box and best class score in model
// space, for handing to the dedup primitive. Box corners are derived from
// the center/extent encoding; scores take the maximum over class channels.
func (d *Decoder) Candidates(block []float32) ([]Box, []float64, error) {
	numAnchors, err := d.NumAnchors(block)
	if err != nil {
		return nil, nil, err
	}

	rowLen := d.RowLen()
	boxes := make([]Box, numAnchors)
	scores := make([]float64, numAnchors)
	for a := 0; a < numAnchors; a++ {
		row := block[a*rowLen : (a+1)*rowLen]
		boxes[a] = cornersFromRow(row)
		scores[a] = bestScore(row, d.Params.NumClasses)
	}
	return boxes, scores, nil
}

// Decode converts the surviving anchors into Detections in display-pixel
// space, in the same order as the index set.
func (d *Decoder) Decode(block []float32, ratios Ratios, keep []int) ([]Detection, error) {
	numAnchors, err := d.NumAnchors(block)
	if err != nil {
		return nil, err
	}
	if ratios.X <= 0 || ratios.Y <= 0 {
		return nil, fmt.Errorf("invalid scale ratios %+v", ratios)
	}

	rowLen := d.RowLen()
	dets := make([]Detection, 0, len(keep))
	for _, a := range keep {
		if a < 0 || a >= numAnchors {
			return nil, fmt.Errorf("surviving index %d out of range (%d anchors)", a, numAnchors)
		}
		row := block[a*rowLen : (a+1)*rowLen]

		modelBox := cornersFromRow(row)
		box := Box{
			X1: modelBox.X1 * ratios.X,
			Y1: modelBox.Y1 * ratios.Y,
			X2: modelBox.X2 * ratios.X,
			Y2: modelBox.Y2 * ratios.Y,
		}

		det := Detection{
			Box:       box,
			Center:    box.Center(),
			Score:     bestScore(row, d.Params.NumClasses),
			Keypoints: make([]Keypoint, d.Params.NumKeypoints),
		}

		kpBase := 4 + d.Params.NumClasses
		for k := 0; k < d.Params.NumKeypoints; k++ {
			kp := Keypoint{
				X:    float64(row[kpBase+k*3+0]) * ratios.X,
				Y:    float64(row[kpBase+k*3+1]) * ratios.Y,
				Conf: float64(row[kpBase+k*3+2]),
			}
			det.Keypoints[k] = kp
		}

		det.LeftWrist = d.wristPoint(det.Keypoints, KeypointLeftWrist)
		det.RightWrist = d.wristPoint(det.Keypoints, KeypointRightWrist)

		dets = append(dets, det)
	}
	return dets, nil
}

// wristPoint returns the joint position when its confidence meets the
// keypoint threshold, nil otherwise.
func (d *Decoder) wristPoint(kps []Keypoint, idx int) *Point {
	if idx >= len(kps) {
		return nil
	}
	kp := kps[idx]
	if kp.Conf < d.Params.KeypointConfThreshold {
		return nil
	}
	return &Point{X: kp.X, Y: kp.Y}
}

// cornersFromRow converts the center-x, center-y, width, height prefix of
// an anchor row to opposite corners in model space.
func cornersFromRow(row []float32) Box {
	cx := float64(row[0])
	cy := float64(row[1])
	w := float64(row[2])
	h := float64(row[3])
	return Box{
		X1: cx - w/2,
		Y1: cy - h/2,
		X2: cx + w/2,
		Y2: cy + h/2,
	}
}

// bestScore returns the maximum class score in an anchor row. Single-class
// rows skip the comparison loop.
func bestScore(row []float32, numClasses int) float64 {
	best := float64(row[4])
	for c := 1; c < numClasses; c++ {
		if s := float64(row[4+c]); s > best {
			best = s
		}
	}
	return best
}
