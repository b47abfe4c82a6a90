package infer

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/workfloor-data/activity.report/internal/pose"
)

// Preprocessor converts BGR camera frames into the normalized NCHW float
// tensor the model expects. Scratch mats and the output buffer are reused
// across frames.
type Preprocessor struct {
	Width  int
	Height int

	resized gocv.Mat
	rgb     gocv.Mat
	buf     []float32
}

// NewPreprocessor creates a preprocessor for the given model input size.
func NewPreprocessor(width, height int) *Preprocessor {
	return &Preprocessor{
		Width:   width,
		Height:  height,
		resized: gocv.NewMat(),
		rgb:     gocv.NewMat(),
		buf:     make([]float32, 3*width*height),
	}
}

// Tensor resizes the frame to the model input, converts BGR to RGB, and
// scales bytes into [0,1] floats in channel-first order. It reports the
// per-axis ratios that map model-space coordinates back to the frame's
// display pixels. The returned slice is reused across calls.
func (p *Preprocessor) Tensor(img gocv.Mat) ([]float32, pose.Ratios, error) {
	if img.Empty() {
		return nil, pose.Ratios{}, fmt.Errorf("empty frame")
	}
	ratios := pose.Ratios{
		X: float64(img.Cols()) / float64(p.Width),
		Y: float64(img.Rows()) / float64(p.Height),
	}

	gocv.Resize(img, &p.resized, image.Pt(p.Width, p.Height), 0, 0, gocv.InterpolationLinear)
	gocv.CvtColor(p.resized, &p.rgb, gocv.ColorBGRToRGB)

	data, err := p.rgb.DataPtrUint8()
	if err != nil {
		return nil, pose.Ratios{}, fmt.Errorf("failed to access frame data: %w", err)
	}

	// Interleaved HWC bytes to planar CHW floats.
	plane := p.Width * p.Height
	for i := 0; i < plane; i++ {
		p.buf[i] = float32(data[i*3+0]) / 255
		p.buf[plane+i] = float32(data[i*3+1]) / 255
		p.buf[2*plane+i] = float32(data[i*3+2]) / 255
	}
	return p.buf, ratios, nil
}

// Close releases the scratch mats.
func (p *Preprocessor) Close() {
	p.resized.Close()
	p.rgb.Close()
}
