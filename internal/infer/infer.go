// Package infer runs YOLOv8-pose inference through ONNX Runtime and hands
// the pipeline anchor-major prediction blocks.
package infer

import (
	"context"
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"
)

// Config describes the model binding. YOLOv8 pose exports use a single
// "images" input and a single "output0" output shaped [1, rowLen, anchors].
type Config struct {
	ModelPath   string
	LibraryPath string // ONNX Runtime shared library; empty selects a platform default
	InputWidth  int
	InputHeight int
	InputName   string
	OutputName  string

	// RowLen is the number of values per anchor: 4 box fields, the class
	// scores, then 3 per keypoint. 56 for single-class COCO pose.
	RowLen int
}

// DefaultConfig returns the binding for a standard 640x640 single-class
// COCO-keypoint pose export.
func DefaultConfig(modelPath string) Config {
	return Config{
		ModelPath:   modelPath,
		InputWidth:  640,
		InputHeight: 640,
		InputName:   "images",
		OutputName:  "output0",
		RowLen:      56,
	}
}

// anchorCount returns the anchors emitted for an input size: one per cell
// of the stride-8, stride-16, and stride-32 feature maps.
func anchorCount(w, h int) int {
	return (w/8)*(h/8) + (w/16)*(h/16) + (w/32)*(h/32)
}

// Engine owns an ONNX Runtime session with tensors bound once; each
// Predict copies the frame into the input tensor and runs the session.
// Not safe for concurrent use.
type Engine struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]

	rowLen     int
	numAnchors int
	block      []float32
}

// NewEngine loads the model and binds input/output tensors. The ONNX
// Runtime environment is initialized on first use.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		return nil, fmt.Errorf("invalid input size %dx%d", cfg.InputWidth, cfg.InputHeight)
	}
	if cfg.RowLen <= 0 {
		return nil, fmt.Errorf("invalid row length %d", cfg.RowLen)
	}

	libraryPath := cfg.LibraryPath
	if libraryPath == "" {
		libraryPath = "libonnxruntime.so"
		if os.PathSeparator == '\\' {
			libraryPath = "onnxruntime.dll"
		}
	}
	ort.SetSharedLibraryPath(libraryPath)

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
		}
	}

	numAnchors := anchorCount(cfg.InputWidth, cfg.InputHeight)

	// Input tensor: 1x3xHxW (NCHW format)
	inputShape := ort.NewShape(1, 3, int64(cfg.InputHeight), int64(cfg.InputWidth))
	inputData := make([]float32, 1*3*cfg.InputHeight*cfg.InputWidth)
	inputTensor, err := ort.NewTensor(inputShape, inputData)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	// Output tensor: [1, rowLen, anchors], channel-major as exported
	outputShape := ort.NewShape(1, int64(cfg.RowLen), int64(numAnchors))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Engine{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		rowLen:       cfg.RowLen,
		numAnchors:   numAnchors,
		block:        make([]float32, cfg.RowLen*numAnchors),
	}, nil
}

// Predict copies the preprocessed frame into the bound input tensor, runs
// the session, and returns the prediction block transposed to anchor-major
// order. The returned slice is reused across calls.
func (e *Engine) Predict(ctx context.Context, input []float32) ([]float32, error) {
	if e.session == nil {
		return nil, fmt.Errorf("engine is closed")
	}
	data := e.inputTensor.GetData()
	if len(input) != len(data) {
		return nil, fmt.Errorf("input length %d does not match tensor length %d", len(input), len(data))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	copy(data, input)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("failed to run inference: %w", err)
	}

	transposeToAnchorMajor(e.outputTensor.GetData(), e.block, e.rowLen, e.numAnchors)
	return e.block, nil
}

// NumAnchors returns the anchor count of the bound model.
func (e *Engine) NumAnchors() int { return e.numAnchors }

// Close releases ONNX Runtime resources.
func (e *Engine) Close() {
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
		e.outputTensor = nil
	}
}

// DestroyEnvironment tears down the shared ONNX Runtime environment. Call
// once at process shutdown, after every engine is closed.
func DestroyEnvironment() {
	if ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}

// transposeToAnchorMajor rewrites a [rowLen][anchors] block as
// [anchors][rowLen], the layout the decoder indexes.
func transposeToAnchorMajor(chanMajor, anchorMajor []float32, rowLen, numAnchors int) {
	for c := 0; c < rowLen; c++ {
		row := chanMajor[c*numAnchors : (c+1)*numAnchors]
		for a, v := range row {
			anchorMajor[a*rowLen+c] = v
		}
	}
}
