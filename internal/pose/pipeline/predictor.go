package pipeline

import "context"

// Predictor produces one pose-model prediction block per frame. The block
// layout is anchor-major, pose.DecoderParams.RowLen values per anchor.
type Predictor interface {
	Predict(ctx context.Context, input []float32) ([]float32, error)
}

// Passthrough is a Predictor that returns its input unchanged. Replay and
// synthetic sources encode their detections into a prediction block up
// front and use Passthrough so the frames still flow through the normal
// decode and suppression path.
type Passthrough struct{}

func (Passthrough) Predict(_ context.Context, input []float32) ([]float32, error) {
	return input, nil
}
