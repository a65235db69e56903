package session

import (
	"context"
	"fmt"

	"github.com/born-ml/digitpad/internal/data"
	"github.com/born-ml/digitpad/internal/inference"
	"github.com/born-ml/digitpad/internal/tensor"
)

// Status is a snapshot of training progress.
type Status struct {
	ID         string  `json:"session"`
	Started    bool    `json:"started"`
	Trained    bool    `json:"trained"`
	Iteration  int     `json:"iteration"`
	NumBatches int     `json:"num_batches"`
	BatchSize  int     `json:"batch_size"`
	Loss       float32 `json:"loss"`
	Error      string  `json:"error,omitempty"`
}

// Status returns the current training progress.
func (s *Session) Status() Status {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()
	st := s.progress
	if s.trainErr != nil {
		st.Error = s.trainErr.Error()
	}
	return st
}

// Evaluation is the result of Evaluate.
type Evaluation struct {
	Examples int     `json:"examples"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// Evaluate classifies `batches` batches of held-out examples and compares
// the predictions with their labels. It requires a trained session.
func (s *Session) Evaluate(ctx context.Context, source data.TestSource, batchSize, batches int) (Evaluation, error) {
	if s.closed.Load() {
		return Evaluation{}, ErrClosed
	}
	if !s.engine.Ready() {
		return Evaluation{}, inference.ErrInferenceNotReady
	}
	if batchSize <= 0 || batches <= 0 {
		return Evaluation{}, fmt.Errorf("evaluate: invalid batch size %d or batch count %d", batchSize, batches)
	}

	var ev Evaluation
	for i := 0; i < batches; i++ {
		err := tensor.Tidy(func(sc *tensor.Scope) error {
			batch, err := source.NextTestBatch(ctx, batchSize)
			sc.Track(batch.Images, batch.Labels)
			if err != nil {
				return err
			}
			if batch.Images == nil || batch.Labels == nil || batch.Size() != batchSize ||
				!batch.Labels.Shape().Equal(tensor.Shape{batchSize, data.NumClasses}) {
				return fmt.Errorf("%w: asked for %d examples, got %d", data.ErrBatchFetch, batchSize, batch.Size())
			}
			xs, err := sc.Reshape(batch.Images, tensor.Shape{batchSize, data.ImageSize, data.ImageSize, 1})
			if err != nil {
				return fmt.Errorf("%w: %w", data.ErrBatchFetch, err)
			}

			preds, err := s.engine.PredictBatch(xs)
			if err != nil {
				return err
			}
			for j, label := range data.Argmax(batch.Labels) {
				if preds[j].Class == label {
					ev.Correct++
				}
			}
			ev.Examples += batchSize
			return nil
		})
		if err != nil {
			return ev, fmt.Errorf("evaluate batch %d/%d: %w", i+1, batches, err)
		}
	}
	ev.Accuracy = float64(ev.Correct) / float64(ev.Examples)
	s.logger.Infof("session %s: accuracy %.2f%% on %d examples", s.id, ev.Accuracy*100, ev.Examples)
	return ev, nil
}
