package common

import (
	"fmt"
	"io"

	"github.com/cheggaaa/pb/v3"

	"github.com/born-ml/digitpad/internal/session"
	"github.com/born-ml/digitpad/internal/trainer"
)

const trainingBar pb.ProgressBarTemplate = `{{with string . "prefix"}}{{.}} {{end}}{{counters . }} {{bar . }} {{etime . }}{{with string . "suffix"}} {{.}}{{end}}`

// TrainingProgress returns a started bar over numBatches iterations and the
// step callback that advances it. Finish the bar once training returns.
func TrainingProgress(w io.Writer, numBatches int) (*pb.ProgressBar, session.Option) {
	bar := trainingBar.New(numBatches)
	bar.SetWriter(w)
	bar.Set("prefix", "training:")
	bar.Start()

	return bar, session.WithStepCallback(func(st trainer.Step) {
		bar.SetCurrent(int64(st.Iteration))
		bar.Set("suffix", fmt.Sprintf("loss %.4f", st.Loss))
	})
}
