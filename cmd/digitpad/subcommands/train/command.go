package train

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/youta-t/flarc"

	"github.com/born-ml/digitpad/cmd/digitpad/subcommands/common"
	"github.com/born-ml/digitpad/internal/session"
	"github.com/born-ml/digitpad/internal/trainer"
)

type Flags struct {
	Evaluate   int  `flag:"evaluate" alias:"e" metavar:"BATCHES" help:"number of held-out batches to evaluate after training. 0 skips evaluation."`
	NoProgress bool `flag:"no-progress" help:"do not show the progress bar."`
}

// Result is what train prints on stdout.
type Result struct {
	Session    string              `json:"session"`
	Iterations int                 `json:"iterations"`
	Examples   int                 `json:"examples"`
	FinalLoss  float32             `json:"final_loss"`
	Elapsed    string              `json:"elapsed"`
	Evaluation *session.Evaluation `json:"evaluation,omitempty"`
}

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Train the digit classifier and report its loss and accuracy.",
		Flags{
			Evaluate:   10,
			NoProgress: false,
		},
		flarc.Args{},
		common.NewTask(Task()),
		flarc.WithDescription(`
Train a fresh classifier on the configured batch source (data.source) for
training.num_batches batches of training.batch_size examples, then
classify --evaluate batches of held-out examples.

The result is printed as JSON.
`),
	)
}

func Task() common.Task[Flags] {
	return func(
		ctx context.Context,
		env common.Env,
		cl flarc.Commandline[Flags],
		params []any,
	) error {
		flags := cl.Flags()
		seed := common.Seed(env.Config)

		source, err := common.OpenSource(env.Config, seed)
		if err != nil {
			return err
		}

		var opts []session.Option
		finish := func() {}
		if !flags.NoProgress {
			bar, onStep := common.TrainingProgress(cl.Stderr(), env.Config.Training.NumBatches)
			opts = append(opts, onStep)
			finish = func() { bar.Finish() }
		}

		sess, err := common.NewSession(env, seed, opts...)
		if err != nil {
			return err
		}
		defer sess.Close()

		report, err := sess.Train(ctx, source)
		finish()
		if err != nil {
			return err
		}

		result := compose(sess.ID(), report)
		if flags.Evaluate > 0 {
			ev, err := sess.Evaluate(ctx, source, env.Config.Training.BatchSize, flags.Evaluate)
			if err != nil {
				return fmt.Errorf("evaluation: %w", err)
			}
			result.Evaluation = &ev
		}

		enc := json.NewEncoder(cl.Stdout())
		enc.SetIndent("", "    ")
		return enc.Encode(result)
	}
}

func compose(id string, r trainer.Report) Result {
	return Result{
		Session:    id,
		Iterations: r.Iterations,
		Examples:   r.Examples,
		FinalLoss:  r.FinalLoss,
		Elapsed:    r.Elapsed.Round(time.Millisecond).String(),
	}
}
