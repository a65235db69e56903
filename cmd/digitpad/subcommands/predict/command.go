package predict

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"

	"github.com/youta-t/flarc"

	"github.com/born-ml/digitpad/cmd/digitpad/subcommands/common"
	"github.com/born-ml/digitpad/internal/canvas"
	"github.com/born-ml/digitpad/internal/inference"
	"github.com/born-ml/digitpad/internal/session"
)

type Flags struct {
	Preview    string `flag:"preview" metavar:"path/to/preview.png" help:"write the 28x28 image the model sees to this file."`
	JSON       bool   `flag:"json" help:"print the prediction as JSON."`
	NoProgress bool   `flag:"no-progress" help:"do not show the progress bar."`
}

const ARG_IMAGE = "IMAGE"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Train the digit classifier, then classify an image file.",
		Flags{
			Preview:    "",
			JSON:       false,
			NoProgress: false,
		},
		flarc.Args{
			{
				Name: ARG_IMAGE, Required: true,
				Help: "PNG or JPEG image of a digit: light ink on a dark background.",
			},
		},
		common.NewTask(Task()),
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
		path := cl.Args()[ARG_IMAGE][0]

		img, err := readImage(path)
		if err != nil {
			return err
		}
		surface := canvas.FromImage(img)

		if flags.Preview != "" {
			if err := writePreview(flags.Preview, surface); err != nil {
				return err
			}
		}

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

		_, err = sess.Train(ctx, source)
		finish()
		if err != nil {
			return err
		}

		pred, err := sess.PredictSurface(surface)
		if err != nil {
			return fmt.Errorf("%w: image: %s", err, path)
		}

		if flags.JSON {
			enc := json.NewEncoder(cl.Stdout())
			enc.SetIndent("", "    ")
			return enc.Encode(pred.Ranked())
		}
		return printRanked(cl, pred)
	}
}

func readImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a PNG or JPEG image", err, path)
	}
	return img, nil
}

func writePreview(path string, surface canvas.Surface) error {
	t, err := canvas.PreprocessWith(surface, canvas.Options{Normalize: true})
	if err != nil {
		return err
	}
	defer t.Release()

	gray, err := canvas.ToImage(t)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, gray); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printRanked[T any](cl flarc.Commandline[T], pred inference.Prediction) error {
	w := cl.Stdout()
	if _, err := fmt.Fprintf(w, "prediction: %d\n", pred.Class); err != nil {
		return err
	}
	for _, r := range pred.Ranked() {
		if _, err := fmt.Fprintf(w, "  %d: %6.2f%%\n", r.Class, r.Percent); err != nil {
			return err
		}
	}
	return nil
}
