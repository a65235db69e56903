package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"

	"github.com/youta-t/flarc"

	"github.com/born-ml/digitpad/cmd/digitpad/subcommands/common"
	subpredict "github.com/born-ml/digitpad/cmd/digitpad/subcommands/predict"
	subserve "github.com/born-ml/digitpad/cmd/digitpad/subcommands/serve"
	subtrain "github.com/born-ml/digitpad/cmd/digitpad/subcommands/train"
	subver "github.com/born-ml/digitpad/cmd/digitpad/subcommands/version"
)

func main() {
	name := path.Base(os.Args[0])
	logger := log.Default()
	logger.SetPrefix(fmt.Sprintf("[%s] ", name))

	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, os.Kill,
	)
	defer cancel()

	train := orFatal(logger)(subtrain.New())
	serve := orFatal(logger)(subserve.New())
	predict := orFatal(logger)(subpredict.New())
	version := orFatal(logger)(subver.New())

	digitpad := orFatal(logger)(
		flarc.NewCommandGroup(
			"Handwritten digit recognizer",
			common.CommonFlags{Config: os.Getenv("DIGITPAD_CONFIG")},
			flarc.WithSubcommand("train", train),
			flarc.WithSubcommand("serve", serve),
			flarc.WithSubcommand("predict", predict),
			flarc.WithSubcommand("version", version),
		),
	)

	os.Exit(flarc.Run(ctx, digitpad, flarc.WithHelp(true)))
}

func orFatal(logger *log.Logger) func(flarc.Command, error) flarc.Command {
	return func(c flarc.Command, err error) flarc.Command {
		if err != nil {
			logger.Fatal(err)
		}
		return c
	}
}
