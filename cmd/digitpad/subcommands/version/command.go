package version

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/youta-t/flarc"

	"github.com/born-ml/digitpad/internal/parallel"
)

// Version is overwritten at build time with -ldflags "-X ...".
var Version = "dev"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Show version of this command.",
		struct{}{},
		flarc.Args{},
		func(ctx context.Context, c flarc.Commandline[struct{}], a []any) error {
			_, err := fmt.Fprintln(c.Stdout(), VersionString())
			return err
		},
	)
}

// VersionString is the version, the commit when known, and the CPU the
// kernels run on.
func VersionString() string {
	revision := "unknown"
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				revision = s.Value
			}
		}
	}
	return fmt.Sprintf("%s (commit: %s, cpu: %s)", Version, revision, parallel.CPUName())
}
