package config

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// UntilModified returns a context that is canceled when one of the files is
// modified (written, created, removed, or renamed).
//
// The cause of the cancellation (context.Cause) names the file and the
// operation. If error is not nil, both the context and the cancel function
// are nil.
func UntilModified(ctx context.Context, paths ...string) (context.Context, func(), error) {
	cctx, cancel := context.WithCancelCause(ctx)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		cancel(err)
		return nil, nil, err
	}

	for _, f := range paths {
		if err = w.Add(f); err != nil {
			cancel(err)
			w.Close()
			return nil, nil, err
		}
	}

	go func() {
		defer w.Close()

		for {
			select {
			case <-cctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				cancel(fmt.Errorf("%s is updated (%s)", event.Name, event.Op.String()))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				cancel(fmt.Errorf("watching config: %w", err))
			}
		}
	}()

	return cctx, func() { cancel(nil) }, nil
}
