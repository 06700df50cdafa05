//go:build !gocv

package camera

import (
	"context"
	"log/slog"
)

func newGoCVOpener(int, *slog.Logger) Opener {
	return func(context.Context) (Device, error) {
		return nil, ErrGoCVUnavailable
	}
}
