package main

import (
	"context"
	"os"

	"github.com/AlexxIT/go2avc/internal/app"
	"github.com/AlexxIT/go2avc/internal/decode"
	"github.com/AlexxIT/go2avc/pkg/shell"
	"github.com/pkg/errors"
)

func main() {
	app.Init() // init config and logs

	ctx, cancel := shell.SignalContext(context.Background())

	_, err := decode.Run(ctx, decode.LoadConfig())
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("[decode]")
		os.Exit(1)
	}
}
