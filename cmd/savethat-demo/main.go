package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/opst/savethat/pkg/cli"
	"github.com/opst/savethat/pkg/node"
)

func main() {
	reg := node.NewRegistry()
	node.MustRegister[FitArgs, FitResult](reg, FitOLS{}, FitArgs{
		Samples: 100, Slope: 2, Intercept: 1, Noise: 0.1, Seed: 1,
	})
	node.MustRegister[CountdownArgs, int](reg, Countdown{}, CountdownArgs{
		From: 10, Interval: time.Second,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	os.Exit(cli.Main(ctx, "savethat-demo", reg))
}
