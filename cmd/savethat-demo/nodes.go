package main

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"math/rand"
	"path"
	"strconv"
	"time"

	"github.com/opst/savethat/pkg/node"
	"go.uber.org/zap"
)

type FitArgs struct {
	Samples   int     `json:"samples" flag:",help=number of samples to generate"`
	Slope     float64 `json:"slope" flag:",help=slope of the true line"`
	Intercept float64 `json:"intercept" flag:",help=intercept of the true line"`
	Noise     float64 `json:"noise" flag:",help=standard deviation of the noise"`
	Seed      int64   `json:"seed" flag:",help=random seed"`
}

func (a FitArgs) Validate() error {
	if a.Samples < 2 {
		return errors.New("samples should be 2 or more")
	}
	if a.Noise < 0 {
		return errors.New("noise should not be negative")
	}
	return nil
}

type FitResult struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RMSE      float64 `json:"rmse"`
}

// FitOLS fits a line to noisy samples with ordinary least squares.
type FitOLS struct{}

func (FitOLS) Doc() string {
	return `Fit a line to noisy samples with ordinary least squares.

Samples are generated from the line given by --slope and --intercept,
with gaussian noise. They are saved in data.csv of the run.`
}

func (FitOLS) Run(ctx context.Context, n *node.Node[FitArgs, FitResult]) (FitResult, error) {
	a := n.Args
	rnd := rand.New(rand.NewSource(a.Seed))

	xs := make([]float64, a.Samples)
	ys := make([]float64, a.Samples)
	for i := range xs {
		xs[i] = float64(i) / float64(a.Samples)
		ys[i] = a.Slope*xs[i] + a.Intercept + rnd.NormFloat64()*a.Noise
	}
	if err := writeSamples(n, xs, ys); err != nil {
		return FitResult{}, err
	}

	res, err := Fit(xs, ys)
	if err != nil {
		return FitResult{}, err
	}
	n.Logger.Info(
		"fitted",
		zap.Float64("slope", res.Slope),
		zap.Float64("intercept", res.Intercept),
		zap.Float64("rmse", res.RMSE),
	)
	return res, nil
}

func writeSamples(n *node.Node[FitArgs, FitResult], xs, ys []float64) error {
	f, err := n.Storage.Create(path.Join(n.Key, "data.csv"))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"x", "y"}); err != nil {
		return err
	}
	for i := range xs {
		if err := w.Write([]string{
			strconv.FormatFloat(xs[i], 'g', -1, 64),
			strconv.FormatFloat(ys[i], 'g', -1, 64),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Fit returns the least squares line of samples.
func Fit(xs, ys []float64) (FitResult, error) {
	if len(xs) != len(ys) || len(xs) < 2 {
		return FitResult{}, errors.New("2 or more pairs of samples are needed")
	}
	cnt := float64(len(xs))
	var sx, sy, sxx, sxy float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
		sxx += xs[i] * xs[i]
		sxy += xs[i] * ys[i]
	}
	den := cnt*sxx - sx*sx
	if den == 0 {
		return FitResult{}, errors.New("samples have the same x")
	}
	slope := (cnt*sxy - sx*sy) / den
	intercept := (sy - slope*sx) / cnt

	var sse float64
	for i := range xs {
		d := ys[i] - (slope*xs[i] + intercept)
		sse += d * d
	}
	return FitResult{Slope: slope, Intercept: intercept, RMSE: math.Sqrt(sse / cnt)}, nil
}

type CountdownArgs struct {
	From     int           `json:"from" flag:",help=count down from"`
	Interval time.Duration `json:"interval" flag:",metavar=DURATION,help=interval of counts"`
}

func (a CountdownArgs) Validate() error {
	if a.Interval <= 0 {
		return errors.New("interval should be positive")
	}
	return nil
}

// Countdown logs numbers slowly. Try `logs --follow` while it is running.
type Countdown struct{}

func (Countdown) Doc() string {
	return "Count down slowly, logging each number."
}

func (Countdown) Run(ctx context.Context, n *node.Node[CountdownArgs, int]) (int, error) {
	t := time.NewTicker(n.Args.Interval)
	defer t.Stop()
	for i := n.Args.From; 0 < i; i-- {
		n.Logger.Info("count", zap.Int("n", i))
		select {
		case <-ctx.Done():
			return 0, context.Cause(ctx)
		case <-t.C:
		}
	}
	return n.Args.From, nil
}
