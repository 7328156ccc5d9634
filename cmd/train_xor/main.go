package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"

	"github.com/neurlang/gradnet/compute"
	"github.com/neurlang/gradnet/compute/cpu"
	"github.com/neurlang/gradnet/compute/webgpu"
	"github.com/neurlang/gradnet/datasets"
	"github.com/neurlang/gradnet/datasets/logic"
	"github.com/neurlang/gradnet/inference"
	"github.com/neurlang/gradnet/net/mlp"
	"github.com/neurlang/gradnet/trainer"
)

func main() {

	hidden := flag.Int("hidden", 4, "hidden layer width")
	rate := flag.Float64("rate", 0.5, "learning rate")
	epochs := flag.Int("epochs", 1000, "epochs to train")
	interval := flag.Duration("interval", 0, "pause between steps (0 runs unpaced)")
	seed := flag.Int64("seed", 0, "weight init seed (0 picks a clock seed)")
	task := flag.String("task", "xor", "truth table to learn: xor, and, or")
	backend := flag.String("backend", "auto", "compute backend: auto, gpu, cpu")
	logevery := flag.Int("logevery", 100, "log epoch metrics every n epochs (0 silences)")
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)

	var table datasets.Table
	switch *task {
	case "xor":
		table = logic.XOR()
	case "and":
		table = logic.AND()
	case "or":
		table = logic.OR()
	default:
		logger.Fatalf("unknown task %q (want one of: xor, and, or)", *task)
	}

	cfg := mlp.DefaultConfig()
	cfg.HiddenSize = *hidden
	cfg.LearningRate = *rate

	var factory compute.Factory
	switch *backend {
	case "gpu":
		factory = webgpu.Open
	case "cpu":
		factory = cpu.Open
	case "auto":
		factory = func(cfg mlp.Config, w *mlp.Weights) (compute.Engine, error) {
			e, err := webgpu.Open(cfg, w)
			if errors.Is(err, compute.ErrUnsupportedBackend) || errors.Is(err, compute.ErrNoAdapter) {
				logger.Printf("webgpu unavailable (%v), using cpu: %s", err, cpu.Info())
				return cpu.Open(cfg, w)
			}
			return e, err
		}
	default:
		logger.Fatalf("unknown backend %q (want auto, gpu or cpu)", *backend)
	}

	pace := *interval
	if pace <= 0 {
		pace = -1 // run unpaced
	}
	sess := trainer.New(cfg, factory, trainer.Options{
		MaxEpochs:    *epochs,
		StepInterval: pace,
		Seed:         *seed,
		Table:        table,
		LogEvery:     *logevery,
	})
	sess.SetLogger(logger)

	if err := sess.Start(); err != nil {
		logger.Fatalf("starting training: %v", err)
	}
	logger.Printf("session %s training %s for up to %d epochs", sess.SessionID(), *task, *epochs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
wait:
	for {
		select {
		case <-ctx.Done():
			logger.Print("interrupted, stopping")
			sess.Stop()
			break wait
		case <-tick.C:
			if !sess.Training() {
				break wait
			}
		}
	}

	if err := sess.Err(); err != nil {
		logger.Fatalf("training failed: %v", err)
	}
	m := sess.Metrics()
	fmt.Printf("trained %d epochs, loss %.6f, accuracy %.2f\n", m.Epoch, m.Loss, m.Accuracy)

	e, err := factory(sess.Config(), sess.NetworkState().Weights)
	if err != nil {
		logger.Fatalf("opening inference engine: %v", err)
	}
	defer e.Release()

	preds, err := inference.Table(e, table)
	if err != nil {
		logger.Fatalf("evaluating truth table: %v", err)
	}
	for _, p := range preds {
		mark := "MISS"
		if p.Hit {
			mark = "ok"
		}
		fmt.Printf("%g %s %g = %.4f (want %g) %s\n",
			p.Input[0], *task, p.Input[1], p.Output[0], p.Target[0], mark)
	}
	println("[success rate]", int(100*inference.Accuracy(preds)), "%")
}
