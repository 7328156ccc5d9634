package trainer

import (
	"context"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/neurlang/gradnet/compute"
	"github.com/neurlang/gradnet/datasets"
	"github.com/neurlang/gradnet/datasets/logic"
	"github.com/neurlang/gradnet/net/mlp"
)

// DefaultStepInterval paces the cooperative loop at roughly one step per
// display frame so a UI polling the session between steps stays responsive.
const DefaultStepInterval = 16 * time.Millisecond

// DefaultMaxEpochs bounds a run that was started without an explicit limit.
const DefaultMaxEpochs = 1000

// Options configures a Session at construction time.
type Options struct {
	// MaxEpochs halts training after this many completed epochs.
	// Zero or negative selects DefaultMaxEpochs.
	MaxEpochs int

	// StepInterval is the pause between steps. Zero selects
	// DefaultStepInterval; a negative value disables pacing and the loop
	// only yields the processor between steps.
	StepInterval time.Duration

	// Seed draws the initial weights. Zero picks a clock seed.
	Seed int64

	// Table is the sample table to cycle over. Nil selects the XOR table.
	Table datasets.Table

	// LogEvery prints epoch metrics every n epochs. Zero disables logging.
	LogEvery int
}

// Session owns one network configuration, its training data and, while
// initialized, one compute engine with the device resources behind it.
// All methods are safe for concurrent use; the step loop itself runs on a
// single goroutine so the engine never sees concurrent calls.
type Session struct {
	mu sync.Mutex

	cfg     mlp.Config
	factory compute.Factory
	opts    Options
	seed    int64

	state   Status
	id      uuid.UUID
	weights *mlp.Weights
	net     *mlp.State
	engine  compute.Engine
	table   datasets.Table

	step      int
	completed int
	maxEpochs int
	epochLoss []float64
	epochAcc  []float64

	metrics Metrics
	history []SampleRecord
	epochs  []EpochRecord
	window  Window
	err     error

	cancel context.CancelFunc
	done   chan struct{}

	l *log.Logger
}

// New builds a stopped, uninitialized session. The engine is not acquired
// until the first Start.
func New(cfg mlp.Config, factory compute.Factory, opts Options) *Session {
	if opts.MaxEpochs <= 0 {
		opts.MaxEpochs = DefaultMaxEpochs
	}
	if opts.StepInterval == 0 {
		opts.StepInterval = DefaultStepInterval
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	table := opts.Table
	if table == nil {
		table = logic.XOR()
	}
	return &Session{
		cfg:       cfg,
		factory:   factory,
		opts:      opts,
		seed:      opts.Seed,
		table:     table.Clone(),
		maxEpochs: opts.MaxEpochs,
		l:         log.Default(),
	}
}

// Start initializes the engine if needed and launches the step loop.
// Starting a session that is already training is a no-op. After a stop the
// same engine resumes with the weights it last held.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StatusTraining || s.state == StatusInitializing {
		return nil
	}

	if s.engine == nil {
		prev := s.state
		s.state = StatusInitializing
		if err := s.cfg.Validate(); err != nil {
			s.state = prev
			return err
		}
		w := mlp.NewWeights(s.cfg, s.seed)
		engine, err := s.factory(s.cfg, w)
		if err != nil {
			s.state = prev
			return errors.Wrap(err, "opening compute engine")
		}
		s.engine = engine
		s.id = uuid.New()
		s.weights = w
		s.net = &mlp.State{Weights: w}
		s.state = StatusReady
	}

	s.step = 0
	s.completed = 0
	s.epochLoss = s.epochLoss[:0]
	s.epochAcc = s.epochAcc[:0]
	s.metrics = Metrics{}
	s.window = Window{}
	s.err = nil

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = StatusTraining
	go s.loop(ctx, s.engine, s.done)
	return nil
}

// Stop requests a halt and waits for the loop goroutine to finish its
// current step and sync weights back from the device. Stopping a session
// that is not training does nothing.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state != StatusTraining {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// UpdateConfig stops any run in progress, releases the engine and its
// device resources, applies the patch and discards every piece of state
// derived from the old configuration: weights, history and epoch records.
// The next Start initializes from scratch.
func (s *Session) UpdateConfig(patch mlp.Patch) {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine != nil {
		s.engine.Release()
		s.engine = nil
	}
	s.cfg = s.cfg.Apply(patch)
	s.id = uuid.UUID{}
	s.weights = nil
	s.net = nil
	s.history = nil
	s.epochs = nil
	s.metrics = Metrics{}
	s.err = nil
	s.state = StatusUninitialized
}

// loop is the training goroutine. It owns the engine until done closes;
// nobody else calls Step while the loop runs.
func (s *Session) loop(ctx context.Context, e compute.Engine, done chan struct{}) {
	defer close(done)

	var tick *time.Ticker
	if s.opts.StepInterval > 0 {
		tick = time.NewTicker(s.opts.StepInterval)
		defer tick.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			s.finish(e, nil)
			return
		default:
		}

		s.mu.Lock()
		if s.completed >= s.maxEpochs {
			s.mu.Unlock()
			s.finish(e, nil)
			return
		}
		sample := s.table[s.step%len(s.table)]
		s.mu.Unlock()

		start := time.Now()
		res, err := e.Step(sample.Input, sample.Target)
		if err != nil {
			s.finish(e, err)
			return
		}
		elapsed := time.Since(start)

		s.mu.Lock()
		s.step++
		s.history = append(s.history, SampleRecord{
			Epoch:      len(s.epochs) + 1,
			Input:      sample.Input,
			Target:     sample.Target,
			Prediction: res.Output,
			Loss:       res.Loss,
		})
		s.net = &mlp.State{
			Input:   sample.Input,
			Hidden:  res.Hidden,
			Output:  res.Output,
			Weights: s.weights,
		}
		s.epochLoss = append(s.epochLoss, res.Loss)
		s.epochAcc = append(s.epochAcc, res.Accuracy)
		s.window.Record(elapsed, res.Loss)

		halted := false
		if s.step%len(s.table) == 0 {
			rec := EpochRecord{
				Epoch:    len(s.epochs) + 1,
				Loss:     stat.Mean(s.epochLoss, nil),
				Accuracy: stat.Mean(s.epochAcc, nil),
			}
			s.epochs = append(s.epochs, rec)
			s.metrics = Metrics{Loss: rec.Loss, Epoch: rec.Epoch, Accuracy: rec.Accuracy}
			s.completed++
			s.epochLoss = s.epochLoss[:0]
			s.epochAcc = s.epochAcc[:0]
			if s.l != nil && s.opts.LogEvery > 0 && rec.Epoch%s.opts.LogEvery == 0 {
				snap := s.window.Snapshot()
				s.l.Printf("epoch=%d loss=%.6f accuracy=%.2f steps_per_sec=%.1f avg_step_ms=%.3f",
					rec.Epoch, rec.Loss, rec.Accuracy, snap.StepsPerSec, snap.AvgStepMS)
			}
			halted = s.completed >= s.maxEpochs
		}
		s.mu.Unlock()

		if halted {
			s.finish(e, nil)
			return
		}

		if tick != nil {
			select {
			case <-ctx.Done():
				s.finish(e, nil)
				return
			case <-tick.C:
			}
		} else {
			runtime.Gosched()
		}
	}
}

// finish is the loop's single exit path. It syncs the trained weights back
// from the device, records a fault if one stopped the run and marks the
// session stopped.
func (s *Session) finish(e compute.Engine, cause error) {
	synced, syncErr := e.Weights()

	s.mu.Lock()
	defer s.mu.Unlock()
	if cause != nil {
		s.err = cause
		if s.l != nil {
			s.l.Printf("training stopped by fault: %v", cause)
		}
	}
	if syncErr == nil && synced != nil && s.weights != nil {
		s.weights.CopyFrom(synced)
	}
	s.cancel()
	s.state = StatusStopped
}

// Config returns the session's current network configuration.
func (s *Session) Config() mlp.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// NetworkState returns the activations of the most recent step together
// with the session weights, or nil before the first Start.
func (s *Session) NetworkState() *mlp.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net
}

// Metrics returns the latest closed epoch's means. It is zero until the
// first epoch completes.
func (s *Session) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// History returns the per-step records accumulated since the last
// UpdateConfig. The slice header is a copy; records are append-only.
func (s *Session) History() []SampleRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history
}

// Epochs returns the closed-epoch records accumulated since the last
// UpdateConfig.
func (s *Session) Epochs() []EpochRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epochs
}

// Training reports whether the step loop is running.
func (s *Session) Training() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StatusTraining
}

// Status returns the session's lifecycle position.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MaxEpochs returns the auto-halt threshold.
func (s *Session) MaxEpochs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxEpochs
}

// SetMaxEpochs adjusts the auto-halt threshold, also mid-run.
func (s *Session) SetMaxEpochs(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.maxEpochs = n
	}
}

// SessionID identifies the current engine acquisition, or "" before the
// first Start.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil && s.id == (uuid.UUID{}) {
		return ""
	}
	return s.id.String()
}

// Err returns the fault that stopped the last run, or nil if it halted
// normally.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stats drains the throughput window.
func (s *Session) Stats() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.Snapshot()
}

// SetLogger replaces the epoch logger. A nil logger silences the session.
func (s *Session) SetLogger(l *log.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.l = l
}
