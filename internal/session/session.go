// Package session drives an estimator from a stream of step inputs and
// keeps the trajectory, counters and debug history that the CLI exports
// and the monitor API serves.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/navfusion/internal/config"
	"github.com/banshee-data/navfusion/internal/debug"
	"github.com/banshee-data/navfusion/internal/fusion"
	"github.com/banshee-data/navfusion/internal/monitoring"
	"github.com/banshee-data/navfusion/internal/source"
	"github.com/banshee-data/navfusion/internal/timeutil"
	"github.com/google/uuid"
)

var logf = monitoring.Component("session")

// Point is the estimate after one step.
type Point struct {
	Step   uint64            `json:"step"`
	Time   float64           `json:"time"`
	State  fusion.Vec6       `json:"state"`
	PosVar fusion.Vec3       `json:"pos_var"`
	GPSFix *fusion.Vec3      `json:"gps_fix,omitempty"`
	Baro   *float64          `json:"baro,omitempty"`
	Report fusion.StepReport `json:"report"`
}

// ModelCounters tallies outcomes for one measurement model.
type ModelCounters struct {
	Applied   uint64 `json:"applied"`
	Malformed uint64 `json:"malformed"`
	Singular  uint64 `json:"singular"`
}

func (c *ModelCounters) add(o fusion.Outcome) {
	switch o {
	case fusion.OutcomeApplied:
		c.Applied++
	case fusion.OutcomeMalformed:
		c.Malformed++
	case fusion.OutcomeSingular:
		c.Singular++
	}
}

// Counters tallies what has happened since the last reset.
type Counters struct {
	Steps    uint64        `json:"steps"`
	Rejected uint64        `json:"rejected"`
	GPS      ModelCounters `json:"gps"`
	Baro     ModelCounters `json:"baro"`
}

// RunInfo identifies one run: the span between construction or Reset and
// the next Reset.
type RunInfo struct {
	ID        string                 `json:"id"`
	StartedAt time.Time              `json:"started_at"`
	Config    fusion.EstimatorConfig `json:"config"`
}

// PointRecorder persists runs and their trajectory points.
type PointRecorder interface {
	RecordRun(run RunInfo) error
	RecordPoint(runID string, p Point) error
}

// Options configures a Session.
type Options struct {
	Estimator    fusion.EstimatorConfig
	DefaultDt    float64
	MaxHistory   int // 0 keeps every point
	DebugHistory int // 0 disables debug capture
	Clock        timeutil.Clock
	Recorder     PointRecorder
}

// OptionsFromTuning maps a loaded FusionConfig onto session options.
func OptionsFromTuning(cfg *config.FusionConfig) Options {
	return Options{
		Estimator:    fusion.EstimatorConfigFromTuning(cfg),
		DefaultDt:    cfg.GetDefaultDt(),
		MaxHistory:   cfg.GetMaxHistoryLength(),
		DebugHistory: cfg.GetDebugHistoryLength(),
	}
}

// Snapshot is a consistent view of the current belief.
type Snapshot struct {
	Run                RunInfo                               `json:"run"`
	Step               uint64                                `json:"step"`
	Time               float64                               `json:"time"`
	State              fusion.Vec6                           `json:"state"`
	PositionCovariance [fusion.PosDim][fusion.PosDim]float64 `json:"position_covariance"`
	Counters           Counters                              `json:"counters"`
}

// Session serialises access to one estimator. All methods are safe for
// concurrent use.
type Session struct {
	mu       sync.Mutex
	opts     Options
	est      *fusion.Estimator
	debug    *debug.Collector
	run      RunInfo
	elapsed  float64
	history  []Point
	counters Counters
}

// New creates a session and, if a recorder is configured, records the
// first run.
func New(opts Options) (*Session, error) {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if !(opts.DefaultDt > 0) {
		opts.DefaultDt = config.EmptyFusionConfig().GetDefaultDt()
	}
	s := &Session{
		opts:  opts,
		est:   fusion.NewEstimator(opts.Estimator),
		debug: debug.NewCollector(opts.DebugHistory),
	}
	s.est.DebugCollector = s.debug
	if err := s.startRun(); err != nil {
		return nil, err
	}
	return s, nil
}

// startRun must be called with mu held (or before the session is shared).
func (s *Session) startRun() error {
	s.run = RunInfo{
		ID:        uuid.NewString(),
		StartedAt: s.opts.Clock.Now().UTC(),
		Config:    s.opts.Estimator,
	}
	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.RecordRun(s.run); err != nil {
			return fmt.Errorf("record run %s: %w", s.run.ID, err)
		}
	}
	return nil
}

// DefaultDt returns the timestep used for records that omit dt.
func (s *Session) DefaultDt() float64 { return s.opts.DefaultDt }

// Apply runs one estimator step and appends the result to the history.
// A predict failure leaves the session untouched apart from the rejected
// counter and is returned. Skipped measurement updates are not errors;
// they are reported in the returned point.
func (s *Session) Apply(in fusion.StepInput) (Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.counters.Steps + 1
	s.debug.BeginStep(index)
	report, err := s.est.Step(in)
	if err != nil {
		s.debug.Discard()
		s.counters.Rejected++
		return Point{}, err
	}
	s.debug.Emit()

	s.counters.Steps = index
	s.counters.GPS.add(report.GPS)
	s.counters.Baro.add(report.Baro)
	s.elapsed += in.Dt

	p := s.est.Covariance()
	pt := Point{
		Step:   index,
		Time:   s.elapsed,
		State:  s.est.State(),
		PosVar: fusion.Vec3{p[0][0], p[1][1], p[2][2]},
		GPSFix: copyPtr(in.GPS),
		Baro:   copyPtr(in.Baro),
		Report: report,
	}
	s.appendHistory(pt)

	if report.Degraded() {
		logf("step %d: %v", index, report.Err())
	}
	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.RecordPoint(s.run.ID, pt); err != nil {
			logf("step %d: record point: %v", index, err)
		}
	}
	return pt, nil
}

// copyPtr detaches stored history from buffers the caller may reuse.
func copyPtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func (s *Session) appendHistory(pt Point) {
	s.history = append(s.history, pt)
	if limit := s.opts.MaxHistory; limit > 0 && len(s.history) > limit {
		drop := len(s.history) - limit
		s.history = append(s.history[:0], s.history[drop:]...)
	}
}

// RunStats summarises a Run call.
type RunStats struct {
	Steps    int
	Rejected int
	Degraded int
}

// Run drains src, applying each input. Rejected inputs are logged and
// skipped. When pace is true each step waits dt on the session clock
// before the next input is read, replaying the stream in real time.
// Run returns nil when src is exhausted and ctx.Err() on cancellation.
func (s *Session) Run(ctx context.Context, src source.Source, pace bool) (RunStats, error) {
	var stats RunStats
	for {
		in, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}

		pt, err := s.Apply(in)
		if err != nil {
			stats.Rejected++
			logf("input rejected: %v", err)
			continue
		}
		stats.Steps++
		if pt.Report.Degraded() {
			stats.Degraded++
		}

		if pace {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-s.opts.Clock.After(time.Duration(in.Dt * float64(time.Second))):
			}
		}
	}
}

// Reset restores the estimator's initial belief, clears history, counters
// and debug capture, and starts a new run.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.est.Reset()
	s.debug.Clear()
	s.history = nil
	s.counters = Counters{}
	s.elapsed = 0
	return s.startRun()
}

// Snapshot returns the current belief and counters.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Run:                s.run,
		Step:               s.counters.Steps,
		Time:               s.elapsed,
		State:              s.est.State(),
		PositionCovariance: s.est.PositionCovariance(),
		Counters:           s.counters,
	}
}

// History returns a copy of the retained trajectory, oldest first.
func (s *Session) History() []Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Point, len(s.history))
	copy(out, s.history)
	return out
}

// DebugSteps returns the retained debug captures, oldest first.
func (s *Session) DebugSteps() []debug.Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debug.Recent()
}
