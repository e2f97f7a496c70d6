// Command navfusion fuses accelerometer, GPS and barometer readings into
// a position and velocity estimate. Steps come from a recorded file, a
// serial sensor hub, a built-in simulation or the HTTP monitor API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/banshee-data/navfusion/internal/api"
	"github.com/banshee-data/navfusion/internal/config"
	"github.com/banshee-data/navfusion/internal/db"
	"github.com/banshee-data/navfusion/internal/fusion"
	"github.com/banshee-data/navfusion/internal/monitoring"
	"github.com/banshee-data/navfusion/internal/security"
	"github.com/banshee-data/navfusion/internal/session"
	"github.com/banshee-data/navfusion/internal/sim"
	"github.com/banshee-data/navfusion/internal/source"
	"github.com/banshee-data/navfusion/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a fusion config JSON file (built-in defaults when empty)")
	inputPath   = flag.String("input", "", "Step file to replay: .csv, otherwise JSON lines")
	serialPort  = flag.String("serial", "", "Serial port streaming JSON-lines steps from a sensor hub")
	baudRate    = flag.Int("baud", 115200, "Serial baud rate")
	simulate    = flag.Bool("simulate", false, "Replay a simulated circular flight")
	simSteps    = flag.Int("steps", 0, "Simulated steps (0 = run_duration / default_dt)")
	simSeed     = flag.Uint64("seed", 1, "Simulation noise seed")
	realtime    = flag.Bool("realtime", false, "Pace replay at dt per step")
	csvPath     = flag.String("csv", "", "Write the trajectory CSV here after the run")
	plotPath    = flag.String("plot", "", "Write a trajectory plot (.png, .svg, .pdf) here after the run")
	dbPath      = flag.String("db", "", "SQLite file to record runs and trajectories in")
	listen      = flag.String("listen", "", "Serve the monitor API on this address, e.g. :8080")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// options is the resolved command line.
type options struct {
	ConfigPath string
	InputPath  string
	SerialPort string
	BaudRate   int
	Simulate   bool
	SimSteps   int
	SimSeed    uint64
	Realtime   bool
	CSVPath    string
	PlotPath   string
	DBPath     string
	Listen     string
}

func optionsFromFlags() options {
	return options{
		ConfigPath: *configPath,
		InputPath:  *inputPath,
		SerialPort: *serialPort,
		BaudRate:   *baudRate,
		Simulate:   *simulate,
		SimSteps:   *simSteps,
		SimSeed:    *simSeed,
		Realtime:   *realtime,
		CSVPath:    *csvPath,
		PlotPath:   *plotPath,
		DBPath:     *dbPath,
		Listen:     *listen,
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Current())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, optionsFromFlags()); err != nil {
		log.Fatalf("navfusion: %v", err)
	}
}

func loadConfig(path string) (*config.FusionConfig, error) {
	if path == "" {
		return config.EmptyFusionConfig(), nil
	}
	return config.LoadFusionConfig(path)
}

// openSource picks the step source: serial, then file, then simulation.
// A nil source with a nil error means there is nothing to replay.
func openSource(o options, cfg *config.FusionConfig) (source.Source, io.Closer, []sim.Truth, error) {
	dt := cfg.GetDefaultDt()
	switch {
	case o.SerialPort != "":
		src, err := source.OpenSerial(o.SerialPort, source.PortOptions{BaudRate: o.BaudRate}, dt)
		if err != nil {
			return nil, nil, nil, err
		}
		return src, src, nil, nil

	case o.InputPath != "":
		src, closer, err := source.OpenFile(o.InputPath, dt)
		return src, closer, nil, err

	case o.Simulate:
		steps := o.SimSteps
		if steps <= 0 {
			steps = cfg.StepsPerRun()
		}
		scfg := sim.DefaultConfig(dt, steps)
		scfg.Seed = o.SimSeed
		gps := cfg.GetGPSNoise()
		scfg.GPSSigma = math.Sqrt(gps[0])
		scfg.BaroSigma = math.Sqrt(cfg.GetBaroNoise())
		flight, err := sim.Generate(scfg)
		if err != nil {
			return nil, nil, nil, err
		}
		return source.NewSlice(flight.Inputs), nil, flight.Truth, nil
	}
	return nil, nil, nil, nil
}

func run(ctx context.Context, o options) error {
	cfg, err := loadConfig(o.ConfigPath)
	if err != nil {
		return err
	}
	for _, p := range []string{o.CSVPath, o.PlotPath} {
		if p == "" {
			continue
		}
		if err := security.ValidateExportPath(p); err != nil {
			return fmt.Errorf("invalid export path: %w", err)
		}
	}

	src, closer, truth, err := openSource(o, cfg)
	if err != nil {
		return err
	}
	if src == nil && o.Listen == "" {
		return errors.New("nothing to do: give -input, -serial, -simulate or -listen")
	}
	if closer != nil {
		defer closer.Close()
	}

	opts := session.OptionsFromTuning(cfg)
	var store *db.DB
	if o.DBPath != "" {
		store, err = db.Open(o.DBPath)
		if err != nil {
			return fmt.Errorf("open trajectory store: %w", err)
		}
		defer store.Close()
		opts.Recorder = store
	}

	sess, err := session.New(opts)
	if err != nil {
		return err
	}
	monitoring.Logf("run %s started", sess.Snapshot().Run.ID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)
	if o.Listen != "" {
		var rs api.RunStore
		if store != nil {
			rs = store
		}
		srv := api.NewServer(sess, rs)
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveErr <- srv.ListenAndServe(ctx, o.Listen)
		}()
	}

	if src != nil {
		stats, err := sess.Run(ctx, src, o.Realtime)
		if err != nil && !errors.Is(err, context.Canceled) {
			cancel()
			wg.Wait()
			return err
		}
		monitoring.Logf("replay finished: %d steps, %d rejected, %d degraded", stats.Steps, stats.Rejected, stats.Degraded)
		if len(truth) > 0 && stats.Steps == len(truth) {
			logTruthError(sess.Snapshot().State, truth[len(truth)-1].State)
		}
		if err := export(sess, o); err != nil {
			cancel()
			wg.Wait()
			return err
		}
	}

	if o.Listen != "" {
		if src != nil {
			monitoring.Logf("replay done; still serving on %s", o.Listen)
		}
		select {
		case err := <-serveErr:
			return err
		case <-ctx.Done():
		}
		wg.Wait()
		if err := <-serveErr; err != nil {
			return err
		}
	}
	return nil
}

func export(sess *session.Session, o options) error {
	if o.CSVPath != "" {
		f, err := os.Create(o.CSVPath)
		if err != nil {
			return err
		}
		if err := sess.WriteCSV(f); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", o.CSVPath, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		monitoring.Logf("wrote trajectory log to %s", o.CSVPath)
	}
	if o.PlotPath != "" {
		if err := sess.WritePlot(o.PlotPath); err != nil {
			return err
		}
	}
	return nil
}

func logTruthError(est, truth fusion.Vec6) {
	var sq float64
	for i := 0; i < fusion.PosDim; i++ {
		sq += (est[i] - truth[i]) * (est[i] - truth[i])
	}
	monitoring.Logf("final position error vs truth: %.3f m", math.Sqrt(sq))
}
