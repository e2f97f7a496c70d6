package source

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/banshee-data/navfusion/internal/fusion"
	"github.com/banshee-data/navfusion/internal/monitoring"
)

var logf = monitoring.Component("source")

// LineSource reads JSON-lines step records from a stream. Blank lines and
// lines starting with '#' are ignored. Lines that fail to decode are
// logged and skipped so a single garbled line from a sensor hub does not
// end the run.
type LineSource struct {
	r         io.Reader
	defaultDt float64

	once  sync.Once
	lines chan []byte
	errc  chan error
	done  chan struct{}
	stop  sync.Once

	mu      sync.Mutex
	lineNo  int
	skipped int
}

// NewLineSource returns a LineSource reading from r.
func NewLineSource(r io.Reader, defaultDt float64) *LineSource {
	return &LineSource{
		r:         r,
		defaultDt: defaultDt,
		lines:     make(chan []byte),
		errc:      make(chan error, 1),
		done:      make(chan struct{}),
	}
}

// start runs the blocking scanner in its own goroutine so Next can
// observe context cancellation while a read is outstanding.
func (s *LineSource) start() {
	go func() {
		defer close(s.lines)
		scan := bufio.NewScanner(s.r)
		for scan.Scan() {
			line := append([]byte(nil), scan.Bytes()...)
			select {
			case s.lines <- line:
			case <-s.done:
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case s.errc <- err:
			case <-s.done:
			}
		}
	}()
}

// Next implements Source.
func (s *LineSource) Next(ctx context.Context) (fusion.StepInput, error) {
	s.once.Do(s.start)
	for {
		select {
		case <-ctx.Done():
			return fusion.StepInput{}, ctx.Err()

		case err := <-s.errc:
			return fusion.StepInput{}, err

		case line, ok := <-s.lines:
			if !ok {
				select {
				case err := <-s.errc:
					return fusion.StepInput{}, err
				default:
				}
				return fusion.StepInput{}, io.EOF
			}
			s.mu.Lock()
			s.lineNo++
			n := s.lineNo
			s.mu.Unlock()

			line = bytes.TrimSpace(line)
			if len(line) == 0 || line[0] == '#' {
				continue
			}
			in, err := ParseStepLine(line, s.defaultDt)
			if err != nil {
				s.mu.Lock()
				s.skipped++
				s.mu.Unlock()
				logf("line %d skipped: %v", n, err)
				continue
			}
			return in, nil
		}
	}
}

// Skipped returns how many lines failed to decode.
func (s *LineSource) Skipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// Close stops the reader goroutine. It does not close the underlying
// reader.
func (s *LineSource) Close() error {
	s.stop.Do(func() { close(s.done) })
	return nil
}
