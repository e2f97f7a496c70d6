package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/navfusion/internal/fusion"
)

// CSVHeader is the column layout accepted by CSVRecords.
var CSVHeader = []string{"dt", "ax", "ay", "az", "gps_x", "gps_y", "gps_z", "baro"}

// CSVRecords decodes a step CSV with a CSVHeader header row. An empty dt
// cell takes defaultDt and an empty acceleration cell reads as zero. A GPS
// fix is present only when all three cells parse to numbers; an empty or
// NaN cell marks the fix (or the baro reading) as absent.
func CSVRecords(r io.Reader, defaultDt float64) ([]fusion.StepInput, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(CSVHeader)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csv: missing header")
	}
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	for i, name := range CSVHeader {
		if strings.TrimSpace(strings.ToLower(header[i])) != name {
			return nil, fmt.Errorf("csv header column %d is %q, want %q", i+1, header[i], name)
		}
	}

	var inputs []fusion.StepInput
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return inputs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		in, err := csvStep(row, defaultDt)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		inputs = append(inputs, in)
	}
}

func csvStep(row []string, defaultDt float64) (fusion.StepInput, error) {
	in := fusion.StepInput{Dt: defaultDt}

	dt, ok, err := csvFloat(row[0])
	if err != nil {
		return in, fmt.Errorf("dt: %w", err)
	}
	if ok {
		in.Dt = dt
	}

	for i := 0; i < 3; i++ {
		a, ok, err := csvFloat(row[1+i])
		if err != nil {
			return in, fmt.Errorf("%s: %w", CSVHeader[1+i], err)
		}
		if ok {
			in.Accel[i] = a
		}
	}

	var fix fusion.Vec3
	present := true
	for i := 0; i < 3; i++ {
		v, ok, err := csvFloat(row[4+i])
		if err != nil {
			return in, fmt.Errorf("%s: %w", CSVHeader[4+i], err)
		}
		present = present && ok
		fix[i] = v
	}
	if present {
		in.GPS = &fix
	}

	baro, ok, err := csvFloat(row[7])
	if err != nil {
		return in, fmt.Errorf("baro: %w", err)
	}
	if ok {
		in.Baro = &baro
	}
	return in, nil
}

// csvFloat parses a cell; ok is false for an empty or NaN cell.
func csvFloat(cell string) (v float64, ok bool, err error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, false, nil
	}
	v, err = strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, false, err
	}
	if math.IsNaN(v) {
		return 0, false, nil
	}
	return v, true, nil
}
