// Package source decodes step records from files, streams and serial
// sensor hubs into fusion.StepInput values.
package source

import (
	"context"
	"io"

	"github.com/banshee-data/navfusion/internal/fusion"
)

// Source yields step inputs in order. Next returns io.EOF once the source
// is exhausted.
type Source interface {
	Next(ctx context.Context) (fusion.StepInput, error)
}

// Slice is a Source over a fixed list of inputs.
type Slice struct {
	inputs []fusion.StepInput
	pos    int
}

// NewSlice returns a Source that yields inputs in order.
func NewSlice(inputs []fusion.StepInput) *Slice {
	return &Slice{inputs: inputs}
}

// Next implements Source.
func (s *Slice) Next(ctx context.Context) (fusion.StepInput, error) {
	if err := ctx.Err(); err != nil {
		return fusion.StepInput{}, err
	}
	if s.pos >= len(s.inputs) {
		return fusion.StepInput{}, io.EOF
	}
	in := s.inputs[s.pos]
	s.pos++
	return in, nil
}

// Len returns the total number of inputs.
func (s *Slice) Len() int { return len(s.inputs) }
