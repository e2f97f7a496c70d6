package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// OpenFile opens a step file, choosing the decoder by extension: ".csv"
// is read eagerly with CSVRecords, anything else is streamed as JSON lines.
// The returned closer releases the file.
func OpenFile(path string, defaultDt float64) (Source, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		defer f.Close()
		inputs, err := CSVRecords(f, defaultDt)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		return NewSlice(inputs), closerFunc(func() error { return nil }), nil
	}

	ls := NewLineSource(f, defaultDt)
	return ls, closerFunc(func() error {
		ls.Close()
		return f.Close()
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
