// Package monitoring holds the process-wide diagnostic logger used by the
// session, storage and transport layers. The fusion core never logs.
package monitoring

import (
	"fmt"
	"log"
	"sync"
)

var (
	mu   sync.RWMutex
	sink = log.Printf
)

// Logf writes a diagnostic line through the current sink.
func Logf(format string, v ...interface{}) {
	mu.RLock()
	f := sink
	mu.RUnlock()
	f(format, v...)
}

// SetLogger replaces the sink. Passing nil mutes all output.
func SetLogger(f func(format string, v ...interface{})) {
	mu.Lock()
	defer mu.Unlock()
	if f == nil {
		sink = func(string, ...interface{}) {}
		return
	}
	sink = f
}

// Component returns a logger that prefixes every line with "[name] ".
func Component(name string) func(format string, v ...interface{}) {
	prefix := fmt.Sprintf("[%s] ", name)
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
