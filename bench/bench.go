// Package bench holds the types shared by the trace analysis packages:
// benchmark observations, the logger they report through, and progress
// reporting for long-running passes.
package bench

import (
	"sync"
	"time"
)

type Logger interface {
	Print(v ...interface{})
	Printf(format string, v ...interface{})
	Warnf(format string, v ...interface{})
}

type nopLogger struct{}

func (nopLogger) Print(v ...interface{})                 {}
func (nopLogger) Printf(format string, v ...interface{}) {}
func (nopLogger) Warnf(format string, v ...interface{})  {}

// OrNop returns l, or a Logger that discards everything if l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

// PeriodicLogger calls out every period until closed, and once more on Close.
type PeriodicLogger struct {
	log    Logger
	period time.Duration
	out    func(l Logger)
	done   chan struct{}
	prDone <-chan struct{}
	once   sync.Once
}

// OpenPeriodicLogger returns nil if log is nil or period is not positive.
// A nil *PeriodicLogger is safe to Close.
func OpenPeriodicLogger(log Logger, period time.Duration, out func(l Logger)) *PeriodicLogger {
	if log == nil || period <= 0 {
		return nil
	}
	pdone := make(chan struct{})
	l := &PeriodicLogger{
		log:    log,
		period: period,
		out:    out,
		done:   make(chan struct{}),
		prDone: pdone,
	}
	l.goPrinter(pdone)
	return l
}

func (l *PeriodicLogger) goPrinter(pdone chan<- struct{}) {
	go func() {
		t := time.NewTicker(l.period)
		defer t.Stop()
		defer close(pdone)
		for {
			select {
			case <-t.C:
				l.out(l.log)
			case <-l.done:
				l.out(l.log)
				return
			}
		}
	}()
}

func (l *PeriodicLogger) Close() {
	if l == nil {
		return
	}
	l.once.Do(func() { close(l.done) })
	<-l.prDone
}
