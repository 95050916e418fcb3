package bench

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type recLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recLogger) Print(args ...interface{}) {
	l.mu.Lock()
	l.msgs = append(l.msgs, fmt.Sprint(args...))
	l.mu.Unlock()
}

func (l *recLogger) Printf(format string, args ...interface{}) {
	l.Print(fmt.Sprintf(format, args...))
}

func (l *recLogger) Warnf(format string, args ...interface{}) {
	l.Print("warning: " + fmt.Sprintf(format, args...))
}

func TestPeriodicLoggerFlushesOnClose(t *testing.T) {
	var l recLogger
	n := 0
	pl := OpenPeriodicLogger(&l, time.Hour, func(l Logger) {
		n++
		l.Printf("tick %d", n)
	})
	pl.Close()
	pl.Close()

	if len(l.msgs) != 1 || l.msgs[0] != "tick 1" {
		t.Errorf("want one final message, got %q", l.msgs)
	}
}

func TestPeriodicLoggerTicks(t *testing.T) {
	var l recLogger
	pl := OpenPeriodicLogger(&l, time.Millisecond, func(l Logger) { l.Print("tick") })
	time.Sleep(20 * time.Millisecond)
	pl.Close()

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.msgs) < 2 {
		t.Errorf("want several ticks, got %d", len(l.msgs))
	}
}

func TestNilPeriodicLogger(t *testing.T) {
	if pl := OpenPeriodicLogger(nil, time.Second, func(Logger) {}); pl != nil {
		t.Errorf("want nil logger for nil log")
	}
	if pl := OpenPeriodicLogger(new(recLogger), 0, func(Logger) {}); pl != nil {
		t.Errorf("want nil logger for zero period")
	}
	var pl *PeriodicLogger
	pl.Close()
	OrNop(nil).Printf("dropped %d", 1)
}
