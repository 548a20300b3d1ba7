package logging_test

import (
	"context"
	"testing"
	"time"

	"go.crosstest.dev/harness/logging"
)

type record struct {
	level logging.Level
	msg   string
}

func TestAttachLoggerAndLog(t *testing.T) {
	var got []record
	logger := logging.NewFuncLogger(func(level logging.Level, ts time.Time, msg string) {
		got = append(got, record{level, msg})
	})
	ctx := logging.AttachLogger(context.Background(), logger)

	logging.Info(ctx, "hello")
	logging.Debugf(ctx, "n=%d", 3)
	logging.Warn(ctx, "careful")

	want := []record{
		{logging.LevelInfo, "hello"},
		{logging.LevelDebug, "n=3"},
		{logging.LevelWarn, "careful"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %+v; want %+v", i, got[i], want[i])
		}
	}
}

func TestNoLoggerIsSilent(t *testing.T) {
	// Logging to a bare context must not panic even though no logger is
	// attached.
	logging.Info(context.Background(), "hello")
}

func TestSinkLoggerFiltersLevel(t *testing.T) {
	var lines []string
	sink := logging.NewFuncSink(func(level logging.Level, msg string) {
		lines = append(lines, msg)
	})
	sl := logging.NewSinkLogger(logging.LevelWarn, false, sink)
	sl.Log(logging.LevelDebug, time.Now(), "dropped")
	sl.Log(logging.LevelWarn, time.Now(), "kept")
	if len(lines) != 1 || lines[0] != "kept" {
		t.Errorf("lines = %v; want [\"kept\"]", lines)
	}
}

func TestMultiLoggerFanOut(t *testing.T) {
	var a, b []string
	la := logging.NewFuncLogger(func(level logging.Level, ts time.Time, msg string) { a = append(a, msg) })
	lb := logging.NewFuncLogger(func(level logging.Level, ts time.Time, msg string) { b = append(b, msg) })
	ml := logging.NewMultiLogger(la, lb)
	ml.Log(logging.LevelInfo, time.Now(), "x")
	if len(a) != 1 || len(b) != 1 {
		t.Errorf("a=%v b=%v; want both to contain one entry", a, b)
	}
	ml.RemoveLogger(la)
	ml.Log(logging.LevelInfo, time.Now(), "y")
	if len(a) != 1 || len(b) != 2 {
		t.Errorf("after RemoveLogger: a=%v b=%v", a, b)
	}
}

func TestLoggerPropagation(t *testing.T) {
	var outer, inner []string
	outerLogger := logging.NewFuncLogger(func(level logging.Level, ts time.Time, msg string) { outer = append(outer, msg) })
	innerLogger := logging.NewFuncLogger(func(level logging.Level, ts time.Time, msg string) { inner = append(inner, msg) })

	ctx := logging.AttachLogger(context.Background(), outerLogger)
	ctx = logging.AttachLogger(ctx, innerLogger)

	logging.Info(ctx, "hi")

	if len(inner) != 1 || len(outer) != 1 {
		t.Errorf("inner=%v outer=%v; want both to receive the propagated log", inner, outer)
	}
}
