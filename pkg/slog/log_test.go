package slog_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/culturebridge/nomadstr/pkg/slog"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	log, chk := slog.New(&buf)
	slog.SetLogLevel(slog.Trace)
	log.T.Ln("testing log level", slog.Trace)
	log.D.Ln("testing log level", slog.Debug)
	log.I.Ln("testing log level", slog.Info)
	log.W.Ln("testing log level", slog.Warn)
	log.E.Ln("testing log level", slog.Error)
	if !chk.E(errors.New("dummy error")) {
		t.Fatal("Chk must report a non-nil error")
	}
	if chk.E(nil) {
		t.Fatal("Chk must not report nil")
	}
	if !strings.Contains(buf.String(), "dummy error") {
		t.Fatal("error text missing from output")
	}
}

func TestLevelGate(t *testing.T) {
	var buf bytes.Buffer
	log, _ := slog.New(&buf)
	slog.SetLogLevel(slog.Error)
	log.D.Ln("should not appear")
	if strings.Contains(buf.String(), "should not appear") {
		t.Fatal("debug entry printed above current level")
	}
	slog.SetLogLevel(slog.Info)
}
