// Package slog is a minimal leveled logger with code location printing,
// colorized level tags and error-check shortcuts, shared by every package in
// the module via the `var log, chk = slog.New(os.Stderr)` declaration.
package slog

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/gookit/color"
)

const (
	Off = iota
	Fatal
	Error
	Warn
	Info
	Debug
	Trace
)

type (
	// Ln prints lists of interfaces with spaces in between.
	Ln func(a ...interface{})
	// F prints like fmt.Printf surrounded by log details.
	F func(format string, a ...interface{})
	// S prints a spew.Sdump of the given variables.
	S func(a ...interface{})
	// Chk prints the error if there is one and reports whether it was set.
	Chk func(e error) bool
	// Err formats an error, prints it, and passes it back to the caller.
	Err func(format string, a ...interface{}) error

	LevelPrinter struct {
		Ln
		F
		S
		Chk
		Err
	}
	LevelSpec struct {
		Name      string
		Colorizer func(a ...interface{}) string
	}
)

// Log is a set of log printers for the various levels.
type Log struct {
	F, E, W, I, D, T LevelPrinter
}

// Check bundles just the error-check printers so callers can write
// `if chk.E(err) { return }`.
type Check struct {
	F, E, W, I, D, T Chk
}

var (
	currentLevel atomic.Int32

	levelSpecs = []LevelSpec{
		{"   ", color.Bit24(0, 0, 0, false).Sprint},
		{"FTL", color.Bit24(128, 0, 0, false).Sprint},
		{"ERR", color.Bit24(255, 0, 0, false).Sprint},
		{"WRN", color.Bit24(0, 255, 0, false).Sprint},
		{"INF", color.Bit24(255, 255, 0, false).Sprint},
		{"DBG", color.Bit24(0, 125, 255, false).Sprint},
		{"TRC", color.Bit24(125, 0, 255, false).Sprint},
	}
)

func init() {
	switch strings.ToUpper(os.Getenv("NOMADSTR_LOG")) {
	case "FATAL":
		SetLogLevel(Fatal)
	case "ERROR":
		SetLogLevel(Error)
	case "WARN":
		SetLogLevel(Warn)
	case "DEBUG", "1", "TRUE", "ON":
		SetLogLevel(Debug)
	case "TRACE":
		SetLogLevel(Trace)
	case "OFF", "0", "FALSE":
		SetLogLevel(Off)
	default:
		SetLogLevel(Info)
	}
}

func SetLogLevel(l int) { currentLevel.Store(int32(l)) }

func GetLogLevel() (l int) { return int(currentLevel.Load()) }

// GetLoc returns the source location of the caller's caller for log entries.
func GetLoc(skip int) (output string) {
	_, file, line, _ := runtime.Caller(skip)
	return color.Bit24(0, 128, 255, false).Sprint(file, ":", line)
}

func joinStrings(a ...any) (s string) {
	for i := range a {
		s += fmt.Sprint(a[i])
		if i < len(a)-1 {
			s += " "
		}
	}
	return
}

func timestamp() string { return time.Now().Format("15:04:05.000000") }

func printer(l int32, w io.Writer) func(text string) {
	return func(text string) {
		if currentLevel.Load() < l {
			return
		}
		fmt.Fprintf(w, "%s %s %s %s\n",
			timestamp(),
			levelSpecs[l].Colorizer(levelSpecs[l].Name),
			text,
			GetLoc(3),
		)
	}
}

func getPrinter(l int32, w io.Writer) LevelPrinter {
	p := printer(l, w)
	return LevelPrinter{
		Ln: func(a ...interface{}) { p(joinStrings(a...)) },
		F:  func(format string, a ...interface{}) { p(fmt.Sprintf(format, a...)) },
		S:  func(a ...interface{}) { p(spew.Sdump(a...)) },
		Chk: func(e error) bool {
			if e != nil {
				p(e.Error())
				return true
			}
			return false
		},
		Err: func(format string, a ...interface{}) error {
			p(fmt.Sprintf(format, a...))
			return fmt.Errorf(format, a...)
		},
	}
}

// New returns a log printer set and its matching error checker set writing to
// the given writer.
func New(w io.Writer) (l *Log, c *Check) {
	l = &Log{
		F: getPrinter(Fatal, w),
		E: getPrinter(Error, w),
		W: getPrinter(Warn, w),
		I: getPrinter(Info, w),
		D: getPrinter(Debug, w),
		T: getPrinter(Trace, w),
	}
	c = &Check{
		F: l.F.Chk,
		E: l.E.Chk,
		W: l.W.Chk,
		I: l.I.Chk,
		D: l.D.Chk,
		T: l.T.Chk,
	}
	return
}
