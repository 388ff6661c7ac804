// Package log is the node wide structured logger. It keeps a single zerolog
// logger that every package writes to, so the output format and level are
// configured once at startup.
package log

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"path"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	RFC3339Milli = "2006-01-02T15:04:05.000Z07:00"
)

var levels = map[string]zerolog.Level{
	LogLevelDebug: zerolog.DebugLevel,
	LogLevelInfo:  zerolog.InfoLevel,
	LogLevelWarn:  zerolog.WarnLevel,
	LogLevelError: zerolog.ErrorLevel,
}

var (
	logger   zerolog.Logger
	loggerMu sync.RWMutex
)

func init() {
	// GARAGE_LOG_LEVEL wins over LOG_LEVEL, tests stay quiet by default.
	Init(cmp.Or(os.Getenv("GARAGE_LOG_LEVEL"), os.Getenv("LOG_LEVEL"), LogLevelError), "stderr", nil)
}

// Logger returns a copy of the global logger.
func Logger() *zerolog.Logger {
	l := current()
	return &l
}

func current() zerolog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

func replace(l zerolog.Logger) {
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}

// ValidLevel reports whether level is one of the supported level names.
func ValidLevel(level string) bool {
	_, ok := levels[level]
	return ok
}

// warnWriter only forwards warning and error lines, it backs the error log file.
type warnWriter struct {
	io.Writer
}

var _ zerolog.LevelWriter = (*warnWriter)(nil)

func (w *warnWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.WarnLevel {
		return len(p), nil
	}
	return w.Writer.Write(p)
}

// Init configures the global logger. Output is "stdout", "stderr" or a file
// path; a path ending in .json receives raw JSON lines while the console
// output goes to stdout. errorOutput, when set, gets a copy of warnings and
// errors without colors.
func Init(level, output string, errorOutput io.Writer) {
	lvl, ok := levels[level]
	if !ok {
		panic(fmt.Sprintf("invalid log level: %q", level))
	}

	var writers []io.Writer
	var console io.Writer
	switch output {
	case "stdout":
		console = os.Stdout
	case "stderr", "":
		console = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			panic(fmt.Sprintf("cannot open log output %s: %v", output, err))
		}
		console = f
		if strings.HasSuffix(output, ".json") {
			writers = append(writers, f)
			console = os.Stdout
		}
	}
	writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: RFC3339Milli})
	if errorOutput != nil {
		writers = append(writers, &warnWriter{zerolog.ConsoleWriter{
			Out:        errorOutput,
			TimeFormat: RFC3339Milli,
			NoColor:    true,
		}})
	}
	var out io.Writer = writers[0]
	if len(writers) > 1 {
		out = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	zerolog.CallerSkipFrameCount = 3
	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		return fmt.Sprintf("%s/%s:%d", path.Base(path.Dir(file)), path.Base(file), line)
	}
	l := zerolog.New(out).With().Timestamp().Caller().Logger().Level(lvl)
	replace(l)
	l.Debug().Msgf("logger ready, level %s output %s", level, output)
}

// Level returns the name of the active log level.
func Level() string {
	lvl := current().GetLevel()
	for name, l := range levels {
		if l == lvl {
			return name
		}
	}
	return lvl.String()
}

// errorHook hands the first error line to a callback after a delay. Tests
// install it to fail loudly when something logs an unexpected error.
type errorHook struct {
	name    string
	delay   time.Duration
	handler func(string)
	once    sync.Once
}

func (h *errorHook) Run(_ *zerolog.Event, level zerolog.Level, msg string) {
	if level < zerolog.ErrorLevel {
		return
	}
	h.once.Do(func() {
		report := fmt.Sprintf("error logged during %s: %s", h.name, msg)
		time.AfterFunc(h.delay, func() { h.handler(report) })
	})
}

// EnablePanicOnError makes the logger panic one second after the first
// error level line. It returns the previous logger for RestoreLogger.
func EnablePanicOnError(name string) zerolog.Logger {
	return EnablePanicOnErrorWithHandler(name, time.Second, nil)
}

// EnablePanicOnErrorWithHandler is EnablePanicOnError with a custom delay and
// handler. A nil handler panics.
func EnablePanicOnErrorWithHandler(name string, delay time.Duration, handler func(string)) zerolog.Logger {
	if delay <= 0 {
		delay = time.Second
	}
	if handler == nil {
		handler = func(msg string) { panic(msg) }
	}
	previous := current()
	replace(previous.Hook(&errorHook{name: name, delay: delay, handler: handler}))
	return previous
}

// RestoreLogger puts back a logger saved by EnablePanicOnError.
func RestoreLogger(previous zerolog.Logger) {
	replace(previous)
}

func Debug(args ...any) {
	l := current()
	if l.GetLevel() > zerolog.DebugLevel {
		return
	}
	l.Debug().Msg(fmt.Sprint(args...))
}

func Info(args ...any) {
	l := current()
	l.Info().Msg(fmt.Sprint(args...))
}

func Warn(args ...any) {
	l := current()
	l.Warn().Msg(fmt.Sprint(args...))
}

func Error(args ...any) {
	l := current()
	l.Error().Msg(fmt.Sprint(args...))
}

// Fatal logs the message with a stack trace and exits.
func Fatal(args ...any) {
	l := current()
	l.Fatal().Msg(fmt.Sprint(args...) + "\n" + string(debug.Stack()))
	panic("unreachable")
}

func Debugf(template string, args ...any) {
	Logger().Debug().Msgf(template, args...)
}

func Infof(template string, args ...any) {
	Logger().Info().Msgf(template, args...)
}

func Warnf(template string, args ...any) {
	Logger().Warn().Msgf(template, args...)
}

func Errorf(template string, args ...any) {
	Logger().Error().Msgf(template, args...)
}

func Fatalf(template string, args ...any) {
	Logger().Fatal().Msgf(template+"\n"+string(debug.Stack()), args...)
}

// Debugw logs msg with alternating key/value pairs.
func Debugw(msg string, keyvalues ...any) {
	Logger().Debug().Fields(keyvalues).Msg(msg)
}

// Infow logs msg with alternating key/value pairs.
func Infow(msg string, keyvalues ...any) {
	Logger().Info().Fields(keyvalues).Msg(msg)
}

// Warnw logs msg with alternating key/value pairs.
func Warnw(msg string, keyvalues ...any) {
	Logger().Warn().Fields(keyvalues).Msg(msg)
}

// Errorw logs msg with err attached.
func Errorw(err error, msg string) {
	Logger().Error().Err(err).Msg(msg)
}

// Monitor logs a block of fields at info level without caller information,
// the poll monitor uses it for periodic status lines.
func Monitor(msg string, fields map[string]any) {
	l := current()
	l.Info().CallerSkipFrame(100).Fields(fields).Msg(msg)
}
