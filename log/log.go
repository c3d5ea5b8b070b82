// Package log provides the structured logging used throughout the
// coordinator. It wraps zerolog behind a small, mostly static API so call
// sites never touch zerolog directly.
package log

import (
	"bytes"
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

var (
	log                 zerolog.Logger
	logMu               sync.RWMutex
	panicOnInvalidChars = os.Getenv("COORDINATOR_LOG_PANIC_ON_INVALIDCHARS") == "true"
)

func init() {
	// $COORDINATOR_LOG_LEVEL can override the default so tests and
	// operators don't need to call Init explicitly.
	Init(cmp.Or(os.Getenv("COORDINATOR_LOG_LEVEL"), "error"), "stderr", nil)
}

// Logger returns the current global logger.
func Logger() *zerolog.Logger {
	logger := getLogger()
	return &logger
}

func getLogger() zerolog.Logger {
	logMu.RLock()
	logger := log
	logMu.RUnlock()
	return logger
}

func setLogger(logger zerolog.Logger) {
	logMu.Lock()
	log = logger
	logMu.Unlock()
}

var logTestWriter io.Writer

const logTestWriterName = "log_test_writer"

var logTestTime, _ = time.Parse(RFC3339Milli, "2006-01-02T15:04:05.000Z")

// panicOnErrorHook panics (after a delay) when an Error-level log is
// observed. Integration tests install this to turn a swallowed error log
// into a hard test failure.
type panicOnErrorHook struct {
	TestName string
	Delay    time.Duration
	Handler  func(string)
	once     sync.Once
}

func (h *panicOnErrorHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if level >= zerolog.ErrorLevel {
		panicMsg := fmt.Sprintf("ERROR found in logs during test %s: %s", h.TestName, msg)
		h.once.Do(func() {
			delay := h.Delay
			if delay <= 0 {
				delay = time.Second
			}
			handler := h.Handler
			if handler == nil {
				handler = func(message string) { panic(message) }
			}
			time.AfterFunc(delay, func() {
				handler(panicMsg)
			})
		})
	}
}

// EnablePanicOnError installs a panic-on-error hook and returns the
// previous logger so the caller can restore it with RestoreLogger.
func EnablePanicOnError(testName string) zerolog.Logger {
	return EnablePanicOnErrorWithHandler(testName, time.Second, nil)
}

// EnablePanicOnErrorWithHandler is EnablePanicOnError with a configurable
// delay and handler (nil handler panics with the message).
func EnablePanicOnErrorWithHandler(testName string, delay time.Duration, handler func(string)) zerolog.Logger {
	previousLogger := getLogger()
	setLogger(previousLogger.Hook(&panicOnErrorHook{
		TestName: testName,
		Delay:    delay,
		Handler:  handler,
	}))
	return previousLogger
}

// RestoreLogger restores a logger previously returned by EnablePanicOnError.
func RestoreLogger(previousLogger zerolog.Logger) {
	setLogger(previousLogger)
}

type errorLevelWriter struct {
	io.Writer
}

var _ zerolog.LevelWriter = &errorLevelWriter{}

func (*errorLevelWriter) Write(_ []byte) (int, error) {
	panic("should be calling WriteLevel")
}

func (w *errorLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.WarnLevel {
		return len(p), nil
	}
	return w.Writer.Write(p)
}

// invalidCharChecker panics on a Unicode replacement char, which usually
// signals a fmt verb/argument mismatch at the call site.
type invalidCharChecker struct{}

func (*invalidCharChecker) Write(p []byte) (int, error) {
	if bytes.ContainsRune(p, '�') {
		panic(fmt.Sprintf("log line with invalid chars: %q", string(p)))
	}
	return len(p), nil
}

// Init (re)configures the global logger: level is one of the LogLevel*
// constants, output is "stdout", "stderr", or a file path, and errorOutput
// (optional) receives a duplicate of warn/error-level lines uncolored.
func Init(level, output string, errorOutput io.Writer) {
	var out io.Writer
	outputs := []io.Writer{}
	switch output {
	case "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	case logTestWriterName:
		out = logTestWriter
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			panic(fmt.Sprintf("cannot create log output: %v", err))
		}
		out = f
		if strings.HasSuffix(output, ".json") {
			outputs = append(outputs, f)
			out = os.Stdout
		}
	}
	out = zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: RFC3339Milli,
	}
	outputs = append(outputs, out)

	if errorOutput != nil {
		outputs = append(outputs, &errorLevelWriter{zerolog.ConsoleWriter{
			Out:        errorOutput,
			TimeFormat: RFC3339Milli,
			NoColor:    true,
		}})
	}
	if panicOnInvalidChars {
		outputs = append(outputs, zerolog.ConsoleWriter{Out: &invalidCharChecker{}})
	}
	if len(outputs) > 1 {
		out = zerolog.MultiLevelWriter(outputs...)
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	if output == logTestWriterName {
		zerolog.TimestampFunc = func() time.Time { return logTestTime }
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger = logger.With().Caller().Logger()
	zerolog.CallerSkipFrameCount = 3
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		return fmt.Sprintf("%s/%s:%d", path.Base(path.Dir(file)), path.Base(file), line)
	}

	switch level {
	case LogLevelDebug:
		logger = logger.Level(zerolog.DebugLevel)
	case LogLevelInfo:
		logger = logger.Level(zerolog.InfoLevel)
	case LogLevelWarn:
		logger = logger.Level(zerolog.WarnLevel)
	case LogLevelError:
		logger = logger.Level(zerolog.ErrorLevel)
	default:
		panic(fmt.Sprintf("invalid log level: %q", level))
	}

	setLogger(logger)
	logger.Info().Msgf("logger construction succeeded at level %s with output %s", level, output)
}

// Level returns the current log level string.
func Level() string {
	logger := getLogger()
	switch level := logger.GetLevel(); level {
	case zerolog.DebugLevel:
		return LogLevelDebug
	case zerolog.InfoLevel:
		return LogLevelInfo
	case zerolog.WarnLevel:
		return LogLevelWarn
	case zerolog.ErrorLevel:
		return LogLevelError
	default:
		panic(fmt.Sprintf("invalid log level: %q", level))
	}
}

func Debug(args ...any) {
	logger := getLogger()
	if logger.GetLevel() > zerolog.DebugLevel {
		return
	}
	logger.Debug().Msg(fmt.Sprint(args...))
}

func Info(args ...any) {
	getLogger().Info().Msg(fmt.Sprint(args...))
}

func Warn(args ...any) {
	getLogger().Warn().Msg(fmt.Sprint(args...))
}

func Error(args ...any) {
	getLogger().Error().Msg(fmt.Sprint(args...))
}

func Fatal(args ...any) {
	getLogger().Fatal().Msg(fmt.Sprint(args...) + "\n" + string(debug.Stack()))
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

// Debugw logs a debug message with structured key-value fields.
func Debugw(msg string, keyvalues ...any) {
	Logger().Debug().Fields(keyvalues).Msg(msg)
}

// Infow logs an info message with structured key-value fields.
func Infow(msg string, keyvalues ...any) {
	Logger().Info().Fields(keyvalues).Msg(msg)
}

// Warnw logs a warning message with structured key-value fields.
func Warnw(msg string, keyvalues ...any) {
	Logger().Warn().Fields(keyvalues).Msg(msg)
}

// Errorw logs an error, attaching it as the zerolog error field alongside
// any additional key-value context (sender, nonce, endpoint, etc).
func Errorw(err error, msg string, keyvalues ...any) {
	Logger().Error().Err(err).Fields(keyvalues).Msg(msg)
}
