package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logPath   string
	logLevel  string = "info"
	loggerMap        = make(map[string]zerolog.Logger)
	mu        sync.RWMutex

	fileOnce sync.Once
	logFile  *lumberjack.Logger

	// console is shared by every logger so the display can silence it.
	console = &muteWriter{out: os.Stdout}
)

// SetLogPath sets the directory for log files
func SetLogPath(path string) {
	logPath = path
}

// SetLogLevel sets the global log level
func SetLogLevel(level string) {
	logLevel = strings.ToLower(level)
}

// SetConsoleMuted stops (or resumes) console output. The log file keeps
// receiving every entry.
func SetConsoleMuted(muted bool) {
	console.muted.Store(muted)
}

// GetLogPath returns the full path to the log file
func GetLogPath() string {
	if logPath == "" {
		logPath = "."
	}
	logsDir := filepath.Join(logPath, "logs")

	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			fmt.Printf("Failed to create logs directory: %v\n", err)
			return filepath.Join(os.TempDir(), "fanout.log")
		}
	}

	return filepath.Join(logsDir, "fanout.log")
}

// New creates a new logger with the given prefix
func New(prefix string) zerolog.Logger {
	mu.RLock()
	if existing, ok := loggerMap[prefix]; ok {
		mu.RUnlock()
		return existing
	}
	mu.RUnlock()

	fileOnce.Do(func() {
		logFile = &lumberjack.Logger{
			Filename: GetLogPath(),
			MaxSize:  10,
			MaxAge:   15,
			Compress: true,
		}
	})

	consoleWriter := zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: "15:04:05",
		NoColor:    !IsTTY(),
		FormatLevel: func(i interface{}) string {
			level := strings.ToUpper(fmt.Sprintf("%s", i))
			switch level {
			case "TRACE":
				return "[TRC]"
			case "DEBUG":
				return "[DBG]"
			case "INFO":
				return "[INF]"
			case "WARN":
				return "[WRN]"
			case "ERROR":
				return "[ERR]"
			case "FATAL":
				return "[FTL]"
			default:
				if len(level) > 3 {
					level = level[:3]
				}
				return fmt.Sprintf("[%s]", level)
			}
		},
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("%v", i)
		},
	}

	fileWriter := zerolog.ConsoleWriter{
		Out:        logFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
		FormatLevel: func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
		},
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("%v", i)
		},
	}

	multi := zerolog.MultiLevelWriter(consoleWriter, fileWriter)

	logger := zerolog.New(multi).
		With().
		Timestamp().
		Str("component", prefix).
		Logger().
		Level(parseLevel(logLevel))

	mu.Lock()
	loggerMap[prefix] = logger
	mu.Unlock()

	return logger
}

// Default returns the default logger
func Default() zerolog.Logger {
	return New("fanout")
}

// Close flushes and closes the rotating log file.
func Close() error {
	if logFile == nil {
		return nil
	}
	return logFile.Close()
}

// IsTTY reports whether stdout is an interactive terminal.
func IsTTY() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsStdinTTY reports whether stdin is an interactive terminal.
func IsStdinTTY() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsInfoEnabled reports whether info entries are emitted.
func IsInfoEnabled() bool {
	return parseLevel(logLevel) <= zerolog.InfoLevel
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

type muteWriter struct {
	out   io.Writer
	muted atomic.Bool
}

func (w *muteWriter) Write(p []byte) (int, error) {
	if w.muted.Load() {
		return len(p), nil
	}
	return w.out.Write(p)
}
