package kernel

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = 1
	LogLevelError LogLevel = 2
)

var (
	logMux    sync.Mutex
	logLevel  = LogLevelError
	logWriter io.Writer
	logger    *zerolog.Logger
)

// Touch redirects all logs to writer, the log file is disabled
func Touch(writer io.Writer) {
	logMux.Lock()
	Env.LogPath = ""
	logWriter = writer
	logger = nil
	logMux.Unlock()
}

func SetLogLevel(level LogLevel) {
	logMux.Lock()
	logLevel = level
	logger = nil
	logMux.Unlock()
}

// Logger returns the shared structured logger, built lazily from Env
func Logger() *zerolog.Logger {
	logMux.Lock()
	defer logMux.Unlock()
	if logger == nil {
		logger = buildLogger()
	}
	return logger
}

func resetLogger() {
	logMux.Lock()
	logger = nil
	logMux.Unlock()
}

func DebugLog(format string, args ...interface{}) {
	if logLevel < LogLevelError {
		sendLog(zerolog.DebugLevel, format, args...)
	}
}

func ErrorLog(format string, args ...interface{}) {
	sendLog(zerolog.ErrorLevel, format, args...)
}

func sendLog(level zerolog.Level, format string, args ...interface{}) {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file = "???"
		line = 0
	} else {
		file = filepath.Base(file)
	}
	Logger().WithLevel(level).Str("module", fmt.Sprintf("%s:%d", file, line)).Msgf(format, args...)
}

func buildLogger() *zerolog.Logger {
	var writers []io.Writer
	if Env.LogPath != "" {
		writers = append(writers, &hourFile{path: Env.LogPath})
	} else if logWriter != nil {
		writers = append(writers, logWriter)
	}
	if Env.WriteLogStd {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05", NoColor: true})
	}
	var w io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		w = writers[0]
	default:
		w = zerolog.MultiLevelWriter(writers...)
	}
	level := zerolog.ErrorLevel
	if logLevel < LogLevelError {
		level = zerolog.DebugLevel
	}
	l := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &l
}

// hourFile switches to a new file every hour, same layout as the old logger process
type hourFile struct {
	mux  sync.Mutex
	path string
	hour int
	file *os.File
}

func (h *hourFile) Write(p []byte) (int, error) {
	h.mux.Lock()
	defer h.mux.Unlock()
	now := time.Now()
	if h.file == nil || now.Hour() != h.hour {
		if h.file != nil {
			_ = h.file.Close()
		}
		f, err := makeLogFile(h.path, now)
		if err != nil {
			return 0, err
		}
		h.file = f
		h.hour = now.Hour()
	}
	return h.file.Write(p)
}

func makeLogFile(root string, t time.Time) (*os.File, error) {
	year, month, day := t.Date()
	hour, _, _ := t.Clock()
	path := root + fmt.Sprintf("/%d_%d_%d", year, month, day)
	file := path + fmt.Sprintf("/sy_%d_%d_%d___%02d.log", year, month, day, hour)
	if _, err := os.Stat(path); err != nil {
		_ = os.MkdirAll(path, 0755)
	}
	return os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0666)
}
