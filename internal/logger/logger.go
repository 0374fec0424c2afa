package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"arlens/internal/config"
)

// Logger provides leveled logging (debug/info/warning/error) to rotating files and stdout/stderr.
type Logger struct {
	debugLog   *logrus.Logger
	infoLog    *logrus.Logger
	warningLog *logrus.Logger
	errorLog   *logrus.Logger
	logDir     string
	mu         sync.Mutex
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(config *config.Config) (*Logger, error) {
	if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logger := &Logger{
		logDir: config.LogDirectory,
	}
	logger.setupLoggers()
	return logger, nil
}

// NewWithWriter returns a Logger that writes every level to w and nothing to disk.
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{
		debugLog:   newLevelLogger(w, logrus.DebugLevel),
		infoLog:    newLevelLogger(w, logrus.InfoLevel),
		warningLog: newLevelLogger(w, logrus.WarnLevel),
		errorLog:   newLevelLogger(w, logrus.ErrorLevel),
	}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return NewWithWriter(io.Discard)
}

// setupLoggers initializes rotating writers and per-level loggers.
func (l *Logger) setupLoggers() {
	infoWriter := io.MultiWriter(os.Stdout, l.rotatingFile("info.log"))
	warningWriter := io.MultiWriter(os.Stdout, l.rotatingFile("warning.log"))
	errorWriter := io.MultiWriter(os.Stderr, l.rotatingFile("error.log"))

	l.debugLog = newLevelLogger(os.Stdout, logrus.DebugLevel)
	l.infoLog = newLevelLogger(infoWriter, logrus.InfoLevel)
	l.warningLog = newLevelLogger(warningWriter, logrus.WarnLevel)
	l.errorLog = newLevelLogger(errorWriter, logrus.ErrorLevel)
}

func (l *Logger) rotatingFile(filename string) io.Writer {
	return &lumberjack.Logger{
		Filename:   filepath.Join(l.logDir, filename),
		LocalTime:  true,
		MaxSize:    50,
		MaxAge:     7,
		MaxBackups: 3,
	}
}

func newLevelLogger(w io.Writer, level logrus.Level) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(level)
	log.SetFormatter(&formatter.Formatter{
		NoColors:        true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return log
}

// Debug writes a formatted debug-level log entry. Debug entries are never written to files.
func (l *Logger) Debug(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugLog.Debugf(format, v...)
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLog.Infof(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warningLog.Warnf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLog.Errorf(format, v...)
}

// Dir returns the directory log files are written to, empty for writer-backed loggers.
func (l *Logger) Dir() string {
	return l.logDir
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) error {
	if l.logDir == "" {
		return nil
	}
	if strings.ContainsAny(fileName, `/\`) {
		return fmt.Errorf("invalid log file name %q", fileName)
	}

	filePath := filepath.Join(l.logDir, fileName)
	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		l.Error("Error opening file: %v", err)
		return err
	}
	defer file.Close()

	l.Info("Log file %s has been cleared.", fileName)
	return nil
}
