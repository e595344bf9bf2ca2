// logs/logger.go
package logs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bhtaylor94/Stock-data/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const consoleTimeLayout = "2006-01-02 15:04:05"

var (
	// The default logger prints to stderr until Init runs, so tests and
	// tools can log without any setup.
	log     = logrus.New()
	logFile *rotatingFile
)

// rotatingFile mirrors every entry into a size-rotated file. It carries its
// own formatter so the console keeps colors while the file stays parseable.
type rotatingFile struct {
	formatter logrus.Formatter
	out       *lumberjack.Logger
}

func (f *rotatingFile) Levels() []logrus.Level { return logrus.AllLevels }

func (f *rotatingFile) Fire(entry *logrus.Entry) error {
	line, err := f.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = f.out.Write(line)
	return err
}

func fileFormatter(format string) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{TimestampFormat: time.RFC3339}
	}
	return &logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: consoleTimeLayout,
	}
}

// Init replaces the default logger with one that prints colored lines to
// stdout and writes every entry to logFilePath, rotated per cfg.
func Init(cfg *config.LogConfig, logFilePath string) error {
	if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		ForceColors:            true,
		FullTimestamp:          true,
		TimestampFormat:        consoleTimeLayout,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})

	file := &rotatingFile{
		formatter: fileFormatter(cfg.FileFormat),
		out: &lumberjack.Logger{
			Filename:   logFilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
	}
	logger.AddHook(file)

	// Libraries that log through the logrus standard logger stay quiet.
	logrus.SetOutput(io.Discard)
	logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks))

	log, logFile = logger, file
	Infof("[Logs] Level %s, writing to %s", level, logFilePath)
	return nil
}

// Close flushes and detaches the log file. Later entries go to the console only.
func Close() {
	if logFile == nil {
		return
	}
	Info("[Logs] Closing log file.")
	log.ReplaceHooks(make(logrus.LevelHooks))
	if err := logFile.out.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
	}
	logFile = nil
}

// SetOutput redirects console output. Tests use it to capture log lines.
func SetOutput(w io.Writer) { log.SetOutput(w) }

// SetLevel overrides the configured level by name ("debug", "warn", ...).
func SetLevel(name string) error {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("unknown log level %q: %w", name, err)
	}
	log.SetLevel(level)
	return nil
}

func Debug(args ...interface{})                 { log.Debug(args...) }
func Debugf(format string, args ...interface{}) { log.Debugf(format, args...) }
func Info(args ...interface{})                  { log.Info(args...) }
func Infof(format string, args ...interface{})  { log.Infof(format, args...) }
func Warn(args ...interface{})                  { log.Warn(args...) }
func Warnf(format string, args ...interface{})  { log.Warnf(format, args...) }
func Error(args ...interface{})                 { log.Error(args...) }
func Errorf(format string, args ...interface{}) { log.Errorf(format, args...) }
func Fatal(args ...interface{})                 { log.Fatal(args...) }
func Fatalf(format string, args ...interface{}) { log.Fatalf(format, args...) }
