package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
)

// Loggers lists the package loggers of this module
var Loggers = []string{"lockmgr", "liveness", "table", "cmd"}

var (
	// output is shared by all package loggers
	output = log.New(os.Stderr, "", log.Ldate|log.Lmicroseconds)
	// logClient is the registered client id of this process (0 until a heartbeater was created)
	logClient atomic.Int64
)

// SetLogClient tags every following log record with the client id of this process.
// Records of several processes that share one lock table can be told apart by it.
func SetLogClient(clientID int64) {
	logClient.Store(clientID)
}

// SetLogOutput redirects all package loggers to w.
func SetLogOutput(w io.Writer) {
	output.SetOutput(w)
}

// clientLabel is "-" until SetLogClient was called
func clientLabel() string {
	id := logClient.Load()
	if id == 0 {
		return "-"
	}
	return strconv.FormatInt(id, 10)
}

// --------------------------------------------------------------------------
// Package Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// pkgLogger writes records of the form "LEVEL | package | client <id> | message"
type pkgLogger struct {
	name  string
	level atomic.Int32
}

func (l *pkgLogger) SetLevel(level logger.LogLevel) {
	l.level.Store(int32(level))
}

func (l *pkgLogger) enabled(level logger.LogLevel) bool {
	return logger.LogLevel(l.level.Load()) >= level
}

func (l *pkgLogger) Debugf(format string, args ...interface{}) {
	if l.enabled(logger.DEBUG) {
		l.write("DEBUG", format, args...)
	}
}

func (l *pkgLogger) Infof(format string, args ...interface{}) {
	if l.enabled(logger.INFO) {
		l.write("INFO", format, args...)
	}
}

func (l *pkgLogger) Warningf(format string, args ...interface{}) {
	if l.enabled(logger.WARNING) {
		l.write("WARN", format, args...)
	}
}

func (l *pkgLogger) Errorf(format string, args ...interface{}) {
	if l.enabled(logger.ERROR) {
		l.write("ERROR", format, args...)
	}
}

func (l *pkgLogger) Panicf(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.write("PANIC", "%s", message)
	panic(message)
}

func (l *pkgLogger) write(levelStr string, format string, args ...interface{}) {
	output.Printf("%-5s | %-8s | client %s | %s", levelStr, l.name, clientLabel(), fmt.Sprintf(format, args...))
}

// CreateLogger implements dragonboats logger.Factory
func CreateLogger(pkgName string) logger.ILogger {
	l := &pkgLogger{name: pkgName}
	l.SetLevel(logger.INFO)
	return l
}

// --------------------------------------------------------------------------
// Setup
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

var factoryOnce sync.Once

// InitLoggers installs the package logger factory and sets the level of all package loggers.
// The factory is installed on the first call, later calls only change the level.
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	factoryOnce.Do(func() {
		logger.SetLoggerFactory(CreateLogger)
	})

	for _, name := range Loggers {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
