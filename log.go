package main

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

// logLevel gates diagnostic output; levelFatal messages are always shown.
type logLevel int32

const (
	levelFatal logLevel = iota
	levelError
	levelInfo
)

var currentLogLevel atomic.Int32

func init() {
	currentLogLevel.Store(int32(levelError))
}

func setLogLevel(l logLevel) { currentLogLevel.Store(int32(l)) }

func parseLogLevel(s string) (logLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fatal":
		return levelFatal, nil
	case "", "error":
		return levelError, nil
	case "info":
		return levelInfo, nil
	default:
		return levelError, fmt.Errorf("%w: unknown log level %q", errConfiguration, s)
	}
}

func logAt(l logLevel, format string, args ...any) {
	if int32(l) <= currentLogLevel.Load() {
		log.Printf(format, args...)
	}
}

func logFatal(format string, args ...any) { logAt(levelFatal, format, args...) }
func logError(format string, args ...any) { logAt(levelError, format, args...) }
func logInfo(format string, args ...any)  { logAt(levelInfo, format, args...) }
