package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

const maxLogFiles = 8

// logBackend writes every subsystem logger to stdout and, when a log file
// is configured, to a rotated file.
type logBackend struct {
	stdOut     io.Writer
	logRotator *rotator.Rotator
	bknd       *slog.Backend

	defaultLevel slog.Level
	levels       map[string]slog.Level
}

// newLogBackend parses levels of the form "info" or
// "debug,PLAY=trace,LYRA=warn".
func newLogBackend(logFile, levels string, stdOut io.Writer) (*logBackend, error) {
	b := &logBackend{
		stdOut:       stdOut,
		defaultLevel: slog.LevelInfo,
		levels:       make(map[string]slog.Level),
	}
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		r, err := rotator.New(logFile, 1024, false, maxLogFiles)
		if err != nil {
			return nil, fmt.Errorf("failed to create file rotator: %w", err)
		}
		b.logRotator = r
	}
	b.bknd = slog.NewBackend(b)

	for _, v := range strings.Split(levels, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		subsys, lvl, found := strings.Cut(v, "=")
		if !found {
			lvl, subsys = subsys, ""
		}
		level, ok := slog.LevelFromString(lvl)
		if !ok {
			return nil, fmt.Errorf("unknown log level %q", lvl)
		}
		if subsys == "" {
			b.defaultLevel = level
		} else {
			b.levels[strings.ToUpper(subsys)] = level
		}
	}
	return b, nil
}

func (b *logBackend) Write(p []byte) (int, error) {
	if b.stdOut != nil {
		b.stdOut.Write(p)
	}
	if b.logRotator != nil {
		b.logRotator.Write(p)
	}
	return len(p), nil
}

func (b *logBackend) Close() error {
	if b.logRotator != nil {
		return b.logRotator.Close()
	}
	return nil
}

func (b *logBackend) logger(subsys string) slog.Logger {
	l := b.bknd.Logger(subsys)
	if level, ok := b.levels[subsys]; ok {
		l.SetLevel(level)
	} else {
		l.SetLevel(b.defaultLevel)
	}
	return l
}
