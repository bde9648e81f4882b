// Package nlog - iotop logger: leveled, timestamped, written to a file (default)
// or to standard error
/*
 * Copyright (c) 2023-2026, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	ratomic "sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const logFilePerm = 0o644

type Opts struct {
	Dir      string // log directory; created when missing
	Level    string // debug, info, warn, error
	ToStderr bool
}

var (
	logger  ratomic.Pointer[zap.SugaredLogger]
	logFile *os.File
	logPath string
	mu      sync.Mutex
)

func init() {
	logger.Store(zap.NewNop().Sugar())
}

func sugar() *zap.SugaredLogger { return logger.Load() }

// Init (re)initializes the logger; until then all logging is discarded.
func Init(opts Opts) error {
	var lvl zapcore.Level
	if opts.Level == "" {
		opts.Level = "info"
	}
	if err := lvl.UnmarshalText([]byte(opts.Level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	var (
		ws   zapcore.WriteSyncer
		file *os.File
		path string
	)
	if opts.ToStderr {
		ws = zapcore.Lock(os.Stderr)
	} else {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return err
		}
		path = filepath.Join(opts.Dir, "iotop."+strconv.Itoa(os.Getpid())+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
		if err != nil {
			return err
		}
		file = f
		ws = zapcore.AddSync(f)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, zap.NewAtomicLevelAt(lvl))

	mu.Lock()
	prev := logFile
	logFile, logPath = file, path
	logger.Store(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar())
	mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return nil
}

// Close flushes and releases the log file, reverting to a no-op logger.
func Close() {
	Flush()
	mu.Lock()
	f := logFile
	logFile, logPath = nil, ""
	logger.Store(zap.NewNop().Sugar())
	mu.Unlock()
	if f != nil {
		f.Close()
	}
}
