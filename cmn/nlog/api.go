// Package nlog - iotop logger: leveled, timestamped, written to a file (default)
// or to standard error
/*
 * Copyright (c) 2023-2026, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

func Infoln(args ...any)                  { sugar().Infoln(args...) }
func Infof(format string, args ...any)    { sugar().Infof(format, args...) }
func Warningln(args ...any)               { sugar().Warnln(args...) }
func Warningf(format string, args ...any) { sugar().Warnf(format, args...) }
func Errorln(args ...any)                 { sugar().Errorln(args...) }
func Errorf(format string, args ...any)   { sugar().Errorf(format, args...) }

// Debugf is a no-op unless the configured level is "debug".
func Debugf(format string, args ...any) { sugar().Debugf(format, args...) }

func Flush() { _ = sugar().Sync() }

// LogName returns the current log file path, or "" when logging to stderr (or not at all).
func LogName() string {
	mu.Lock()
	defer mu.Unlock()
	return logPath
}
