// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-1), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := tt.level.String()
			if got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo}, // Unknown defaults to Info
		{Level(-1), slog.LevelInfo}, // Unknown defaults to Info
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			got := tt.level.toSlogLevel()
			if got != tt.want {
				t.Errorf("Level.toSlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_Constants(t *testing.T) {
	// Verify ordering: Debug < Info < Warn < Error
	if LevelDebug >= LevelInfo {
		t.Error("LevelDebug should be < LevelInfo")
	}
	if LevelInfo >= LevelWarn {
		t.Error("LevelInfo should be < LevelWarn")
	}
	if LevelWarn >= LevelError {
		t.Error("LevelWarn should be < LevelError")
	}
}

func TestNew_DefaultConfig(t *testing.T) {
	logger := New(Config{})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if logger.slog == nil {
		t.Error("logger.slog is nil")
	}
	defer logger.Close()
}

func TestNew_AllLevels(t *testing.T) {
	levels := []Level{LevelDebug, LevelInfo, LevelWarn, LevelError}
	for _, level := range levels {
		t.Run(level.String(), func(t *testing.T) {
			logger := New(Config{Level: level, Quiet: true})
			if logger == nil {
				t.Fatal("New() returned nil")
			}
			defer logger.Close()
		})
	}
}

func TestNew_WithService(t *testing.T) {
	logger := New(Config{
		Service: "test-service",
		Quiet:   true,
	})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if logger.config.Service != "test-service" {
		t.Errorf("Service = %v, want test-service", logger.config.Service)
	}
	defer logger.Close()
}

func TestNew_WithJSON(t *testing.T) {
	logger := New(Config{JSON: true, Quiet: true})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	defer logger.Close()
}

func TestNew_QuietMode(t *testing.T) {
	logger := New(Config{Quiet: true})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	// Should still have a handler (fallback to stderr)
	if logger.slog == nil {
		t.Error("logger.slog is nil in quiet mode")
	}
	defer logger.Close()
}

func TestNew_WithLogDir(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "test",
		Quiet:   true,
	})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	defer logger.Close()

	// Should have created a log file
	if logger.file == nil {
		t.Error("logger.file is nil when LogDir specified")
	}

	// Verify file was created
	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	if len(files) == 0 {
		t.Error("No log file created in LogDir")
	}
}

func TestNew_WithLogDir_NoService(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir: tmpDir,
		Quiet:  true,
	})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	defer logger.Close()

	// Should use "molstack" as default service name
	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	found := false
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "molstack_") {
			found = true
			break
		}
	}
	if !found {
		t.Error("Expected log file with 'molstack_' prefix")
	}
}

func TestNew_WithLogDir_InvalidPath(t *testing.T) {
	logger := New(Config{
		LogDir: "/proc/nonexistent/deep/path/that/should/fail",
		Quiet:  true,
	})
	if logger == nil {
		t.Fatal("New() returned nil even with invalid LogDir")
	}
	defer logger.Close()
	// Should still work, just without file logging
	if logger.file != nil {
		t.Error("logger.file should be nil for invalid path")
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	if logger == nil {
		t.Fatal("Default() returned nil")
	}
	if logger.config.Level != LevelInfo {
		t.Errorf("Default level = %v, want LevelInfo", logger.config.Level)
	}
	if logger.config.Service != "molstack" {
		t.Errorf("Default service = %v, want molstack", logger.config.Service)
	}
	defer logger.Close()
}

func TestLogger_With_SharesResources(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "test",
		Quiet:   true,
	})
	defer logger.Close()

	childLogger := logger.With("child", true)

	// Child should share the file handle
	if childLogger.file != logger.file {
		t.Error("Child logger should share file handle")
	}
}

func TestLogger_Slog(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()

	slogger := logger.Slog()
	if slogger == nil {
		t.Error("Slog() returned nil")
	}
}

func TestLogger_Close_NoResources(t *testing.T) {
	logger := New(Config{Quiet: true})
	err := logger.Close()
	if err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
}

func TestLogger_Close_WithFile(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "test",
		Quiet:   true,
	})

	// Log something to ensure file is written
	logger.Info("test")

	err := logger.Close()
	if err != nil {
		t.Errorf("Close() returned error: %v", err)
	}

	// File should be closed - trying to write should fail
	if logger.file != nil {
		_, writeErr := logger.file.WriteString("test")
		if writeErr == nil {
			t.Error("Expected write error after Close()")
		}
	}
}

func TestLogger_ConcurrentUse(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  tmpDir,
		Service: "concurrent",
		Quiet:   true,
	})
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Info("concurrent log", "n", n)
		}(i)
	}
	wg.Wait()
}

func TestLogger_FileContent(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  tmpDir,
		Service: "file-test",
		Quiet:   true,
	})

	logger.Info("test message", "key", "value")
	logger.Close()

	files, _ := os.ReadDir(tmpDir)
	if len(files) == 0 {
		t.Fatal("No log file created")
	}

	content, err := os.ReadFile(filepath.Join(tmpDir, files[0].Name()))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	// Should be JSON format with the service attribute stamped in
	if !strings.Contains(string(content), "test message") {
		t.Error("Log file should contain 'test message'")
	}
	if !strings.Contains(string(content), "\"key\":\"value\"") {
		t.Error("Log file should contain key-value pair in JSON format")
	}
	if !strings.Contains(string(content), "\"service\":\"file-test\"") {
		t.Error("Log file should contain the service attribute")
	}
}

func TestLogger_FileLevelFiltering(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		Level:   LevelWarn,
		LogDir:  tmpDir,
		Service: "filter-test",
		Quiet:   true,
	})

	logger.Debug("debug line")
	logger.Info("info line")
	logger.Warn("warn line")
	logger.Error("error line")
	logger.Close()

	files, _ := os.ReadDir(tmpDir)
	if len(files) == 0 {
		t.Fatal("No log file created")
	}
	content, err := os.ReadFile(filepath.Join(tmpDir, files[0].Name()))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	if strings.Contains(string(content), "info line") {
		t.Error("Info should be filtered out at LevelWarn")
	}
	if !strings.Contains(string(content), "warn line") {
		t.Error("Warn should be logged at LevelWarn")
	}
	if !strings.Contains(string(content), "error line") {
		t.Error("Error should be logged at LevelWarn")
	}
}

func TestMultiHandler_Enabled(t *testing.T) {
	debugOpts := &slog.HandlerOptions{Level: slog.LevelDebug}
	warnOpts := &slog.HandlerOptions{Level: slog.LevelWarn}

	var buf bytes.Buffer
	h1 := slog.NewTextHandler(&buf, debugOpts)
	h2 := slog.NewTextHandler(&buf, warnOpts)

	mh := &multiHandler{handlers: []slog.Handler{h1, h2}}

	// Debug level: should be enabled (h1 accepts it)
	if !mh.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Debug should be enabled")
	}
	if !mh.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Info should be enabled")
	}
	if !mh.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("Warn should be enabled")
	}
}

func TestMultiHandler_Enabled_NoneEnabled(t *testing.T) {
	opts := &slog.HandlerOptions{Level: slog.LevelError}
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, opts)

	mh := &multiHandler{handlers: []slog.Handler{h}}

	if mh.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Debug should not be enabled")
	}
}

func TestMultiHandler_Handle(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	h1 := slog.NewTextHandler(&buf1, opts)
	h2 := slog.NewTextHandler(&buf2, opts)

	mh := &multiHandler{handlers: []slog.Handler{h1, h2}}

	record := slog.Record{}
	record.Level = slog.LevelInfo
	record.Message = "test message"

	err := mh.Handle(context.Background(), record)
	if err != nil {
		t.Errorf("Handle() returned error: %v", err)
	}

	// Both buffers should have content
	if buf1.Len() == 0 {
		t.Error("buf1 should have content")
	}
	if buf2.Len() == 0 {
		t.Error("buf2 should have content")
	}
}

func TestMultiHandler_Handle_LevelFiltering(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h1 := slog.NewTextHandler(&buf1, &slog.HandlerOptions{Level: slog.LevelDebug})
	h2 := slog.NewTextHandler(&buf2, &slog.HandlerOptions{Level: slog.LevelError})

	mh := &multiHandler{handlers: []slog.Handler{h1, h2}}

	record := slog.Record{}
	record.Level = slog.LevelInfo

	_ = mh.Handle(context.Background(), record)

	// buf1 should have content (accepts Info)
	if buf1.Len() == 0 {
		t.Error("buf1 should have content")
	}
	// buf2 should be empty (only accepts Error)
	if buf2.Len() != 0 {
		t.Error("buf2 should be empty")
	}
}

func TestMultiHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, nil)
	mh := &multiHandler{handlers: []slog.Handler{h}}

	attrs := []slog.Attr{slog.String("key", "value")}
	newHandler := mh.WithAttrs(attrs)

	if newHandler == nil {
		t.Fatal("WithAttrs() returned nil")
	}
	if _, ok := newHandler.(*multiHandler); !ok {
		t.Error("WithAttrs() should return *multiHandler")
	}
}

func TestMultiHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, nil)
	mh := &multiHandler{handlers: []slog.Handler{h}}

	newHandler := mh.WithGroup("group")

	if newHandler == nil {
		t.Fatal("WithGroup() returned nil")
	}
	if _, ok := newHandler.(*multiHandler); !ok {
		t.Error("WithGroup() should return *multiHandler")
	}
}

func TestMultiHandler_Handle_Error(t *testing.T) {
	h := &errorHandler{err: errors.New("handler error")}
	mh := &multiHandler{handlers: []slog.Handler{h}}

	record := slog.Record{}
	record.Level = slog.LevelInfo

	err := mh.Handle(context.Background(), record)
	if err == nil {
		t.Error("Expected error from Handle()")
	}
}

// errorHandler is a handler that returns an error
type errorHandler struct {
	err error
}

func (h *errorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *errorHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.err
}

func (h *errorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *errorHandler) WithGroup(name string) slog.Handler {
	return h
}

func TestMultiHandler_Empty(t *testing.T) {
	mh := &multiHandler{handlers: []slog.Handler{}}

	if mh.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Empty multiHandler should not be enabled")
	}

	record := slog.Record{}
	err := mh.Handle(context.Background(), record)
	if err != nil {
		t.Errorf("Handle() returned error: %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/logs", filepath.Join(home, "logs")},
		{"~/.molstack/logs", filepath.Join(home, ".molstack/logs")},
		{"~", home},
		{"/var/log", "/var/log"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := expandPath(tt.input)
			if got != tt.want {
				t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
