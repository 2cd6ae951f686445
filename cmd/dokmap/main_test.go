package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dokmap/dokmap/internal/config"
)

func TestPrintVersion(t *testing.T) {
	originalStdout := os.Stdout

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Failed to create pipe: %v", err)
	}
	os.Stdout = w

	oldVersion := version
	oldBuildTime := buildTime
	oldGitCommit := gitCommit

	version = "1.2.3"
	buildTime = "2024-06-01_10:30:00"
	gitCommit = "abc123"

	defer func() {
		version = oldVersion
		buildTime = oldBuildTime
		gitCommit = oldGitCommit
		os.Stdout = originalStdout
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		printVersion()
		w.Close()
	}()

	var buf bytes.Buffer
	io.Copy(&buf, r)
	<-done

	output := buf.String()
	for _, expected := range []string{
		"dokmap",
		"Version: 1.2.3",
		"Build Time: 2024-06-01_10:30:00",
		"Git Commit: abc123",
		"Built with:",
	} {
		if !strings.Contains(output, expected) {
			t.Errorf("printVersion() output missing expected string: %s\nActual output:\n%s", expected, output)
		}
	}
}

func TestVersionFlagDetection(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		hasVersion bool
	}{
		{
			name:       "no version flag",
			args:       []string{"dokmap"},
			hasVersion: false,
		},
		{
			name:       "--version flag",
			args:       []string{"dokmap", "--version"},
			hasVersion: true,
		},
		{
			name:       "-v flag",
			args:       []string{"dokmap", "-v"},
			hasVersion: true,
		},
		{
			name:       "version flag with other args",
			args:       []string{"dokmap", "--mode=batch", "-version"},
			hasVersion: true,
		},
		{
			name:       "similar but not version flag",
			args:       []string{"dokmap", "-verbose", "-versions"},
			hasVersion: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found := false
			for _, arg := range tt.args[1:] {
				if arg == "-version" || arg == "--version" || arg == "-v" {
					found = true
					break
				}
			}

			if found != tt.hasVersion {
				t.Errorf("Version flag detection for %v: got %v, want %v", tt.args, found, tt.hasVersion)
			}
		})
	}
}

func TestBuildServices(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DocumentsDir = dir
	cfg.DataDir = filepath.Join(dir, ".dokmap")
	cfg.LogLevel = "error"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	svc, err := buildServices(cfg)
	if err != nil {
		t.Fatalf("buildServices() unexpected error: %v", err)
	}

	if svc.pipeline == nil {
		t.Error("buildServices() should wire the pipeline")
	}
	if svc.docs == nil || svc.tpls == nil || svc.exporter == nil {
		t.Error("buildServices() should wire the stores and exporter")
	}
}

func TestRunBatchModeEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DocumentsDir = dir
	cfg.DataDir = filepath.Join(dir, ".dokmap")
	cfg.LogLevel = "error"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	svc, err := buildServices(cfg)
	if err != nil {
		t.Fatalf("buildServices() unexpected error: %v", err)
	}

	if err := runBatchMode(context.Background(), cfg, svc); err == nil {
		t.Error("runBatchMode() should report an empty document directory")
	}
}
