package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ardnew/softboot/pkg"
)

const testHex = `:040000001FC0FFCF4F
:0401000001020304F1
:00000001FF
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestUploadBootErase(t *testing.T) {
	dir := t.TempDir()
	hexFile := filepath.Join(dir, "app.hex")
	flashFile := filepath.Join(dir, "flash.bin")
	if err := os.WriteFile(hexFile, []byte(testHex), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	steps := []struct {
		args []string
		want string
		err  error
	}{
		{[]string{"boot"}, "no application", nil},
		{[]string{"upload", hexFile}, "application started at 0x0040", nil},
		{[]string{"boot"}, "application started at 0x0040", nil},
		{[]string{"boot", "--entry"}, "application present", nil},
		{[]string{"dump", "--start", "0x100", "--length", "4"}, "01 02 03 04", nil},
		{[]string{"erase"}, "application erased", nil},
		{[]string{"boot"}, "no application", nil},
		{[]string{"upload", "--no-exit", hexFile}, "writing page", nil},
		{[]string{"boot"}, "application started at 0x0040", nil},
	}

	for _, s := range steps {
		args := append([]string{"--flash", flashFile}, s.args...)
		out, err := run(t, args...)
		if !errors.Is(err, s.err) {
			t.Fatalf("%v: error = %v, want %v", s.args, err, s.err)
		}
		if !strings.Contains(out, s.want) {
			t.Errorf("%v: output = %q, want it to contain %q", s.args, out, s.want)
		}
	}
}

func TestInfo(t *testing.T) {
	out, err := run(t, "--target", "attiny841", "info")
	if err != nil {
		t.Fatalf("info error = %v", err)
	}
	for _, want := range []string{"flash size:  6652 bytes", "page size:   16 bytes", "write delay: 5 ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("output = %q, want it to contain %q", out, want)
		}
	}
}

func TestTargetsAndProfile(t *testing.T) {
	out, err := run(t, "targets")
	if err != nil {
		t.Fatalf("targets error = %v", err)
	}
	if !strings.Contains(out, "attiny85") || !strings.Contains(out, "flash=6394 page=64") {
		t.Errorf("targets output = %q", out)
	}

	out, err = run(t, "--target", "attiny45", "profile")
	if err != nil {
		t.Fatalf("profile error = %v", err)
	}
	if !strings.Contains(out, "bootloader_address: 2304") {
		t.Errorf("profile output = %q", out)
	}

	profile := filepath.Join(t.TempDir(), "p.yaml")
	if err := os.WriteFile(profile, []byte(out), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := run(t, "--profile", profile, "info"); err != nil {
		t.Errorf("info with profile error = %v", err)
	}
}

func TestUnknownTarget(t *testing.T) {
	if _, err := run(t, "--target", "z80", "info"); !errors.Is(err, pkg.ErrUnknownTarget) {
		t.Errorf("info error = %v, want %v", err, pkg.ErrUnknownTarget)
	}
}

func TestServeOverBus(t *testing.T) {
	dir := t.TempDir()
	bus := filepath.Join(dir, "bus")
	hexFile := filepath.Join(dir, "app.hex")
	flashFile := filepath.Join(dir, "flash.bin")
	if err := os.WriteFile(hexFile, []byte(testHex), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var serveOut bytes.Buffer
	done := make(chan error, 1)
	go func() {
		cmd := newRootCommand()
		cmd.SetOut(&serveOut)
		cmd.SetArgs([]string{"--bus", bus, "--flash", flashFile, "serve"})
		done <- cmd.ExecuteContext(ctx)
	}()

	out, err := run(t, "--bus", bus, "info")
	if err != nil {
		t.Fatalf("info error = %v", err)
	}
	for _, want := range []string{"usb device:  16d0:0753", "flash size:  6394 bytes", "page size:   64 bytes"} {
		if !strings.Contains(out, want) {
			t.Errorf("info output = %q, want it to contain %q", out, want)
		}
	}

	out, err = run(t, "--bus", bus, "upload", hexFile)
	if err != nil {
		t.Fatalf("upload error = %v", err)
	}
	if !strings.Contains(out, "exit requested") {
		t.Errorf("upload output = %q", out)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after exit")
	}
	if !strings.Contains(serveOut.String(), "application started at 0x0040") {
		t.Errorf("serve output = %q", serveOut.String())
	}

	// The served device saved its flash.
	out, err = run(t, "--flash", flashFile, "boot")
	if err != nil || !strings.Contains(out, "application started at 0x0040") {
		t.Errorf("boot = %q, %v", out, err)
	}
}

func TestServeStopped(t *testing.T) {
	bus := filepath.Join(t.TempDir(), "bus")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--bus", bus, "serve"})
	if err := cmd.ExecuteContext(ctx); err != nil {
		t.Fatalf("serve error = %v", err)
	}
	if !strings.Contains(out.String(), "stopped") {
		t.Errorf("serve output = %q", out.String())
	}
}

func TestServeNeedsBus(t *testing.T) {
	if _, err := run(t, "serve"); !errors.Is(err, pkg.ErrInvalidConfig) {
		t.Errorf("serve error = %v, want %v", err, pkg.ErrInvalidConfig)
	}
}

func TestLogFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "boot.log")
	if _, err := run(t, "--log", logFile, "--json", "--verbose", "info"); err != nil {
		t.Fatalf("info error = %v", err)
	}
	pkg.SetLogLevel(slog.LevelWarn)
	pkg.SetLogFormat(pkg.LogFormatText)

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, want := range []string{`"msg":"bootloader started"`, `"component":"loader"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log = %q, want it to contain %q", data, want)
		}
	}
}
