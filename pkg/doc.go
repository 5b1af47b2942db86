// Package pkg provides shared utilities for the softboot bootloader packages.
//
// This package contains common functionality used across the bootloader core,
// the flash and transport abstractions, and the simulator, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for configuration, image and transport failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentLoader, "application erased", "pages", 100)
//
// # Errors
//
// Common errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrImageTooLarge) {
//	    // Image overlaps the bootloader
//	}
package pkg
