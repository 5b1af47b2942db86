//go:build !linux

package main

import "fmt"

// describeUSB formats a USB identity numerically.
func describeUSB(vid, pid uint16) string {
	return fmt.Sprintf("%04x:%04x", vid, pid)
}
