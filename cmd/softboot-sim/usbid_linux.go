//go:build linux

package main

import (
	"sync"

	"github.com/ardnew/softboot/pkg"
	"github.com/ardnew/softboot/pkg/linux/usbid"
)

var usbNames = sync.OnceValue(func() *usbid.Database {
	db := usbid.New()
	if !db.Load() {
		pkg.LogDebug(component, "no USB ID database found")
	}
	return db
})

// describeUSB names a USB identity from the system's USB ID database.
func describeUSB(vid, pid uint16) string {
	return usbNames().Describe(vid, pid)
}
