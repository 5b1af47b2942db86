//go:build linux

// Package usbid names USB devices from the system's USB ID database.
//
// The database maps vendor IDs (VID) and product IDs (PID) to names and
// ships with most Linux systems. The bootloader tools use it to show which
// identity a device enumerates with:
//
//	db := usbid.New()
//	db.Load()
//	fmt.Println(db.Describe(0x16D0, 0x0753))
//
// # Database Locations
//
// [Database.Load] searches these locations in order:
//
//   - /usr/share/hwdata/usb.ids
//   - /var/lib/usbutils/usb.ids
//   - /usr/share/misc/usb.ids
//
// If no file is found, lookups return empty strings and [Database.Describe]
// falls back to the numeric identity. [Database.Parse] reads any other
// source.
//
// All methods are safe for concurrent use.
package usbid
