// Package image loads application images and splits them into the page
// transfers a bootloader host sends.
//
// Intel HEX files are parsed with [github.com/marcinbor85/gohex]. The
// resulting [Image] is checked against a target configuration: data may
// not reach into the tinyvector slots or the bootloader itself.
package image
