package boot

import "fmt"

// Command is a request code received from the host, or an internal
// command scheduled by the bootloader itself.
type Command uint8

// Command codes. Codes below CommandInternal arrive in control requests.
const (
	CommandNop              Command = 0 // Nothing scheduled
	CommandQueryInfo        Command = 0 // Device information request
	CommandTransferPage     Command = 1 // Page data follows
	CommandEraseApplication Command = 2 // Erase application space
	CommandExit             Command = 4 // Start the application
	CommandInternal         Command = 64
	CommandWritePage        Command = 64 // Page buffer is full
)

// String returns a human-readable command name. Code 0 reads as "nop"
// because the scheduler only ever holds it as the empty slot.
func (c Command) String() string {
	switch c {
	case CommandNop:
		return "nop"
	case CommandTransferPage:
		return "transfer-page"
	case CommandEraseApplication:
		return "erase-application"
	case CommandExit:
		return "exit"
	case CommandWritePage:
		return "write-page"
	default:
		return fmt.Sprintf("command(%d)", uint8(c))
	}
}

// IsInternal reports whether c is reserved for commands the bootloader
// generates itself.
func (c Command) IsInternal() bool {
	return c >= CommandInternal
}
