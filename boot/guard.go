package boot

// The bus resynchronization guard waits until the data line has been idle
// for about guardWindowUs: longer than a device ACK takes on the wire
// (10.5 µs) and shorter than the bus timeout (12 µs). The wait loop spends
// guardLoopCycles CPU cycles per iteration.
const (
	guardWindowUs   = 10
	guardLoopCycles = 5
)

// GuardIterations returns the wait loop count for a CPU clocked at clockHz,
// rounded to the nearest iteration.
func GuardIterations(clockHz uint32) uint32 {
	return uint32((uint64(clockHz)*guardWindowUs/guardLoopCycles + 500_000) / 1_000_000)
}

// GuardCycles returns the CPU cycles the guard busy-waits at clockHz.
func GuardCycles(clockHz uint32) uint32 {
	return GuardIterations(clockHz) * guardLoopCycles
}
