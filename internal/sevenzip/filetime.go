package sevenzip

import "time"

// FILETIME counts 100ns ticks since 1601-01-01 UTC.
const (
	filetimeUnixOffset = 116444736000000000
	ticksPerSecond     = 10000000
)

func filetimeToTime(ft uint64) time.Time {
	ticks := int64(ft) - filetimeUnixOffset
	return time.Unix(ticks/ticksPerSecond, (ticks%ticksPerSecond)*100).UTC()
}
