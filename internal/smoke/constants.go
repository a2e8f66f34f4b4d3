package smoke

import "time"

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Defaults applied to zero Config values.
const (
	DefaultCount   = 100
	DefaultWorkers = 8
	DefaultTimeout = 10 * time.Second
)

// Runner configuration constants.
const (
	PercentageMultiplier = 100
	emailEvery           = 3 // every third guest leaves the email out
)
