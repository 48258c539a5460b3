package batchclient

import "time"

// Defaults applied when Config leaves a field empty.
const (
	DefaultWait         = 30 * time.Minute
	DefaultPollInterval = 2 * time.Second
	DefaultTimeout      = 60 * time.Second
)

// scoreTolerance absorbs float noise when comparing totals.
const scoreTolerance = 1e-6

// File permission constants.
const (
	logFilePermission   = 0600
	outputPermission    = 0640
	directoryPermission = 0750
)
