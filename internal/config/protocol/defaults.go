package protocol

import "time"

const (
	maxTreeDepth = 32

	defaultObjectTreeDepth   = 16
	defaultCallbackTreeDepth = 16
	defaultRootHistory       = 64

	defaultScanBatch = 2

	defaultEpochLength = 10 * time.Second

	defaultCircuitCacheSize = 32

	defaultPublishRetries   = 3
	defaultPublishRetryBase = 50 * time.Millisecond
)
