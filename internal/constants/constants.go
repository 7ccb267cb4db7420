package constants

import "time"

const (
	// Hard ceiling on the composite "fetch my groups" operation.
	GroupsFetchTimeout = 30 * time.Second

	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
)

const (
	RetryMaxAttempts = 3
	RetryBaseDelay   = 1 * time.Second
	RetryMaxDelay    = 10 * time.Second
	RetryMaxJitter   = 1 * time.Second
)

const (
	LiveRefreshInterval = 2 * time.Minute
	MemberRefreshTTL    = 5 * time.Minute
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultPageSize = 20
)
