package config

const (
	defaultDataDir                 = "~/.local/share/shipflow"
	defaultAPIBind                 = "127.0.0.1:7488"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultEngineTickInterval      = 5
	defaultEngineBatchSize         = 100
	defaultEngineStalenessSeconds  = 60
	defaultEngineLockTTL           = 30
	defaultHoldFallbackMinutes     = 10
	defaultRecentTransitions       = 50
	defaultEngineErrorRetry        = 10
	defaultLeaseTimeout            = 120
	defaultReclaimInterval         = 30
	defaultServiceRequestTimeout   = 15
	defaultExternalWriteRate       = 2.0
	defaultExternalWriteBurst      = 4
	defaultTelemetryServiceName    = "shipflow"
	defaultCatalogPath             = "~/.config/shipflow/catalog.yaml"
	defaultLockDirName             = "locks"
	defaultQueueWorkers            = 4
	defaultQueueBatchSize          = 16
	defaultQueuePollIntervalMS     = 500
	defaultQueueMaxAttempts        = 8
	defaultQueueBaseDelayMS        = 1000
	defaultQueueMaxDelayMS         = 300000
	defaultQueueBackoffFactor      = 2.0
	defaultQueueJitter             = 0.2
	defaultQueueHandlerTimeout     = 30
	defaultHydrationMaxAttempts    = 12
	defaultHydrationBaseDelayMS    = 2000
	defaultExternalWriteWorkers    = 2
	defaultExternalWriteMaxAttempt = 10
)

// Lock backend identifiers accepted by locks.backend.
const (
	LockBackendSQLite = "sqlite"
	LockBackendFile   = "file"
)

func defaultQueueSettings() QueueSettings {
	return QueueSettings{
		Workers:        defaultQueueWorkers,
		BatchSize:      defaultQueueBatchSize,
		PollIntervalMS: defaultQueuePollIntervalMS,
		MaxAttempts:    defaultQueueMaxAttempts,
		BaseDelayMS:    defaultQueueBaseDelayMS,
		MaxDelayMS:     defaultQueueMaxDelayMS,
		BackoffFactor:  defaultQueueBackoffFactor,
		Jitter:         defaultQueueJitter,
		HandlerTimeout: defaultQueueHandlerTimeout,
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	hydration := defaultQueueSettings()
	hydration.MaxAttempts = defaultHydrationMaxAttempts
	hydration.BaseDelayMS = defaultHydrationBaseDelayMS

	external := defaultQueueSettings()
	external.Workers = defaultExternalWriteWorkers
	external.MaxAttempts = defaultExternalWriteMaxAttempt

	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			APIBind: defaultAPIBind,
		},
		Engine: Engine{
			TickInterval:        defaultEngineTickInterval,
			BatchSize:           defaultEngineBatchSize,
			StalenessSeconds:    defaultEngineStalenessSeconds,
			LockTTL:             defaultEngineLockTTL,
			HoldFallbackMinutes: defaultHoldFallbackMinutes,
			RecentTransitions:   defaultRecentTransitions,
			ErrorRetryInterval:  defaultEngineErrorRetry,
		},
		Locks: Locks{
			Backend: LockBackendSQLite,
		},
		Queue: Queue{
			LeaseTimeout:    defaultLeaseTimeout,
			ReclaimInterval: defaultReclaimInterval,
		},
		Queues: Queues{
			Events:        defaultQueueSettings(),
			Hydration:     hydration,
			ExternalWrite: external,
		},
		ExternalWrite: ExternalWrite{
			RatePerSecond: defaultExternalWriteRate,
			Burst:         defaultExternalWriteBurst,
		},
		Services: Services{
			RequestTimeout: defaultServiceRequestTimeout,
		},
		Catalog: Catalog{
			Path: defaultCatalogPath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Telemetry: Telemetry{
			ServiceName: defaultTelemetryServiceName,
		},
	}
}
