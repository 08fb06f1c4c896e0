package config

const (
	defaultDataDir  = "~/.local/share/stockpix/data"
	defaultStoreDir = "~/.local/share/stockpix/images"
	defaultDBDir    = "~/.local/share/stockpix/db"
	defaultLogDir   = "~/.local/share/stockpix/logs"

	defaultFetchConcurrency    = 5
	defaultFetchTimeoutSeconds = 15
	defaultFetchChunkSize      = 20
	defaultFetchMaxAttempts    = 3
	defaultFetchExtension      = "jpg"

	defaultClassifierTimeoutSeconds = 60
	defaultClassifierWorkers        = 4

	defaultValidatorTimeoutSeconds       = 20
	defaultValidatorHealthTimeoutSeconds = 5
	defaultValidatorWorkers              = 4
	defaultValidatorFlushEvery           = 100

	defaultPollInterval       = 10
	defaultErrorRetryInterval = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			StoreDir: defaultStoreDir,
			DBDir:    defaultDBDir,
			LogDir:   defaultLogDir,
		},
		Fetch: Fetch{
			Concurrency:    defaultFetchConcurrency,
			TimeoutSeconds: defaultFetchTimeoutSeconds,
			ChunkSize:      defaultFetchChunkSize,
			MaxAttempts:    defaultFetchMaxAttempts,
			Extension:      defaultFetchExtension,
		},
		Classifier: Classifier{
			TimeoutSeconds: defaultClassifierTimeoutSeconds,
			Workers:        defaultClassifierWorkers,
		},
		Validator: Validator{
			TimeoutSeconds:       defaultValidatorTimeoutSeconds,
			HealthTimeoutSeconds: defaultValidatorHealthTimeoutSeconds,
			Workers:              defaultValidatorWorkers,
			FlushEvery:           defaultValidatorFlushEvery,
		},
		Workflow: Workflow{
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			WatchInbox:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
