package config

const (
	defaultVideoDir            = "~/videos"
	defaultOutputDir           = "~/.local/share/framerand/clips"
	defaultStateDir            = "~/.local/share/framerand/state"
	defaultLogDir              = "~/.local/share/framerand/logs"
	defaultAPIBind             = "127.0.0.1:8750"
	defaultFFprobeBinary       = "ffprobe"
	defaultFFprobeLoadLimit    = 4
	defaultFFmpegBinary        = "ffmpeg"
	defaultIdentifyBinary      = "identify"
	defaultImageExtension      = "webp"
	defaultAudioExtension      = "ogg"
	defaultMinFrameStddev      = 2500.0
	defaultGenMaxAttempts      = 5
	defaultAttemptTimeout      = 120
	defaultQueueTotalLength    = 9
	defaultPerKindMinimum      = 1
	defaultMaxPending          = 3
	defaultMaxRetries          = 2
	defaultExhaustionTopUp     = 2
	defaultMaintenanceInterval = 10
	defaultAnswerExpiry        = 4 * 60 * 60
	defaultResourceExpiry      = 5 * 60
	defaultRunExpiry           = 24 * 60 * 60
	defaultRunRetention        = 10
	defaultCleanupInterval     = 30 * 60
	defaultUUIDNamespace       = "b219dcdb-c910-417c-8403-01c6b40c5fb4"
	defaultSoftwareVersion     = "0.1.0"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			VideoDir:  defaultVideoDir,
			OutputDir: defaultOutputDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Library: Library{
			VideoExtensions:      []string{"mkv", "mp4", "avi"},
			ScanRecursive:        true,
			AllowMissingEpisodes: true,
			FFprobeBinary:        defaultFFprobeBinary,
			FFprobeLoadLimit:     defaultFFprobeLoadLimit,
			FFprobeCache:         true,
			MinFreeSpaceMiB:      256,
		},
		Producer: Producer{
			FFmpegBinary:          defaultFFmpegBinary,
			IdentifyBinary:        defaultIdentifyBinary,
			ImageExtension:        defaultImageExtension,
			AudioExtension:        defaultAudioExtension,
			MinFrameStddev:        defaultMinFrameStddev,
			GenMaxAttempts:        defaultGenMaxAttempts,
			AttemptTimeoutSeconds: defaultAttemptTimeout,
		},
		Queue: Queue{
			TotalLength:                defaultQueueTotalLength,
			PerKindMinimum:             defaultPerKindMinimum,
			MaxPending:                 defaultMaxPending,
			MaxRetries:                 defaultMaxRetries,
			ExhaustionTopUp:            defaultExhaustionTopUp,
			MaintenanceIntervalSeconds: defaultMaintenanceInterval,
		},
		Expiry: Expiry{
			AnswerExpirySeconds:    defaultAnswerExpiry,
			ResourceExpirySeconds:  defaultResourceExpiry,
			RunExpirySeconds:       defaultRunExpiry,
			RunRetentionThreshold:  defaultRunRetention,
			CleanupIntervalSeconds: defaultCleanupInterval,
		},
		Verification: Verification{
			UUIDNamespace:   defaultUUIDNamespace,
			SoftwareVersion: defaultSoftwareVersion,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
