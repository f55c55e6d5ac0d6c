package config

const (
	defaultConfigPath         = "~/.config/reel/config.toml"
	defaultSourceBase         = "/media/raw"
	defaultSeriesSubpath      = "Serien"
	defaultMovieSubpath       = "Filme"
	defaultSeriesDest         = "/media/Serien"
	defaultMovieDest          = "/media/Filme"
	defaultLayout             = "auto"
	defaultSourceType         = "dvd"
	defaultStateDir           = "~/.local/share/reel"
	defaultBusTransport       = "mqtt"
	defaultBusHost            = "localhost"
	defaultMQTTPort           = 1883
	defaultRedisPort          = 6379
	defaultInboundTopic       = "media/rip/done"
	defaultStartTopic         = "media/transcode/start"
	defaultDoneTopic          = "media/transcode/done"
	defaultErrorTopic         = "media/transcode/error"
	defaultPayloadVersion     = 1
	defaultPublishTimeout     = 5
	defaultConnectRetry       = 5
	defaultLockPath           = "/var/lock/vaapi.lock"
	defaultRenderDevice       = "/dev/dri/renderD128"
	defaultMaxRetries         = 2
	defaultRetryBackoff       = 5
	defaultRetryBackoffMax    = 30
	defaultLockPollInterval   = 250
	defaultFFmpegBinary       = "ffmpeg"
	defaultVideoCodec         = "hevc_vaapi"
	defaultQP                 = 22
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120
	defaultErrorRetryInterval = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

var defaultMediaExtensions = []string{".mkv"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SourceBase:        defaultSourceBase,
			SeriesSubpath:     defaultSeriesSubpath,
			MovieSubpath:      defaultMovieSubpath,
			SeriesDest:        defaultSeriesDest,
			MovieDest:         defaultMovieDest,
			Layout:            defaultLayout,
			DefaultSourceType: defaultSourceType,
			StateDir:          defaultStateDir,
			MediaExtensions:   append([]string(nil), defaultMediaExtensions...),
		},
		Bus: Bus{
			Transport:      defaultBusTransport,
			Host:           defaultBusHost,
			InboundTopic:   defaultInboundTopic,
			StartTopic:     defaultStartTopic,
			DoneTopic:      defaultDoneTopic,
			ErrorTopic:     defaultErrorTopic,
			PayloadVersion: defaultPayloadVersion,
			PublishTimeout: defaultPublishTimeout,
			ConnectRetry:   defaultConnectRetry,
		},
		Hardware: Hardware{
			LockPath:         defaultLockPath,
			Device:           defaultRenderDevice,
			MaxRetries:       defaultMaxRetries,
			RetryBackoff:     defaultRetryBackoff,
			RetryBackoffMax:  defaultRetryBackoffMax,
			LockPollInterval: defaultLockPollInterval,
		},
		Encoder: Encoder{
			Binary:     defaultFFmpegBinary,
			VideoCodec: defaultVideoCodec,
			QP:         defaultQP,
		},
		Queue: Queue{
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
