package config

import "time"

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	TimingAddr         string // listen addr for the timing port
	ResultsAddr        string // listen addr for the results port
	ReadBufferSize     int    // size of the read buffer per tcp connection
	HTTPAddr           string // listen addr for the http api
	AdminToken         string // token required for api endpoints changing state
	ShutdownTimeout    string // max duration for a graceful shutdown
	WaitForServices    string // duration to wait for other services to be ready
	LogLevel           string // sets the log level (zap log level values)
	LogFormat          string // text vs json
	LogConfig          string // path to log config file
	EnableTelemetry    bool   // enable telemetry
	TelemetryEndpoint  string // endpoint for telemetry ("stdout" prints to stdout)
	EnableDataLogging  bool   // if true, raw received data is written to the data log
	EnableLiveRaceInfo bool   // if true, the live race info file is written periodically
	DataLogDir         string // directory for data log and live race info files
	NatsURL            string // if set, race updates are published to nats
	NatsSubject        string // subject for race updates
	KVBucket           string // if set, key values are stored in this jetstream kv bucket
	DelayedDisplaySecs int    // seconds a lap count change is held back
	HalfLapModeEnabled bool   // enables the half lap handling on race start
	LiveInfoInterval   string // interval for writing the live race info file
	PrintMessage       bool   // if true, the decoded message will be printed on debug level
)

const (
	DefaultDelayedDisplaySeconds = 5
	DefaultReadBufferSize        = 8192
)

// Config holds the configuration values which are used by the application
type Config struct {
	PrintMessage bool // if true, the decoded message will be printed on debug level
	LapCounter   LapCounterSettings
}

// LapCounterSettings controls the delayed display of lap counts
type LapCounterSettings struct {
	DelayedDisplaySeconds int
	HalfLapModeEnabled    bool
}

func DefaultLapCounterSettings() LapCounterSettings {
	return LapCounterSettings{
		DelayedDisplaySeconds: DefaultDelayedDisplaySeconds,
		HalfLapModeEnabled:    false,
	}
}

// DelayWindow returns the display delay as duration.
// Non-positive values fall back to the default.
func (s LapCounterSettings) DelayWindow() time.Duration {
	if s.DelayedDisplaySeconds <= 0 {
		return DefaultDelayedDisplaySeconds * time.Second
	}
	return time.Duration(s.DelayedDisplaySeconds) * time.Second
}

// ParseDurationOr parses a duration and returns def if the value is not valid.
func ParseDurationOr(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
