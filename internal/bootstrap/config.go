package bootstrap

import (
	"os"
	"strconv"
	"time"
)

// Omi-compatible audio service identifiers. Override via env for other
// wearables that speak the same framing.
const (
	defaultServiceUUID        = "19b10000-e8f2-537e-4f6c-d104768a1214"
	defaultCharacteristicUUID = "19b10001-e8f2-537e-4f6c-d104768a1214"
)

type Config struct {
	HealthAddr string
	LogLevel   string

	SinkTransport   string // "http" or "ws"
	SinkURL         string
	SinkStreamPath  string
	SinkTimeout     time.Duration
	BypassFiltering bool

	PeripheralEnabled  bool
	DeviceName         string
	DeviceAddress      string
	ServiceUUID        string
	CharacteristicUUID string
	ConnectTimeout     time.Duration
	RetryAttempts      int
	RetryDelay         time.Duration

	MicEnabled     bool
	MicSampleRate  int
	MicFrameMillis int

	CacheDir          string
	QueueCapacity     int
	FailureThreshold  int
	RetryInterval     time.Duration
	OfflineMultiplier int
	ScanBatch         int
	StopTimeout       time.Duration

	FrameBuffer int
}

func LoadConfig() *Config {
	return &Config{
		HealthAddr: getEnv("HEALTH_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		SinkTransport:   getEnv("SINK_TRANSPORT", "http"),
		SinkURL:         getEnv("SINK_URL", "http://localhost:8000"),
		SinkStreamPath:  getEnv("SINK_STREAM_PATH", "/stream/audio"),
		SinkTimeout:     getEnvDuration("SINK_TIMEOUT", 10*time.Second),
		BypassFiltering: getEnv("BYPASS_FILTERING", "false") == "true",

		PeripheralEnabled:  getEnv("PERIPHERAL_ENABLED", "true") == "true",
		DeviceName:         getEnv("DEVICE_NAME", "Omi"),
		DeviceAddress:      getEnv("DEVICE_ADDRESS", ""),
		ServiceUUID:        getEnv("SERVICE_UUID", defaultServiceUUID),
		CharacteristicUUID: getEnv("CHARACTERISTIC_UUID", defaultCharacteristicUUID),
		ConnectTimeout:     getEnvDuration("CONNECT_TIMEOUT", 10*time.Second),
		RetryAttempts:      getEnvInt("RETRY_ATTEMPTS", 3),
		RetryDelay:         getEnvDuration("RETRY_DELAY", 2*time.Second),

		MicEnabled:     getEnv("MIC_ENABLED", "true") == "true",
		MicSampleRate:  getEnvInt("MIC_SAMPLE_RATE", 16000),
		MicFrameMillis: getEnvInt("MIC_FRAME_MILLIS", 30),

		CacheDir:          getEnv("CACHE_DIR", "./audio_cache"),
		QueueCapacity:     getEnvInt("QUEUE_CAPACITY", 1000),
		FailureThreshold:  getEnvInt("FAILURE_THRESHOLD", 3),
		RetryInterval:     getEnvDuration("RETRY_INTERVAL", 5*time.Second),
		OfflineMultiplier: getEnvInt("OFFLINE_MULTIPLIER", 2),
		ScanBatch:         getEnvInt("SCAN_BATCH", 5),
		StopTimeout:       getEnvDuration("STOP_TIMEOUT", 2*time.Second),

		FrameBuffer: getEnvInt("FRAME_BUFFER", 128),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
