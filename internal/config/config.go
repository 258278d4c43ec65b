package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

type Config struct {
	Database DatabaseConfig
	SIS      SISConfig
	Vision   VisionConfig
	Stream   StreamConfig
	Web      WebConfig
	Presets  PresetsConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// SISConfig points at the legacy student information system. Only the
// roster import reads it.
type SISConfig struct {
	DatabaseURL string // MariaDB DSN (e.g., sis:sis@tcp(mariadb:3306)/sis)
}

type VisionConfig struct {
	URL string // defaults to http://localhost:5005
}

type StreamConfig struct {
	FFmpegBinary string // defaults to ffmpeg, resolved against PATH
	ViewerGrace  int    // seconds to keep decoding after the last viewer leaves (default 30)
}

type WebConfig struct {
	ListenAddr    string // defaults to :8080
	SessionSecret string // HMAC key for session cookies
	CORSOrigins   string // comma-separated allowed browser origins
}

// PresetsConfig maps resolution labels to decoder output parameters.
type PresetsConfig struct {
	Resolutions map[string]ResolutionPreset `yaml:"resolutions"`
}

type ResolutionPreset struct {
	Width   int `yaml:"width"`
	Height  int `yaml:"height"`
	FPS     int `yaml:"fps"`
	Quality int `yaml:"quality"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var presets PresetsConfig
	if err := yaml.Unmarshal(presetsYAML, &presets); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded presets.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		SIS: SISConfig{
			DatabaseURL: os.Getenv("SIS_DATABASE_URL"),
		},
		Vision: VisionConfig{
			URL: os.Getenv("VISION_URL"),
		},
		Stream: StreamConfig{
			FFmpegBinary: envString("FFMPEG_BINARY", "ffmpeg"),
			ViewerGrace:  envInt("STREAM_VIEWER_GRACE", 30),
		},
		Web: WebConfig{
			ListenAddr:    envString("LISTEN_ADDR", ":8080"),
			SessionSecret: os.Getenv("SESSION_SECRET"),
			CORSOrigins:   os.Getenv("CORS_ORIGINS"),
		},
		Presets: presets,
	}
}

// Resolution returns the decoder preset for a resolution label, falling
// back to 720p for unknown labels.
func (c *Config) Resolution(label string) ResolutionPreset {
	if p, ok := c.Presets.Resolutions[label]; ok {
		return p
	}
	return c.Presets.Resolutions["720p"]
}
