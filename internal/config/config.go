// Package config provides the configuration schema and loader for the
// beepwatch call gateway.
package config

// LogLevel controls log verbosity for the beepwatch server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// ClassifierName selects the clip classification backend.
type ClassifierName string

const (
	// ClassifierGoertzel uses the built-in Goertzel tone detector.
	ClassifierGoertzel ClassifierName = "goertzel"

	// ClassifierHTTP posts clips to an external scoring service.
	ClassifierHTTP ClassifierName = "http"
)

// IsValid reports whether c is a recognised classifier name.
func (c ClassifierName) IsValid() bool {
	return c == ClassifierGoertzel || c == ClassifierHTTP
}

// Config is the root configuration structure for beepwatch.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Telephony  TelephonyConfig  `yaml:"telephony"`
	Audio      AudioConfig      `yaml:"audio"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Audit      AuditConfig      `yaml:"audit"`
}

// ServerConfig holds network and logging settings for the server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// PublicHost is the externally reachable host used when building
	// webhook and websocket URLs in call-control documents (e.g.,
	// "calls.example.com"). When empty, the request's Host header is used.
	PublicHost string `yaml:"public_host"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// TelephonyConfig holds the Vonage application credentials and call texts.
type TelephonyConfig struct {
	// LocalNumber is the application's own long virtual number. Used as the
	// originating address of outbound legs and to recognise completion
	// webhooks addressed to us.
	LocalNumber string `yaml:"local_number"`

	// ApplicationID is the Vonage application identifier.
	ApplicationID string `yaml:"application_id"`

	// PrivateKeyFile is the path to the application's RSA private key.
	PrivateKeyFile string `yaml:"private_key_file"`

	// APIBaseURL overrides the Voice API base URL. Empty uses the default.
	APIBaseURL string `yaml:"api_base_url"`

	// AnswerText is the message spoken into the call when the target
	// acoustic signature is detected.
	AnswerText string `yaml:"answer_text"`
}

// AudioConfig holds the stream segmentation parameters.
type AudioConfig struct {
	// SampleRate is the PCM sample rate of the media stream in Hz.
	SampleRate int `yaml:"sample_rate"`

	// FrameMs is the duration of one audio frame in milliseconds.
	FrameMs int `yaml:"frame_ms"`

	// SilenceFrames is how many continuous silence frames end an utterance.
	SilenceFrames int `yaml:"silence_frames"`

	// ClipMinMs is the minimum clip duration worth classifying.
	ClipMinMs int `yaml:"clip_min_ms"`

	// ClipMaxMs caps the length of a single clip.
	ClipMaxMs int `yaml:"clip_max_ms"`

	// VADSensitivity is the detector aggressiveness tier (0–3).
	VADSensitivity int `yaml:"vad_sensitivity"`
}

// ClassifierConfig selects and configures the clip classifier.
type ClassifierConfig struct {
	// Name selects the backend: "goertzel" or "http".
	Name ClassifierName `yaml:"name"`

	// URL is the scoring endpoint for the http backend.
	URL string `yaml:"url"`

	// APIKey is an optional bearer token for the http backend.
	APIKey string `yaml:"api_key"`

	// TargetHz is the tone frequency for the goertzel backend.
	TargetHz float64 `yaml:"target_hz"`

	// MinToneRatio is the per-window tonal-energy threshold for the
	// goertzel backend.
	MinToneRatio float64 `yaml:"min_tone_ratio"`

	// Workers bounds how many clips may be classified concurrently.
	Workers int `yaml:"workers"`

	// TimeoutSec bounds one clip classification and its follow-up call
	// action, in seconds.
	TimeoutSec int `yaml:"timeout_sec"`
}

// AuditConfig configures persistence of positive detections.
type AuditConfig struct {
	// PostgresDSN is the audit database connection string. Empty disables
	// the audit store.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Default returns a Config populated with the stock segmentation and
// classification parameters: 16 kHz audio in 20 ms frames, a 10-frame
// silence tolerance, 200 ms minimum and 3000 ms maximum clips, the most
// aggressive VAD tier, and the built-in goertzel classifier.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8000",
			LogLevel:   LogInfo,
		},
		Audio: AudioConfig{
			SampleRate:     16000,
			FrameMs:        20,
			SilenceFrames:  10,
			ClipMinMs:      200,
			ClipMaxMs:      3000,
			VADSensitivity: 3,
		},
		Classifier: ClassifierConfig{
			Name:       ClassifierGoertzel,
			Workers:    4,
			TimeoutSec: 15,
		},
	}
}

// MaxClipFrames returns the clip length cap in frames.
func (a AudioConfig) MaxClipFrames() int {
	return a.ClipMaxMs / a.FrameMs
}

// MinClipFrames returns the minimum meaningful clip length in frames.
func (a AudioConfig) MinClipFrames() int {
	return a.ClipMinMs / a.FrameMs
}
