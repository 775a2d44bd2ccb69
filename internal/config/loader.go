package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied for omitted fields. It is a convenience
// wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults for omitted
// fields, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr must not be empty"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if cfg.Telephony.LocalNumber == "" {
		errs = append(errs, errors.New("telephony.local_number must not be empty"))
	}
	if cfg.Telephony.ApplicationID == "" {
		errs = append(errs, errors.New("telephony.application_id must not be empty"))
	}
	if cfg.Telephony.PrivateKeyFile == "" {
		errs = append(errs, errors.New("telephony.private_key_file must not be empty"))
	}
	if cfg.Telephony.AnswerText == "" {
		errs = append(errs, errors.New("telephony.answer_text must not be empty"))
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameMs <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_ms must be positive, got %d", cfg.Audio.FrameMs))
	}
	if cfg.Audio.SilenceFrames <= 0 {
		errs = append(errs, fmt.Errorf("audio.silence_frames must be positive, got %d", cfg.Audio.SilenceFrames))
	}
	if cfg.Audio.VADSensitivity < 0 || cfg.Audio.VADSensitivity > 3 {
		errs = append(errs, fmt.Errorf("audio.vad_sensitivity must be in [0, 3], got %d", cfg.Audio.VADSensitivity))
	}
	if cfg.Audio.FrameMs > 0 {
		if cfg.Audio.ClipMaxMs < cfg.Audio.FrameMs {
			errs = append(errs, fmt.Errorf("audio.clip_max_ms %d is shorter than one frame", cfg.Audio.ClipMaxMs))
		}
		if cfg.Audio.ClipMinMs > cfg.Audio.ClipMaxMs {
			errs = append(errs, fmt.Errorf("audio.clip_min_ms %d exceeds clip_max_ms %d", cfg.Audio.ClipMinMs, cfg.Audio.ClipMaxMs))
		}
	}

	if !cfg.Classifier.Name.IsValid() {
		errs = append(errs, fmt.Errorf("classifier.name %q is invalid; valid values: goertzel, http", cfg.Classifier.Name))
	}
	if cfg.Classifier.Name == ClassifierHTTP && cfg.Classifier.URL == "" {
		errs = append(errs, errors.New("classifier.url is required for the http classifier"))
	}
	if cfg.Classifier.Workers <= 0 {
		errs = append(errs, fmt.Errorf("classifier.workers must be positive, got %d", cfg.Classifier.Workers))
	}
	if cfg.Classifier.TimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("classifier.timeout_sec must be positive, got %d", cfg.Classifier.TimeoutSec))
	}

	return errors.Join(errs...)
}
