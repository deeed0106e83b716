package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"serveturn/detector/internal/speaker"
	"serveturn/detector/internal/stream"
	"serveturn/detector/internal/types"
)

type Config struct {
	Server struct {
		Port      string
		GRPCPort  string
		LogLevel  string
		LogFormat string
	}
	Audio struct {
		SampleRate        int
		FrameMs           int
		VADAggressiveness int
		VADAdaptive       bool
		CaptureSource     string
	}
	Detector struct {
		ChildThresholdHz    float64
		ChildAgeMonths      *int
		ConversationWindowS float64
		MinChildSpeechMs    int
		IgnoreSpeechMs      int
		PitchConfidenceMin  float64
		HeartbeatS          float64
		SegmentQueue        int
		AgeProfilesFile     string
	}
	Ingest struct {
		TokenSecret   string
		TokenTTLMin   int
		TokenSkewSecs int
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "text")

	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.frame_ms", 30)
	v.SetDefault("audio.vad_aggressiveness", 2)
	v.SetDefault("audio.vad_adaptive", false)
	v.SetDefault("audio.capture_source", "none")

	v.SetDefault("detector.child_threshold_hz", 280)
	v.SetDefault("detector.conversation_window_s", 15)
	v.SetDefault("detector.min_child_speech_ms", 500)
	v.SetDefault("detector.ignore_speech_ms", 300)
	v.SetDefault("detector.pitch_confidence_min", 0.85)
	v.SetDefault("detector.heartbeat_s", 2)
	v.SetDefault("detector.segment_queue", 8)

	v.SetDefault("ingest.token_ttl_min", 60)
	v.SetDefault("ingest.token_skew_secs", 30)

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.grpc_port", "GRPC_PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")
	v.BindEnv("server.log_format", "LOG_FORMAT")

	v.BindEnv("audio.sample_rate", "SAMPLE_RATE")
	v.BindEnv("audio.frame_ms", "FRAME_MS")
	v.BindEnv("audio.vad_aggressiveness", "VAD_AGGRESSIVENESS")
	v.BindEnv("audio.vad_adaptive", "VAD_ADAPTIVE")
	v.BindEnv("audio.capture_source", "CAPTURE_SOURCE")

	v.BindEnv("detector.child_threshold_hz", "CHILD_THRESHOLD_HZ")
	v.BindEnv("detector.child_age_months", "CHILD_AGE_MONTHS")
	v.BindEnv("detector.conversation_window_s", "CONVERSATION_WINDOW_S")
	v.BindEnv("detector.min_child_speech_ms", "MIN_CHILD_SPEECH_MS")
	v.BindEnv("detector.ignore_speech_ms", "IGNORE_SPEECH_MS")
	v.BindEnv("detector.pitch_confidence_min", "PITCH_CONFIDENCE_MIN")
	v.BindEnv("detector.heartbeat_s", "HEARTBEAT_S")
	v.BindEnv("detector.segment_queue", "SEGMENT_QUEUE")
	v.BindEnv("detector.age_profiles_file", "AGE_PROFILES_FILE")

	v.BindEnv("ingest.token_secret", "INGEST_TOKEN_SECRET")
	v.BindEnv("ingest.token_ttl_min", "INGEST_TOKEN_TTL_MIN")
	v.BindEnv("ingest.token_skew_secs", "INGEST_TOKEN_SKEW_S")

	v.BindEnv("config_file", "CONFIG_FILE")
	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			logrus.WithError(err).WithField("path", path).Warn("config file not read")
		}
	}

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.GRPCPort = toString(v.Get("server.grpc_port"))
	c.Server.LogLevel = v.GetString("server.log_level")
	c.Server.LogFormat = v.GetString("server.log_format")

	c.Audio.SampleRate = v.GetInt("audio.sample_rate")
	c.Audio.FrameMs = v.GetInt("audio.frame_ms")
	c.Audio.VADAggressiveness = v.GetInt("audio.vad_aggressiveness")
	c.Audio.VADAdaptive = v.GetBool("audio.vad_adaptive")
	c.Audio.CaptureSource = v.GetString("audio.capture_source")

	c.Detector.ChildThresholdHz = v.GetFloat64("detector.child_threshold_hz")
	if s := strings.TrimSpace(v.GetString("detector.child_age_months")); s != "" {
		if m, err := strconv.Atoi(s); err == nil {
			c.Detector.ChildAgeMonths = &m
		} else {
			logrus.WithField("value", s).Warn("CHILD_AGE_MONTHS is not an integer, ignored")
		}
	}
	c.Detector.ConversationWindowS = v.GetFloat64("detector.conversation_window_s")
	c.Detector.MinChildSpeechMs = v.GetInt("detector.min_child_speech_ms")
	c.Detector.IgnoreSpeechMs = v.GetInt("detector.ignore_speech_ms")
	c.Detector.PitchConfidenceMin = v.GetFloat64("detector.pitch_confidence_min")
	c.Detector.HeartbeatS = v.GetFloat64("detector.heartbeat_s")
	c.Detector.SegmentQueue = v.GetInt("detector.segment_queue")
	c.Detector.AgeProfilesFile = v.GetString("detector.age_profiles_file")

	c.Ingest.TokenSecret = v.GetString("ingest.token_secret")
	c.Ingest.TokenTTLMin = v.GetInt("ingest.token_ttl_min")
	c.Ingest.TokenSkewSecs = v.GetInt("ingest.token_skew_secs")

	logrus.WithFields(logrus.Fields{
		"port":        c.Server.Port,
		"grpc_port":   c.Server.GRPCPort,
		"sample_rate": c.Audio.SampleRate,
		"capture":     c.Audio.CaptureSource,
	}).Info("config loaded")
	return c
}

func toString(v any) string { return fmt.Sprint(v) }

func (c Config) Validate() error {
	switch c.Server.LogFormat {
	case "text", "json":
	default:
		return types.NewConfigError("log_format", c.Server.LogFormat, "must be text or json")
	}
	switch c.Audio.CaptureSource {
	case "none", "mic":
	default:
		return types.NewConfigError("capture_source", c.Audio.CaptureSource, "must be none or mic")
	}
	if c.Ingest.TokenTTLMin <= 0 {
		return types.NewConfigError("ingest_token_ttl_min", c.Ingest.TokenTTLMin, "must be positive")
	}
	if c.Detector.ChildAgeMonths != nil && *c.Detector.ChildAgeMonths < 0 {
		return types.NewConfigError("child_age_months", *c.Detector.ChildAgeMonths, "must not be negative")
	}
	return nil
}

// Profiles returns the age table, read from AgeProfilesFile when set.
func (c Config) Profiles() (speaker.Profiles, error) {
	if c.Detector.AgeProfilesFile == "" {
		return speaker.DefaultProfiles(), nil
	}
	return speaker.LoadProfiles(c.Detector.AgeProfilesFile)
}

// Stream builds the live detector settings. A configured child age overrides
// the threshold, window and minimum speech length with its profile.
func (c Config) Stream(profiles speaker.Profiles) stream.Config {
	s := stream.DefaultConfig()
	s.SampleRate = c.Audio.SampleRate
	s.FrameMs = c.Audio.FrameMs
	s.Aggressiveness = c.Audio.VADAggressiveness
	s.Adaptive = c.Audio.VADAdaptive
	s.ChildThreshold = c.Detector.ChildThresholdHz
	s.MinConfidence = c.Detector.PitchConfidenceMin
	s.Window = seconds(c.Detector.ConversationWindowS)
	s.MinChildSpeech = time.Duration(c.Detector.MinChildSpeechMs) * time.Millisecond
	s.IgnoreShorter = time.Duration(c.Detector.IgnoreSpeechMs) * time.Millisecond
	s.Heartbeat = seconds(c.Detector.HeartbeatS)
	s.QueueSize = c.Detector.SegmentQueue
	if c.Detector.ChildAgeMonths != nil && len(profiles) > 0 {
		s.ApplyProfile(profiles.ForAge(*c.Detector.ChildAgeMonths))
	}
	return s
}

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }
