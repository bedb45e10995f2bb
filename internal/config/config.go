// Package config holds the demuxer CLI's runtime configuration: override
// flags and their environment-variable/config-file equivalents, following
// a defaults-plus-env-binding pattern.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

var v *viper.Viper

func init() {
	v = viper.New()

	v.SetDefault("overrided.duration", uint32(0))
	v.SetDefault("timestamp.base", uint32(0))
	v.SetDefault("reuse_redirected_url", false)
	v.SetDefault("log.level", "info")

	v.AutomaticEnv()
	v.SetEnvPrefix("MP4")
	v.BindEnv("overrided.duration", "MP4_OVERRIDED_DURATION")
	v.BindEnv("overrided.has_audio", "MP4_OVERRIDED_HAS_AUDIO")
	v.BindEnv("overrided.has_video", "MP4_OVERRIDED_HAS_VIDEO")
	v.BindEnv("timestamp.base", "MP4_TIMESTAMP_BASE")
	v.BindEnv("reuse_redirected_url", "MP4_REUSE_REDIRECTED_URL")
	v.BindEnv("log.level", "MP4_LOG_LEVEL")

	v.SetConfigName("mp4demux")
	v.SetConfigType("yaml")
	for _, path := range []string{".", "$HOME/.mp4demux", "/etc/mp4demux"} {
		v.AddConfigPath(os.ExpandEnv(path))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Sprintf("config: fatal error reading config file: %s", err))
		}
	}
}

// SetOverridedDuration records a CLI-flag or programmatic override for the
// mvhd-derived duration, in milliseconds.
func SetOverridedDuration(ms uint32) { v.Set("overrided.duration", ms) }

// SetOverridedHasAudio records a CLI-flag override for audio-track
// presence.
func SetOverridedHasAudio(has bool) { v.Set("overrided.has_audio", has) }

// SetOverridedHasVideo records a CLI-flag override for video-track
// presence.
func SetOverridedHasVideo(has bool) { v.Set("overrided.has_video", has) }

// SetTimestampBase records the millisecond offset added to output
// timestamps.
func SetTimestampBase(ms uint32) { v.Set("timestamp.base", ms) }

// SetLogLevel records a CLI-flag override for the slog level name.
func SetLogLevel(level string) { v.Set("log.level", level) }

// OverridedDuration returns the configured duration override in
// milliseconds; zero means "not overridden".
func OverridedDuration() uint32 { return v.GetUint32("overrided.duration") }

// OverridedHasAudio returns the configured audio-presence override value.
// Callers must check OverridedHasAudioSet first: with no default registered
// for this key, an unset override and an override explicitly forced to
// false are indistinguishable from this return value alone.
func OverridedHasAudio() bool { return v.GetBool("overrided.has_audio") }

// OverridedHasAudioSet reports whether the audio-presence override was
// explicitly set, by flag, env var, or config file, as opposed to left at
// its unset zero value.
func OverridedHasAudioSet() bool { return v.IsSet("overrided.has_audio") }

// OverridedHasVideo returns the configured video-presence override value.
// Callers must check OverridedHasVideoSet first, for the same reason as
// OverridedHasAudio.
func OverridedHasVideo() bool { return v.GetBool("overrided.has_video") }

// OverridedHasVideoSet reports whether the video-presence override was
// explicitly set, by flag, env var, or config file.
func OverridedHasVideoSet() bool { return v.IsSet("overrided.has_video") }

// TimestampBase returns the configured timestamp base, in milliseconds.
func TimestampBase() uint32 { return v.GetUint32("timestamp.base") }

// ReuseRedirectedURL returns the configured loader redirect-reuse flag.
// The demuxer core ignores it; it exists so a single Config struct can
// flow through both a loader and the demuxer.
func ReuseRedirectedURL() bool { return v.GetBool("reuse_redirected_url") }

// LogLevel returns the configured slog level name ("debug", "info",
// "warn", "error").
func LogLevel() string { return v.GetString("log.level") }
