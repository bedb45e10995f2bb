package main

import (
	"github.com/babelcloud/mp4demux/internal/config"
	"github.com/spf13/cobra"
)

var (
	flagOverridedDuration uint32
	flagOverridedHasAudio bool
	flagOverridedHasVideo bool
	flagTimestampBase     uint32
	flagLogLevel          string

	rootCmd = &cobra.Command{
		Use:   "mp4demux <file>",
		Short: "Stream an MP4 file through the demuxer and print what it finds",
		Long: `mp4demux is a command-line driver for the streaming ISO-BMFF demuxer.
It feeds a local file through the demuxer in fixed-size chunks, the same way
a network reader would, and prints the resolved media info and a per-keyframe
summary as the demuxer reports them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("overrided-duration") {
				config.SetOverridedDuration(flagOverridedDuration)
			}
			if cmd.Flags().Changed("overrided-has-audio") {
				config.SetOverridedHasAudio(flagOverridedHasAudio)
			}
			if cmd.Flags().Changed("overrided-has-video") {
				config.SetOverridedHasVideo(flagOverridedHasVideo)
			}
			if cmd.Flags().Changed("timestamp-base") {
				config.SetTimestampBase(flagTimestampBase)
			}
			if cmd.Flags().Changed("log-level") {
				config.SetLogLevel(flagLogLevel)
			}
			return runDemux(args[0])
		},
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().Uint32Var(&flagOverridedDuration, "overrided-duration", 0,
		"override the mvhd-derived duration, in milliseconds (env MP4_OVERRIDED_DURATION)")
	rootCmd.Flags().BoolVar(&flagOverridedHasAudio, "overrided-has-audio", false,
		"force the audio-track-present flag (env MP4_OVERRIDED_HAS_AUDIO)")
	rootCmd.Flags().BoolVar(&flagOverridedHasVideo, "overrided-has-video", false,
		"force the video-track-present flag (env MP4_OVERRIDED_HAS_VIDEO)")
	rootCmd.Flags().Uint32Var(&flagTimestampBase, "timestamp-base", 0,
		"milliseconds added to every output timestamp (env MP4_TIMESTAMP_BASE)")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "info",
		"slog level: debug, info, warn, error (env MP4_LOG_LEVEL)")
}
