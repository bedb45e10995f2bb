package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/babelcloud/mp4demux/internal/config"
	"github.com/babelcloud/mp4demux/internal/demux"
	"github.com/sirupsen/logrus"
)

// chunkSize is the amount of file data fed to the demuxer per ParseChunks
// call, simulating the chunk boundaries a network reader would impose.
const chunkSize = 64 * 1024

// cliSink prints media info and per-keyframe summaries to stdout as the
// demuxer reports them, and keeps the running counts the closing logrus
// summary line reports.
type cliSink struct {
	sampleCount    int
	keyframeCount  int
	mediaInfoPrint bool
	errs           []string
}

func (s *cliSink) OnError(kind demux.ErrorKind, info string) {
	s.errs = append(s.errs, fmt.Sprintf("%s: %s", kind, info))
	fmt.Fprintf(os.Stderr, "error: %s: %s\n", kind, info)
}

func (s *cliSink) OnTrackMetadata(trackType string, meta demux.MediaInfo) {
	fmt.Printf("track %s: %dx%d %s\n", trackType, meta.CodecWidth, meta.CodecHeight, meta.Codec)
}

func (s *cliSink) OnMediaInfo(info demux.MediaInfo) {
	if s.mediaInfoPrint {
		return
	}
	s.mediaInfoPrint = true
	b, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: marshal media info: %v\n", err)
		return
	}
	fmt.Println(string(b))
}

func (s *cliSink) OnDataAvailable(audio, video []demux.VideoSample) {
	for _, sample := range video {
		s.sampleCount++
		if sample.IsKeyframe {
			s.keyframeCount++
			fmt.Printf("  keyframe #%d dts=%d nalus=%d\n", s.sampleCount, sample.DTS, len(sample.NALUnits))
		}
	}
}

// runDemux streams path through the demuxer in fixed-size chunks and
// prints a summary once the file is exhausted.
func runDemux(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("mp4demux: open %s: %w", path, err)
	}
	defer f.Close()

	logger := newLogger(config.LogLevel())

	sink := &cliSink{}
	cfg := demux.Config{
		ReuseRedirectedURL: config.ReuseRedirectedURL(),
		TimestampBase:      config.TimestampBase(),
	}
	if d := config.OverridedDuration(); d != 0 {
		cfg.OverridedDuration = &d
	}
	if config.OverridedHasAudioSet() {
		v := config.OverridedHasAudio()
		cfg.OverridedHasAudio = &v
	}
	if config.OverridedHasVideoSet() {
		v := config.OverridedHasVideo()
		cfg.OverridedHasVideo = &v
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := demux.New(ctx, logger, sink, cfg)
	defer d.Destroy()

	start := time.Now()
	readBuf := make([]byte, chunkSize)
	var pending []byte
	var byteStart uint64

	for {
		n, readErr := f.Read(readBuf)
		if n > 0 {
			pending = append(pending, readBuf[:n]...)
			consumed, err := d.ParseChunks(pending, byteStart)
			if err != nil {
				logSummary(path, byteStart, sink, time.Since(start), err)
				return fmt.Errorf("mp4demux: %w", err)
			}
			// consumed is 0 ("not enough data yet, resend a bigger chunk")
			// or len(pending) (fully absorbed); either way pending[consumed:]
			// is what still needs to be resent alongside the next read.
			byteStart += uint64(consumed)
			pending = pending[consumed:]
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			logSummary(path, byteStart, sink, time.Since(start), readErr)
			return fmt.Errorf("mp4demux: read %s: %w", path, readErr)
		}
	}

	logSummary(path, byteStart, sink, time.Since(start), nil)
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// logSummary emits the access-log-style closing line: one structured
// logrus entry per demux session, distinct from the per-event slog output
// the demuxer core produces while it runs.
func logSummary(path string, bytesRead uint64, sink *cliSink, elapsed time.Duration, err error) {
	entry := logrus.WithFields(logrus.Fields{
		"file":       path,
		"bytes":      bytesRead,
		"samples":    sink.sampleCount,
		"keyframes":  sink.keyframeCount,
		"errors":     len(sink.errs),
		"elapsed_ms": elapsed.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("demux session failed")
		return
	}
	entry.Info("demux session complete")
}
