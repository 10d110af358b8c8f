package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpn/caseflow/internal/domain"
)

// DefaultMaxCapture bounds video capture when the container reports no duration.
const DefaultMaxCapture = 30 * time.Minute

// Outcome labels passed to Recorder.
const (
	PathPassthrough = "passthrough"
	PathAudio       = "audio"
	PathVideo       = "video"
)

// Recorder counts transcoder outcomes by path.
type Recorder interface {
	ObserveTranscode(path string)
}

// Transcoder converts uploads into a container the transcription endpoints
// accept.
//
// Video capture is wall-clock bounded by the reported duration plus one
// second, so large media can take that long to complete.
type Transcoder struct {
	decoder    Decoder
	logger     *slog.Logger
	recorder   Recorder
	maxCapture time.Duration
	tempDir    string
}

// TranscoderOption is a functional option for configuring Transcoder.
type TranscoderOption func(*Transcoder)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) TranscoderOption {
	return func(t *Transcoder) {
		t.logger = logger
	}
}

// WithMetrics attaches an outcome recorder.
func WithMetrics(r Recorder) TranscoderOption {
	return func(t *Transcoder) {
		t.recorder = r
	}
}

// WithMaxCapture sets the capture bound used when duration is unknown.
func WithMaxCapture(d time.Duration) TranscoderOption {
	return func(t *Transcoder) {
		if d > 0 {
			t.maxCapture = d
		}
	}
}

// WithTempDir sets where uploads are spooled for decoding.
func WithTempDir(dir string) TranscoderOption {
	return func(t *Transcoder) {
		t.tempDir = dir
	}
}

// NewTranscoder creates a Transcoder backed by dec.
func NewTranscoder(dec Decoder, opts ...TranscoderOption) *Transcoder {
	t := &Transcoder{
		decoder:    dec,
		logger:     slog.Default(),
		maxCapture: DefaultMaxCapture,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// EnsureTranscodable returns f itself when it is already acceptable, or a new
// WAV file holding its audio. Failures are *domain.Failure values and never
// come with a partial file.
func (t *Transcoder) EnsureTranscodable(ctx context.Context, f *File) (*File, error) {
	if f == nil || len(f.Data) == 0 {
		return nil, domain.NewFailure(domain.DecodeFailure, "empty upload")
	}
	if IsTranscodable(f) {
		t.observe(PathPassthrough)
		return f, nil
	}

	logger := t.logger.With(
		slog.String("file", f.Name),
		slog.String("content_type", f.ContentType),
		slog.Int("bytes", len(f.Data)),
	)

	path, cleanup, err := t.spool(f)
	if err != nil {
		return nil, domain.NewFailure(domain.DecodeFailure, "spool upload: %v", err)
	}
	defer cleanup()

	probe, err := t.decoder.Probe(ctx, path)
	if err != nil {
		logger.Warn("probe failed", slog.String("error", err.Error()))
		return nil, domain.NewFailure(domain.DecodeFailure, "could not read media: %v", err)
	}
	if !probe.HasAudio {
		return nil, domain.NewFailure(domain.NoAudioTrack, "%s has no audio track", displayName(f))
	}

	var (
		pcm       *PCM
		routePath string
	)
	if probe.HasVideo || IsVideo(f) {
		routePath = PathVideo
		pcm, err = t.capture(ctx, path, probe, logger)
	} else {
		routePath = PathAudio
		pcm, err = t.decoder.Decode(ctx, path, probe)
		if err != nil {
			err = domain.NewFailure(domain.DecodeFailure, "decode audio: %v", err)
		}
	}
	if err != nil {
		return nil, err
	}
	if pcm.Frames() == 0 {
		return nil, domain.NewFailure(domain.DecodeFailure, "no samples decoded from %s", displayName(f))
	}

	data, err := EncodeWAV(pcm)
	if err != nil {
		return nil, domain.NewFailure(domain.DecodeFailure, "encode wav: %v", err)
	}

	t.observe(routePath)
	logger.Info("media transcoded",
		slog.String("path", routePath),
		slog.Int("channels", pcm.NumChannels()),
		slog.Int("sample_rate", pcm.SampleRate),
		slog.Duration("audio", pcm.Duration()),
	)
	return &File{Name: wavName(f.Name), ContentType: "audio/wav", Data: data}, nil
}

// capture extracts the audio of a video under a safety deadline of
// duration+1s. Hitting that deadline keeps what was captured; cancellation of
// the caller's context does not.
func (t *Transcoder) capture(ctx context.Context, path string, probe Probe, logger *slog.Logger) (*PCM, error) {
	bound := t.maxCapture
	if probe.Duration > 0 {
		bound = probe.Duration + time.Second
	}

	captureCtx, cancel := context.WithTimeout(ctx, bound)
	defer cancel()

	pcm, err := t.decoder.Decode(captureCtx, path, probe)
	switch {
	case err == nil:
		return pcm, nil
	case ctx.Err() != nil:
		return nil, domain.NewFailure(domain.DecodeFailure, "capture abandoned: %v", ctx.Err())
	case errors.Is(err, context.DeadlineExceeded):
		if pcm.Frames() == 0 {
			return nil, domain.NewFailure(domain.DecodeFailure, "capture produced no audio within %s", bound)
		}
		logger.Warn("capture reached safety deadline, keeping partial audio",
			slog.Duration("bound", bound),
			slog.Duration("captured", pcm.Duration()),
		)
		return pcm, nil
	default:
		return nil, domain.NewFailure(domain.DecodeFailure, "capture audio: %v", err)
	}
}

func (t *Transcoder) spool(f *File) (string, func(), error) {
	// CreateTemp opens with 0600.
	tmp, err := os.CreateTemp(t.tempDir, "caseflow-media-*"+safeExt(f.Name))
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if _, err := tmp.Write(f.Data); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}
	return tmp.Name(), cleanup, nil
}

func (t *Transcoder) observe(path string) {
	if t.recorder != nil {
		t.recorder.ObserveTranscode(path)
	}
}

func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) > 8 || strings.ContainsAny(ext, `/\`) {
		return ""
	}
	return ext
}

func wavName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "audio"
	}
	return base + ".wav"
}

func displayName(f *File) string {
	if f.Name != "" {
		return f.Name
	}
	return "upload"
}
