// Package media turns uploaded audio and video into a form the transcription
// providers accept. Allow-listed containers pass through untouched; anything
// else is decoded to PCM and re-encoded as 16-bit WAV.
package media

import (
	"context"
	"mime"
	"path/filepath"
	"strings"
	"time"
)

// File is an uploaded media object.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

var transcodableMIME = map[string]bool{
	"audio/mpeg":   true,
	"audio/mp3":    true,
	"audio/wav":    true,
	"audio/x-wav":  true,
	"audio/wave":   true,
	"audio/ogg":    true,
	"audio/flac":   true,
	"audio/x-flac": true,
	"audio/mp4":    true,
	"audio/m4a":    true,
	"audio/x-m4a":  true,
	"audio/webm":   true,
}

var transcodableExt = map[string]bool{
	".mp3":  true,
	".mpga": true,
	".wav":  true,
	".ogg":  true,
	".oga":  true,
	".flac": true,
	".m4a":  true,
	".webm": true,
}

// IsTranscodable reports whether f can be sent to a transcription endpoint
// as-is. A video MIME type always needs extraction, whatever the extension.
func IsTranscodable(f *File) bool {
	if f == nil {
		return false
	}
	mt := baseMIME(f.ContentType)
	if transcodableMIME[mt] {
		return true
	}
	if strings.HasPrefix(mt, "video/") {
		return false
	}
	return transcodableExt[strings.ToLower(filepath.Ext(f.Name))]
}

// IsVideo reports whether the declared type of f is video.
func IsVideo(f *File) bool {
	return f != nil && strings.HasPrefix(baseMIME(f.ContentType), "video/")
}

func baseMIME(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}

// PCM holds planar float samples in [-1, 1].
type PCM struct {
	SampleRate int
	Channels   [][]float32
}

// NewPCM allocates an empty buffer with the given layout.
func NewPCM(sampleRate, channels int) *PCM {
	return &PCM{SampleRate: sampleRate, Channels: make([][]float32, channels)}
}

// NumChannels returns the channel count.
func (p *PCM) NumChannels() int {
	if p == nil {
		return 0
	}
	return len(p.Channels)
}

// Frames returns the number of samples per channel.
func (p *PCM) Frames() int {
	if p == nil || len(p.Channels) == 0 {
		return 0
	}
	return len(p.Channels[0])
}

// Duration is the playback length of the buffer.
func (p *PCM) Duration() time.Duration {
	if p == nil || p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(p.Frames()) * time.Second / time.Duration(p.SampleRate)
}

// Probe describes the streams found in a media file.
type Probe struct {
	Duration   time.Duration
	HasAudio   bool
	HasVideo   bool
	Channels   int
	SampleRate int
}

// Decoder inspects and decodes media files on disk.
//
// Decode must return whatever it captured so far together with ctx.Err() when
// ctx ends before the stream does.
type Decoder interface {
	Probe(ctx context.Context, path string) (Probe, error)
	Decode(ctx context.Context, path string, p Probe) (*PCM, error)
}
