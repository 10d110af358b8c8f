package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	defaultSampleRate = 16000
	maxDecodeChannels = 8
)

// FFmpegDecoder shells out to ffprobe and ffmpeg. Empty paths resolve the
// binaries from PATH.
type FFmpegDecoder struct {
	FFmpegPath  string
	FFprobePath string
}

func (d FFmpegDecoder) ffmpeg() string {
	if d.FFmpegPath != "" {
		return d.FFmpegPath
	}
	return "ffmpeg"
}

func (d FFmpegDecoder) ffprobe() string {
	if d.FFprobePath != "" {
		return d.FFprobePath
	}
	return "ffprobe"
}

// Probe runs ffprobe with JSON output and summarizes the streams.
func (d FFmpegDecoder) Probe(ctx context.Context, path string) (Probe, error) {
	cmd := exec.CommandContext(ctx, d.ffprobe(),
		"-v", "error",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return Probe{}, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (Probe, error) {
	if !gjson.ValidBytes(out) {
		return Probe{}, errors.New("ffprobe: output is not JSON")
	}
	root := gjson.ParseBytes(out)

	var p Probe
	root.Get("streams").ForEach(func(_, s gjson.Result) bool {
		switch s.Get("codec_type").String() {
		case "audio":
			if !p.HasAudio {
				p.HasAudio = true
				p.Channels = int(s.Get("channels").Int())
				p.SampleRate = int(s.Get("sample_rate").Int())
			}
		case "video":
			// Cover art in audio files shows up as a single-frame video stream.
			if s.Get("disposition.attached_pic").Int() != 1 {
				p.HasVideo = true
			}
		}
		return true
	})

	if secs := root.Get("format.duration").Float(); secs > 0 {
		p.Duration = time.Duration(secs * float64(time.Second))
	}
	return p, nil
}

// Decode streams the first audio track as interleaved float32 from ffmpeg's
// stdout and splits it into planar channels. When ctx ends early the process
// is killed and the samples read so far are returned with ctx.Err().
func (d FFmpegDecoder) Decode(ctx context.Context, path string, p Probe) (*PCM, error) {
	channels := p.Channels
	if channels <= 0 {
		channels = 1
	}
	if channels > maxDecodeChannels {
		channels = maxDecodeChannels
	}
	rate := p.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}

	cmd := exec.CommandContext(ctx, d.ffmpeg(),
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-i", path,
		"-vn", "-map", "0:a:0",
		"-f", "f32le", "-acodec", "pcm_f32le",
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(rate),
		"pipe:1")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	pcm := NewPCM(rate, channels)
	readErr := readInterleaved(bufio.NewReaderSize(stdout, 64<<10), pcm)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return pcm, ctx.Err()
	}
	if waitErr != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", waitErr, strings.TrimSpace(stderr.String()))
	}
	if readErr != nil {
		return nil, fmt.Errorf("read ffmpeg output: %w", readErr)
	}
	return pcm, nil
}

// readInterleaved appends whole frames until EOF. A trailing partial frame is
// dropped.
func readInterleaved(r io.Reader, pcm *PCM) error {
	channels := pcm.NumChannels()
	frame := make([]byte, 4*channels)
	for {
		if _, err := io.ReadFull(r, frame); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}
		for c := 0; c < channels; c++ {
			bits := binary.LittleEndian.Uint32(frame[4*c:])
			pcm.Channels[c] = append(pcm.Channels[c], math.Float32frombits(bits))
		}
	}
}
