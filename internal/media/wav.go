package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	wavHeaderSize = 44
	wavFormatPCM  = 1
	bitsPerSample = 16
)

// WAVHeader is the format metadata of a RIFF/WAVE container.
type WAVHeader struct {
	AudioFormat   int
	Channels      int
	SampleRate    int
	ByteRate      int
	BlockAlign    int
	BitsPerSample int
	DataOffset    int
	DataSize      int
}

// EncodeWAV interleaves p into a canonical 44-byte-header PCM WAV file with
// signed 16-bit little-endian samples.
func EncodeWAV(p *PCM) ([]byte, error) {
	if p == nil || len(p.Channels) == 0 {
		return nil, errors.New("wav: no channels")
	}
	if p.SampleRate <= 0 {
		return nil, fmt.Errorf("wav: invalid sample rate %d", p.SampleRate)
	}
	frames := p.Frames()
	for i, ch := range p.Channels {
		if len(ch) != frames {
			return nil, fmt.Errorf("wav: channel %d has %d samples, want %d", i, len(ch), frames)
		}
	}

	channels := len(p.Channels)
	blockAlign := channels * bitsPerSample / 8
	dataSize := frames * blockAlign
	if int64(dataSize) > math.MaxUint32-36 {
		return nil, errors.New("wav: audio too long for a RIFF container")
	}

	buf := make([]byte, wavHeaderSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(p.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(p.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	off := wavHeaderSize
	for i := 0; i < frames; i++ {
		for _, ch := range p.Channels {
			binary.LittleEndian.PutUint16(buf[off:], uint16(floatToInt16(ch[i])))
			off += 2
		}
	}
	return buf, nil
}

func floatToInt16(s float32) int16 {
	v := float64(s)
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	if v < 0 {
		return int16(math.Round(v * 32768))
	}
	return int16(math.Round(v * 32767))
}

func int16ToFloat(v int16) float32 {
	if v < 0 {
		return float32(v) / 32768
	}
	return float32(v) / 32767
}

// ParseWAVHeader walks the RIFF chunks of wav up to the data chunk. The fmt
// chunk may be larger than 16 bytes and other chunks may precede data.
func ParseWAVHeader(wav []byte) (WAVHeader, error) {
	if len(wav) < 12 {
		return WAVHeader{}, errors.New("wav: too short for a RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return WAVHeader{}, errors.New("wav: missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return WAVHeader{}, errors.New("wav: missing WAVE identifier")
	}

	var h WAVHeader
	foundFmt := false
	offset := 12
	for offset+8 <= len(wav) {
		id := string(wav[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(wav) {
				return WAVHeader{}, errors.New("wav: truncated fmt chunk")
			}
			f := wav[body:]
			h.AudioFormat = int(binary.LittleEndian.Uint16(f[0:2]))
			h.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
			h.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			h.ByteRate = int(binary.LittleEndian.Uint32(f[8:12]))
			h.BlockAlign = int(binary.LittleEndian.Uint16(f[12:14]))
			h.BitsPerSample = int(binary.LittleEndian.Uint16(f[14:16]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return WAVHeader{}, errors.New("wav: data chunk before fmt chunk")
			}
			h.DataOffset = body
			h.DataSize = size
			if remaining := len(wav) - body; h.DataSize > remaining {
				h.DataSize = remaining
			}
			return h, nil
		}

		offset = body + size
		if size%2 != 0 {
			offset++
		}
	}
	return WAVHeader{}, errors.New("wav: missing data chunk")
}

// DecodeWAV is the inverse of EncodeWAV. Only 16-bit PCM is accepted.
func DecodeWAV(wav []byte) (*PCM, error) {
	h, err := ParseWAVHeader(wav)
	if err != nil {
		return nil, err
	}
	if h.AudioFormat != wavFormatPCM || h.BitsPerSample != bitsPerSample {
		return nil, fmt.Errorf("wav: unsupported format %d/%d-bit", h.AudioFormat, h.BitsPerSample)
	}
	if h.Channels <= 0 {
		return nil, errors.New("wav: zero channels")
	}

	blockAlign := h.Channels * 2
	frames := h.DataSize / blockAlign
	p := NewPCM(h.SampleRate, h.Channels)
	for c := range p.Channels {
		p.Channels[c] = make([]float32, frames)
	}

	data := wav[h.DataOffset:]
	for i := 0; i < frames; i++ {
		for c := 0; c < h.Channels; c++ {
			at := i*blockAlign + c*2
			p.Channels[c][i] = int16ToFloat(int16(binary.LittleEndian.Uint16(data[at:])))
		}
	}
	return p, nil
}
