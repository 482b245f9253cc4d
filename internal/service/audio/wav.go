package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"clinical-notes-service/internal/models"
)

const pcmFormat = 1

// Format describes an uncompressed PCM layout.
type Format struct {
	SampleRate int `json:"sampleRate"`
	Channels   int `json:"channels"`
	BitDepth   int `json:"bitDepth"`
}

// Mono16 is the layout of live session audio.
func Mono16(sampleRate int) Format {
	return Format{SampleRate: sampleRate, Channels: 1, BitDepth: 16}
}

// EncodeWAV writes interleaved samples as a self-contained WAV file.
func EncodeWAV(f Format, data []int) ([]byte, error) {
	if f.SampleRate <= 0 || f.Channels <= 0 || f.BitDepth <= 0 {
		return nil, fmt.Errorf("%w: invalid wav format %+v", models.ErrInput, f)
	}
	out := &seekBuffer{}
	enc := wav.NewEncoder(out, f.SampleRate, f.BitDepth, f.Channels, pcmFormat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           data,
		SourceBitDepth: f.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}
	return out.Bytes(), nil
}

// DecodeWAV reads a PCM WAV file into interleaved samples.
func DecodeWAV(r io.ReadSeeker) (Format, []int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Format{}, nil, fmt.Errorf("%w: not a valid wav file", models.ErrInput)
	}
	if dec.WavAudioFormat != pcmFormat {
		return Format{}, nil, fmt.Errorf("%w: unsupported wav encoding %d", models.ErrInput, dec.WavAudioFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Format{}, nil, fmt.Errorf("%w: read pcm: %v", models.ErrInput, err)
	}
	f := Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	return f, buf.Data, nil
}

// DecodeWAVBytes is DecodeWAV over an in-memory file.
func DecodeWAVBytes(b []byte) (Format, []int, error) {
	return DecodeWAV(bytes.NewReader(b))
}

// ProbeWAV returns the layout of a WAV file without decoding its samples.
func ProbeWAV(r io.ReadSeeker) (Format, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Format{}, fmt.Errorf("%w: not a valid wav file", models.ErrInput)
	}
	return Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}, nil
}

// DecodePCM16LE converts raw little-endian 16-bit frames into samples.
func DecodePCM16LE(b []byte) ([]int16, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("%w: odd pcm16 byte count %d", models.ErrInput, len(b))
	}
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out, nil
}

// EncodePCM16LE converts samples into raw little-endian 16-bit frames.
func EncodePCM16LE(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// seekBuffer is an in-memory io.WriteSeeker for the wav encoder,
// which rewrites the header sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + len(p)
	if end > len(s.buf) {
		if end > cap(s.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, s.buf)
			s.buf = grown
		} else {
			s.buf = s.buf[:end]
		}
	}
	copy(s.buf[s.pos:], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(s.pos)
	case io.SeekEnd:
		base = int64(len(s.buf))
	default:
		return 0, errors.New("seekBuffer: invalid whence")
	}
	next := base + offset
	if next < 0 {
		return 0, errors.New("seekBuffer: negative position")
	}
	s.pos = int(next)
	return next, nil
}

func (s *seekBuffer) Bytes() []byte {
	return s.buf
}
