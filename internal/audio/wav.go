package audio

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

// Canonical format for every voice sample and generated artifact.
const (
	SampleRate = 24000
	Channels   = 1
	BitDepth   = 16
)

// EncodeWAV encodes float32 PCM samples as a 24 kHz mono 16-bit WAV byte
// slice.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate < 1 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	var buf bytes.Buffer

	// wav.NewEncoder requires an io.WriteSeeker; bytes.Buffer is not one.
	sw := &seekBuffer{buf: &buf}

	enc := wav.NewEncoder(sw, sampleRate, BitDepth, Channels, 1) // 1 = PCM

	pcmBuf := &goaudio.Float32Buffer{
		Data:           samples,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: Channels},
		SourceBitDepth: BitDepth,
	}

	if err := enc.Write(pcmBuf); err != nil {
		return nil, fmt.Errorf("writing PCM: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing encoder: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeWAV decodes WAV bytes of any channel count and sample rate into
// float32 samples. Multi-channel input is down-mixed to mono by averaging.
func DecodeWAV(data []byte) (samples []float32, sampleRate int, err error) {
	if len(data) == 0 {
		return nil, 0, errors.New("empty WAV input")
	}

	r := bytes.NewReader(data)
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid WAV file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("reading PCM data: %w", err)
	}

	channels := int(dec.NumChans)
	if channels <= 1 {
		return buf.Data, int(dec.SampleRate), nil
	}

	mono := make([]float32, len(buf.Data)/channels)
	for i := range mono {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += buf.Data[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}

	return mono, int(dec.SampleRate), nil
}

// Normalize decodes arbitrary WAV bytes and re-encodes them in the canonical
// 24 kHz mono 16-bit format used by the voice pool.
func Normalize(data []byte) ([]byte, error) {
	samples, sr, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	if sr != SampleRate {
		samples = Resample(samples, sr, SampleRate)
	}
	return EncodeWAV(samples, SampleRate)
}

// Duration reports the play time in seconds of WAV bytes, or 0 when the
// bytes do not decode.
func Duration(data []byte) float64 {
	samples, sr, err := DecodeWAV(data)
	if err != nil || sr == 0 {
		return 0
	}
	return float64(len(samples)) / float64(sr)
}

// seekBuffer wraps a bytes.Buffer to satisfy io.WriteSeeker.
type seekBuffer struct {
	buf *bytes.Buffer
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if s.pos == s.buf.Len() {
		n, err := s.buf.Write(p)
		s.pos += n
		return n, err
	}
	// Writing in the middle: overwrite existing bytes.
	data := s.buf.Bytes()
	n := copy(data[s.pos:], p)
	if n < len(p) {
		data = append(data, p[n:]...)
		s.buf.Reset()
		s.buf.Write(data)
		n = len(p)
	}
	s.pos += n
	return n, nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int
	switch whence {
	case 0: // io.SeekStart
		newPos = int(offset)
	case 1: // io.SeekCurrent
		newPos = s.pos + int(offset)
	case 2: // io.SeekEnd
		newPos = s.buf.Len() + int(offset)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("seek before start")
	}
	s.pos = newPos
	return int64(newPos), nil
}
