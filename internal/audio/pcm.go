package audio

import (
	"encoding/binary"
	"io"
)

// PCM16Bytes converts float32 samples in [-1, 1] to little-endian signed
// 16-bit PCM bytes. Samples outside the range are clipped.
func PCM16Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(clip16(s)))
	}
	return out
}

// SamplesFromPCM16 converts little-endian signed 16-bit PCM bytes back to
// float32 samples. A trailing odd byte is ignored.
func SamplesFromPCM16(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(v) / 32767.0
	}
	return out
}

// WritePCM16 writes samples to w as raw little-endian 16-bit PCM and reports
// the number of bytes written.
func WritePCM16(w io.Writer, samples []float32) (int, error) {
	return w.Write(PCM16Bytes(samples))
}

func clip16(s float32) int16 {
	v := s * 32767.0
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
