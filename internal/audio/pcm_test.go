package audio

import (
	"bytes"
	"math"
	"testing"
)

func TestPCM16RoundTrip(t *testing.T) {
	in := []float32{0, 0.25, -0.25, 0.999, -0.999}

	data := PCM16Bytes(in)
	if len(data) != len(in)*2 {
		t.Fatalf("byte count = %d, want %d", len(data), len(in)*2)
	}

	out := SamplesFromPCM16(data)
	for i := range in {
		if diff := math.Abs(float64(in[i] - out[i])); diff > 1.0/16384 {
			t.Errorf("sample %d: %f -> %f, diff %f", i, in[i], out[i], diff)
		}
	}
}

func TestPCM16Clipping(t *testing.T) {
	data := PCM16Bytes([]float32{2.0, -2.0})

	out := SamplesFromPCM16(data)
	if out[0] < 0.99 {
		t.Errorf("positive overdrive clipped to %f, want ~1", out[0])
	}
	if out[1] > -0.99 {
		t.Errorf("negative overdrive clipped to %f, want ~-1", out[1])
	}
}

func TestWritePCM16(t *testing.T) {
	var buf bytes.Buffer

	n, err := WritePCM16(&buf, make([]float32, 100))
	if err != nil {
		t.Fatalf("WritePCM16: %v", err)
	}
	if n != 200 {
		t.Errorf("wrote %d bytes, want 200", n)
	}
	if buf.Len() != 200 {
		t.Errorf("buffer holds %d bytes, want 200", buf.Len())
	}
}

func TestSamplesFromPCM16IgnoresTrailingByte(t *testing.T) {
	if got := SamplesFromPCM16([]byte{0, 0, 7}); len(got) != 1 {
		t.Errorf("sample count = %d, want 1", len(got))
	}
}
