package audio

import (
	"bytes"
	"math"
	"testing"
)

func sineWave(freq float64, seconds float64, sampleRate int) []float32 {
	n := int(seconds * float64(sampleRate))
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return samples
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := sineWave(440, 0.1, SampleRate)

	data, err := EncodeWAV(in, SampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("RIFF")) {
		t.Fatal("output is not a RIFF file")
	}

	out, sr, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if sr != SampleRate {
		t.Errorf("sample rate = %d, want %d", sr, SampleRate)
	}
	if len(out) != len(in) {
		t.Fatalf("sample count = %d, want %d", len(out), len(in))
	}

	// 16-bit quantization bounds the round-trip error.
	for i := range in {
		if diff := math.Abs(float64(in[i] - out[i])); diff > 1.0/16384 {
			t.Fatalf("sample %d: diff %f exceeds quantization error", i, diff)
		}
	}
}

func TestEncodeWAVRejectsBadRate(t *testing.T) {
	if _, err := EncodeWAV([]float32{0}, 0); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV(nil); err == nil {
		t.Error("expected error for empty input")
	}
	if _, _, err := DecodeWAV([]byte("not a wav file at all")); err == nil {
		t.Error("expected error for non-WAV bytes")
	}
}

func TestNormalizeResamples(t *testing.T) {
	in := sineWave(440, 0.1, 48000)
	src, err := EncodeWAV(in, 48000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	norm, err := Normalize(src)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	out, sr, err := DecodeWAV(norm)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if sr != SampleRate {
		t.Errorf("sample rate = %d, want %d", sr, SampleRate)
	}
	if want := len(in) / 2; len(out) != want {
		t.Errorf("sample count = %d, want %d", len(out), want)
	}
}

func TestDuration(t *testing.T) {
	data, err := EncodeWAV(make([]float32, SampleRate/2), SampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	if got := Duration(data); math.Abs(got-0.5) > 0.01 {
		t.Errorf("Duration = %f, want 0.5", got)
	}
	if got := Duration([]byte("garbage")); got != 0 {
		t.Errorf("Duration of garbage = %f, want 0", got)
	}
}
