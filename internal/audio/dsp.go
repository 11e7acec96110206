package audio

import "math"

// Resample converts samples from one rate to another by linear
// interpolation. The output length is round(len(samples) * to / from).
// Identical rates return the input unchanged.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || len(samples) == 0 || from < 1 || to < 1 {
		return samples
	}

	outLen := int(math.Round(float64(len(samples)) * float64(to) / float64(from)))
	if outLen < 1 {
		outLen = 1
	}

	out := make([]float32, outLen)
	ratio := float64(len(samples)-1) / float64(outLen-1)
	if outLen == 1 {
		out[0] = samples[0]
		return out
	}

	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}

	return out
}

// AdjustSpeed changes playback speed without changing the output rate by
// resampling the signal. speed > 1 shortens, speed < 1 lengthens. Values
// outside (0, 3] leave the input unchanged.
func AdjustSpeed(samples []float32, speed float64) []float32 {
	if speed <= 0 || speed > 3 || speed == 1 || len(samples) == 0 {
		return samples
	}
	virtual := int(math.Round(float64(SampleRate) * speed))
	return Resample(samples, virtual, SampleRate)
}

// Merge concatenates chunks with an equal-power crossfade of crossfadeMS
// milliseconds at each seam. The overlap at a seam is clamped to the shorter
// of the two adjacent chunks; zero or negative crossfade degenerates to
// plain concatenation.
func Merge(chunks [][]float32, sampleRate, crossfadeMS int) []float32 {
	switch len(chunks) {
	case 0:
		return nil
	case 1:
		return chunks[0]
	}

	fade := 0
	if crossfadeMS > 0 {
		fade = crossfadeMS * sampleRate / 1000
	}

	out := append([]float32(nil), chunks[0]...)
	prev := len(chunks[0])
	for _, next := range chunks[1:] {
		// The fade may only consume samples of the chunk directly before
		// the seam, never audio merged at earlier seams.
		overlap := fade
		if overlap > prev {
			overlap = prev
		}
		if overlap > len(next) {
			overlap = len(next)
		}

		if overlap == 0 {
			out = append(out, next...)
			prev = len(next)
			continue
		}

		tail := len(out) - overlap
		for i := 0; i < overlap; i++ {
			t := float64(i+1) / float64(overlap+1)
			gainOut := float32(math.Cos(t * math.Pi / 2))
			gainIn := float32(math.Sin(t * math.Pi / 2))
			out[tail+i] = out[tail+i]*gainOut + next[i]*gainIn
		}
		out = append(out, next[overlap:]...)
		prev = len(next)
	}

	return out
}
