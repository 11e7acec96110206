// Package stream bridges an adapter's PCM frame source onto a chunked HTTP
// response. A bounded channel decouples the producer from the network
// writer; client disconnects cancel the producer and release its scratch
// resources.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/audio"
	"github.com/mimikastudio/mimika/internal/engine"
)

// SampleRate of the streamed PCM.
const SampleRate = audio.SampleRate

// ContentType advertises the raw PCM framing.
const ContentType = "audio/L16; rate=24000; channels=1"

// frameBuffer bounds how far the producer may run ahead of the writer.
const frameBuffer = 8

// Serve pumps src into w as signed 16-bit little-endian PCM and reports how
// many frames were written. The first frame is awaited before any header is
// written so an empty or failed generation still produces a proper error
// response. src is always closed.
func Serve(ctx context.Context, w http.ResponseWriter, src engine.FrameSource, speed float64, logger *slog.Logger) (int, error) {
	defer src.Close()
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan []byte, frameBuffer)
	errc := make(chan error, 1)
	go produce(ctx, src, speed, frames, errc)

	// Hold the response open until the producer proves there is audio.
	first, ok, err := awaitFirst(ctx, frames, errc)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, apperr.New(apperr.Internal, "no audio generated")
	}

	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("X-Audio-Format", "pcm_s16le")
	w.Header().Set("X-Audio-Sample-Rate", strconv.Itoa(SampleRate))
	w.Header().Set("X-Audio-Channels", "1")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	written, err := writeFrame(w, flusher, first, 0)
	if err != nil {
		logger.Debug("stream client went away", "written_bytes", written)
		return 0, nil
	}
	count := 1

	for {
		select {
		case <-ctx.Done():
			return count, nil
		case frame, open := <-frames:
			if !open {
				// The producer is done; surface a pending failure before
				// cutting the body. Headers are gone, so logging is all
				// that is left.
				if err := pendingError(errc); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("stream producer failed mid-response", "error", err)
				}
				return count, nil
			}
			written, err = writeFrame(w, flusher, frame, written)
			if err != nil {
				logger.Debug("stream client went away", "written_bytes", written)
				return count, nil
			}
			count++
		}
	}
}

// produce pulls frames from src, applies speed scaling and serializes them.
// The frames channel is closed when the source is exhausted; errc is
// buffered, never closed, and carries at most one error.
func produce(ctx context.Context, src engine.FrameSource, speed float64, frames chan<- []byte, errc chan<- error) {
	defer close(frames)

	for {
		samples, err := src.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			errc <- err
			return
		}
		if len(samples) == 0 {
			continue
		}
		if speed > 0 && speed != 1.0 {
			samples = audio.AdjustSpeed(samples, speed)
		}

		select {
		case frames <- audio.PCM16Bytes(samples):
		case <-ctx.Done():
			return
		}
	}
}

// awaitFirst blocks for the first frame, a producer error, or cancellation.
func awaitFirst(ctx context.Context, frames <-chan []byte, errc <-chan error) ([]byte, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, apperr.Wrap(apperr.Internal, ctx.Err(), "stream cancelled before first frame")
	case err := <-errc:
		return nil, false, err
	case frame, open := <-frames:
		if !open {
			return nil, false, pendingError(errc)
		}
		return frame, true, nil
	}
}

// pendingError pops a buffered producer error, if one was sent before the
// frames channel closed.
func pendingError(errc <-chan error) error {
	select {
	case err := <-errc:
		return err
	default:
		return nil
	}
}

func writeFrame(w io.Writer, flusher http.Flusher, frame []byte, written int) (int, error) {
	n, err := w.Write(frame)
	written += n
	if err != nil {
		return written, fmt.Errorf("write frame: %w", err)
	}
	if flusher != nil {
		flusher.Flush()
	}
	return written, nil
}
