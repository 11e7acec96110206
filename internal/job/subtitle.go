package job

import (
	"fmt"
	"os"
	"strings"

	"github.com/mimikastudio/mimika/internal/apperr"
)

// cue is one subtitle entry with its position in the stitched audio.
type cue struct {
	text     string
	startSec float64
	endSec   float64
}

// writeSubtitles renders cues as SRT or WebVTT.
func writeSubtitles(path, format string, cues []cue) error {
	var b strings.Builder

	switch format {
	case "srt":
		for i, c := range cues {
			fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
				i+1, srtTime(c.startSec), srtTime(c.endSec), strings.TrimSpace(c.text))
		}
	case "vtt":
		b.WriteString("WEBVTT\n\n")
		for _, c := range cues {
			fmt.Fprintf(&b, "%s --> %s\n%s\n\n",
				vttTime(c.startSec), vttTime(c.endSec), strings.TrimSpace(c.text))
		}
	default:
		return apperr.New(apperr.BadRequest, "unknown subtitle format %q", format)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return apperr.Wrap(apperr.Internal, err, "writing subtitles")
	}
	return nil
}

// srtTime formats seconds as HH:MM:SS,mmm.
func srtTime(sec float64) string {
	h, m, s, ms := splitTime(sec)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// vttTime formats seconds as HH:MM:SS.mmm.
func vttTime(sec float64) string {
	h, m, s, ms := splitTime(sec)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func splitTime(sec float64) (h, m, s, ms int) {
	if sec < 0 {
		sec = 0
	}
	totalMS := int(sec*1000 + 0.5)
	ms = totalMS % 1000
	totalSec := totalMS / 1000
	s = totalSec % 60
	m = (totalSec / 60) % 60
	h = totalSec / 3600
	return h, m, s, ms
}
