package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/mimikastudio/mimika/internal/diag"
	"github.com/mimikastudio/mimika/internal/model"
	"github.com/mimikastudio/mimika/internal/paths"
)

const (
	passMark = "✓"
	failMark = "✗"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime and model checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			p := &paths.Service{}
			failures := 0

			report := func(ok bool, name, detail string) {
				mark := passMark
				if !ok {
					mark = failMark
					failures++
				}
				_, _ = fmt.Fprintf(os.Stdout, "%s %s: %s\n", mark, name, detail)
			}

			home := p.RuntimeHome()
			report(dirWritable(home), "runtime home", home)

			device := diag.ProbeDevice(ctx)
			detail := device.Type
			if device.Error != "" {
				detail = fmt.Sprintf("%s (%s)", device.Type, device.Error)
			}
			report(device.Available, "compute device", detail)

			if path, err := exec.LookPath(cfg.Engines.FFmpegPath); err == nil {
				report(true, "ffmpeg", path)
			} else {
				report(false, "ffmpeg", fmt.Sprintf("%q not on PATH; mp3/m4b output disabled", cfg.Engines.FFmpegPath))
			}

			if path, err := exec.LookPath(cfg.Engines.CosyVoicePython); err == nil {
				report(true, "cosyvoice python", path)
			} else {
				report(false, "cosyvoice python", fmt.Sprintf("%q not on PATH", cfg.Engines.CosyVoicePython))
			}

			if cfg.Engines.ORTLibraryPath != "" {
				_, statErr := os.Stat(cfg.Engines.ORTLibraryPath)
				report(statErr == nil, "onnx runtime", cfg.Engines.ORTLibraryPath)
			} else {
				_, _ = fmt.Fprintf(os.Stdout, "%s onnx runtime: autodetect (set --engines-ort-library-path to pin)\n", passMark)
			}

			// Model presence is informational; a fresh install has nothing
			// downloaded yet.
			registry := model.NewRegistry(p.HubCacheDir())
			for _, m := range model.Catalog() {
				if m.Type != model.AcquireHuggingFace {
					continue
				}
				state := "not downloaded"
				if registry.IsDownloaded(m) {
					state = "downloaded"
				}
				_, _ = fmt.Fprintf(os.Stdout, "  model %s: %s\n", m.Name, state)
			}

			dicta := model.NewDicta(p.DictaModelPath(), "", nil)
			if st := dicta.Status(); st.Installed {
				_, _ = fmt.Fprintf(os.Stdout, "  dicta phonemizer: installed (%s)\n", st.Path)
			} else {
				_, _ = fmt.Fprintln(os.Stdout, "  dicta phonemizer: not installed (needed for Hebrew)")
			}

			if failures > 0 {
				return fmt.Errorf("doctor: %d check(s) failed", failures)
			}
			_, _ = fmt.Fprintln(os.Stdout, "doctor checks passed")
			return nil
		},
	}

	return cmd
}

// dirWritable proves write access by creating and removing a scratch file.
func dirWritable(dir string) bool {
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
