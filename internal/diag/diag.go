// Package diag reports system information, resource usage and logs for the
// diagnostics endpoints. Device detection runs in a separate subprocess so
// a crashing native library can never take the service down with it.
package diag

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// ProbeArg is the argv[1] sentinel that switches the binary into device
// probe mode before any other initialization runs.
const ProbeArg = "__probe-device"

// probeTimeout bounds the device probe subprocess.
const probeTimeout = 3 * time.Second

// DeviceInfo describes the detected compute device.
type DeviceInfo struct {
	Type      string `json:"type"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// SystemInfo is the static system description.
type SystemInfo struct {
	Service   string     `json:"service"`
	Version   string     `json:"version"`
	OS        string     `json:"os"`
	Arch      string     `json:"arch"`
	GoVersion string     `json:"go_version"`
	NumCPU    int        `json:"num_cpu"`
	Device    DeviceInfo `json:"device"`
}

// ResourceStats is a point-in-time resource snapshot.
type ResourceStats struct {
	CPUPercent float64 `json:"cpu_percent"`
	RAMUsedGB  float64 `json:"ram_used_gb"`
	RAMTotalGB float64 `json:"ram_total_gb"`
	RAMPercent float64 `json:"ram_percent"`
	Goroutines int     `json:"goroutines"`
}

// Info gathers the static description, probing the device out of process.
func Info(ctx context.Context, version string) SystemInfo {
	return SystemInfo{
		Service:   "mimikastudio",
		Version:   version,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		GoVersion: runtime.Version(),
		NumCPU:    runtime.NumCPU(),
		Device:    ProbeDevice(ctx),
	}
}

// ProbeDevice re-executes this binary in probe mode and parses its output.
// Any failure degrades to a plain CPU answer instead of propagating.
func ProbeDevice(ctx context.Context) DeviceInfo {
	exe, err := os.Executable()
	if err != nil {
		return DeviceInfo{Type: "cpu", Available: true, Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, exe, ProbeArg).Output()
	if err != nil {
		return DeviceInfo{Type: "cpu", Available: true, Error: fmt.Sprintf("probe failed: %v", err)}
	}

	var info DeviceInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return DeviceInfo{Type: "cpu", Available: true, Error: fmt.Sprintf("probe output unreadable: %v", err)}
	}
	return info
}

// RunProbe is the subprocess side of ProbeDevice. It prints a DeviceInfo
// JSON object on stdout and never returns an error to the parent beyond a
// non-JSON crash, which the parent tolerates.
func RunProbe() {
	info := detectDevice()
	json.NewEncoder(os.Stdout).Encode(info)
}

// detectDevice names the best local compute device. The probe runs isolated
// so a faulty accelerator driver only kills the child.
func detectDevice() DeviceInfo {
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return DeviceInfo{Type: "metal", Available: true}
	}
	for _, path := range []string{"/dev/nvidia0", "/dev/nvidiactl"} {
		if _, err := os.Stat(path); err == nil {
			return DeviceInfo{Type: "cuda", Available: true}
		}
	}
	return DeviceInfo{Type: "cpu", Available: true}
}

// Stats samples CPU and memory usage.
func Stats(ctx context.Context) (ResourceStats, error) {
	stats := ResourceStats{Goroutines: runtime.NumGoroutine()}

	percents, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false)
	if err == nil && len(percents) > 0 {
		stats.CPUPercent = round1(percents[0])
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return stats, fmt.Errorf("reading memory stats: %w", err)
	}
	const gb = 1024 * 1024 * 1024
	stats.RAMUsedGB = round1(float64(vm.Used) / gb)
	stats.RAMTotalGB = round1(float64(vm.Total) / gb)
	stats.RAMPercent = round1(vm.UsedPercent)
	return stats, nil
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

// LogLine is one tail entry tagged with the file it came from.
type LogLine struct {
	Source string `json:"source"`
	Line   string `json:"line"`
}

// TailLogs reads the last maxLines lines across every *.log file in dir,
// newest files first. Missing or unreadable files are skipped.
func TailLogs(dir string, maxLines int) []LogLine {
	if maxLines <= 0 {
		maxLines = 200
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "*.log"))
	sort.Slice(matches, func(i, j int) bool {
		si, erri := os.Stat(matches[i])
		sj, errj := os.Stat(matches[j])
		if erri != nil || errj != nil {
			return matches[i] < matches[j]
		}
		return si.ModTime().After(sj.ModTime())
	})

	var out []LogLine
	for _, path := range matches {
		if len(out) >= maxLines {
			break
		}
		for _, line := range tailFile(path, maxLines-len(out)) {
			out = append(out, LogLine{Source: filepath.Base(path), Line: line})
		}
	}
	return out
}

// tailFile returns up to n trailing lines of path.
func tailFile(path string, n int) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines
}
