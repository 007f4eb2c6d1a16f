// Package detect discovers the worker CLIs and supporting tools installed
// on this machine. The doctor command uses it to explain why a run would or
// would not work here.
package detect

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/agusx1211/swarmix/internal/worker"
)

const versionProbeTimeout = 1800 * time.Millisecond

var semverRE = regexp.MustCompile(`(?i)\bv?(\d+\.\d+(?:\.\d+)?(?:[-+][0-9A-Za-z.-]+)?)\b`)

// DetectedTool describes an installed CLI relevant to running rounds.
type DetectedTool struct {
	Name            string   `json:"name"`
	Path            string   `json:"path"`
	Version         string   `json:"version"`
	Source          string   `json:"source,omitempty"` // "config", "env", "path"
	SupportedModels []string `json:"supported_models,omitempty"`
}

// Scan reports every known worker CLI found on this machine. configuredBin,
// when non-empty, is checked first for each worker and attributed to the
// configuration.
func Scan(configuredBin string) []DetectedTool {
	var out []DetectedTool
	for _, name := range worker.Names() {
		info, ok := worker.InfoFor(name)
		if !ok {
			continue
		}
		if d, found := detectWorker(info, configuredBin); found {
			out = append(out, d)
		}
	}
	return out
}

// Tool locates a single binary by name, PATH first, then the usual install
// directories.
func Tool(name string) (DetectedTool, bool) {
	path, ok := resolveBinaryPath(name)
	if !ok {
		return DetectedTool{}, false
	}
	return DetectedTool{
		Name:    name,
		Path:    path,
		Version: detectVersion(path),
		Source:  "path",
	}, true
}

func detectWorker(info worker.Info, configuredBin string) (DetectedTool, bool) {
	type candidate struct {
		bin    string
		source string
	}
	var cands []candidate
	if configuredBin != "" {
		cands = append(cands, candidate{configuredBin, "config"})
	}
	if info.Name == "codex" {
		if env := os.Getenv("CODEX_BIN"); env != "" {
			cands = append(cands, candidate{env, "env"})
		}
	}
	cands = append(cands, candidate{info.Binary, "path"})

	for _, c := range cands {
		path, ok := resolveBinaryPath(c.bin)
		if !ok {
			continue
		}
		return DetectedTool{
			Name:            info.Name,
			Path:            path,
			Version:         detectVersion(path),
			Source:          c.source,
			SupportedModels: append([]string(nil), info.SupportedModels...),
		}, true
	}
	return DetectedTool{}, false
}

// resolveBinaryPath probes PATH, then the literal path for absolute names,
// then the usual install directories.
func resolveBinaryPath(binary string) (string, bool) {
	if p, err := exec.LookPath(binary); err == nil {
		if real, ok := executableAt(p); ok {
			return real, true
		}
	}
	if filepath.IsAbs(binary) {
		if real, ok := executableAt(binary); ok {
			return real, true
		}
	}
	for _, dir := range installDirs() {
		if real, ok := executableAt(filepath.Join(dir, binary)); ok {
			return real, true
		}
	}
	return "", false
}

func installDirs() []string {
	dirs := []string{
		"/usr/local/bin",
		"/usr/bin",
		"/opt/homebrew/bin",
		"/opt/local/bin",
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		dirs = append(dirs,
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, "bin"),
			filepath.Join(home, ".npm-global", "bin"),
		)
	}

	seen := make(map[string]bool, len(dirs))
	out := dirs[:0]
	for _, dir := range dirs {
		if dir = strings.TrimSpace(dir); dir != "" && !seen[dir] {
			seen[dir] = true
			out = append(out, dir)
		}
	}
	return out
}

// executableAt reports the resolved absolute path if path is an executable
// file. On Windows the .exe suffix is tried when missing.
func executableAt(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	if runtime.GOOS == "windows" && !strings.HasSuffix(strings.ToLower(path), ".exe") {
		if _, err := os.Stat(path + ".exe"); err == nil {
			path += ".exe"
		}
	}

	fi, err := os.Stat(path)
	switch {
	case err != nil || fi.IsDir():
		return "", false
	case runtime.GOOS != "windows" && fi.Mode()&0111 == 0:
		return "", false
	}

	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path, true
}

func detectVersion(bin string) string {
	for _, arg := range []string{"--version", "-v", "version"} {
		out, err := probeVersion(bin, arg)
		if out == "" && err != nil {
			continue
		}
		if v := parseVersion(out); v != "" {
			return v
		}
	}
	return "unknown"
}

func probeVersion(bin, arg string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), versionProbeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, bin, arg).CombinedOutput()
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	return strings.TrimSpace(string(out)), err
}

// parseVersion pulls a semver-looking token out of probe output, falling
// back to the trimmed first line.
func parseVersion(output string) string {
	output = strings.TrimSpace(output)
	if m := semverRE.FindStringSubmatch(output); len(m) > 1 {
		return m[1]
	}

	line, _, _ := strings.Cut(output, "\n")
	line = strings.TrimSpace(line)
	if len(line) > 48 {
		line = line[:48]
	}
	return line
}
