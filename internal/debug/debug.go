// Package debug is the opt-in diagnostic log for swarmix processes. When
// active, every component appends structured lines to one file under
// ~/.swarmix/debug/, and worker subprocesses inherit that file through the
// environment so a whole round lands in a single transcript. When inactive
// (the default) every call is a no-op.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agusx1211/swarmix/internal/hexid"
)

// Environment contract between swarmix processes. A logging parent sets
// these for its children; see PropagatedEnv.
const (
	// EnvEnabled turns the logger on ("1", "true", ...) or off ("0", ...).
	EnvEnabled = "SWARMIX_DEBUG_ENABLED"
	// EnvLogPath points at an aggregate log file to append to.
	EnvLogPath = "SWARMIX_DEBUG_LOG_PATH"
	// EnvProcess labels this process in every line it writes.
	EnvProcess = "SWARMIX_DEBUG_PROCESS"
)

var active atomic.Pointer[Logger]

// Logger appends structured diagnostic lines to one file.
type Logger struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	startedAt time.Time
	pid       int
	process   string
}

// Init activates the package logger and returns the log file path. With
// EnvLogPath set it appends to that file (the aggregate a parent process
// opened); otherwise it creates a fresh timestamped file under
// ~/.swarmix/debug/. A second Init returns the first path.
func Init() (string, error) {
	if l := active.Load(); l != nil {
		return l.path, nil
	}

	target, logID, attach, err := logTarget()
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("debug: open log %s: %w", target, err)
	}

	l := &Logger{
		file:      f,
		path:      target,
		startedAt: time.Now(),
		pid:       os.Getpid(),
		process:   processLabel(),
	}
	if !active.CompareAndSwap(nil, l) {
		f.Close()
		return active.Load().path, nil
	}
	l.writeBanner(logID, attach)
	return target, nil
}

// Close writes the closing marker and releases the log file. Safe to call
// without Init.
func Close() {
	l := active.Swap(nil)
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.file, "\n=== DEBUG LOG CLOSED === (pid=%d process=%s duration=%s)\n",
		l.pid, l.process, time.Since(l.startedAt))
	l.file.Close()
}

// Path returns the active log file path, or "" when logging is off.
func Path() string {
	if l := active.Load(); l != nil {
		return l.path
	}
	return ""
}

// ShouldEnableFromEnv reports whether inherited environment variables ask
// for the logger. An explicit EnvEnabled toggle wins; otherwise a non-empty
// EnvLogPath is the signal.
func ShouldEnableFromEnv() bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(EnvEnabled))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return strings.TrimSpace(os.Getenv(EnvLogPath)) != ""
}

// PropagatedEnv overlays the debug contract onto baseEnv so a child process
// appends to this process's log file. baseEnv comes back unchanged when
// logging is off.
func PropagatedEnv(baseEnv []string, process string) []string {
	logPath := Path()
	if logPath == "" {
		return baseEnv
	}
	env := overlayEnv(append([]string(nil), baseEnv...), EnvEnabled, "1")
	env = overlayEnv(env, EnvLogPath, logPath)
	if p := strings.TrimSpace(process); p != "" {
		env = overlayEnv(env, EnvProcess, p)
	}
	return env
}

// Log writes one line under the given component. No-op when logging is off.
func Log(component, msg string) {
	if l := active.Load(); l != nil {
		l.write(component, msg)
	}
}

// Logf is Log with fmt.Sprintf formatting.
func Logf(component, format string, args ...any) {
	if l := active.Load(); l != nil {
		l.write(component, fmt.Sprintf(format, args...))
	}
}

// LogKV appends key=value context pairs to msg:
//
//	debug.LogKV("planner", "roster ready", "run_id", id, "agents", 4)
func LogKV(component, msg string, kvs ...any) {
	l := active.Load()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(kvs); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kvs[i], kvs[i+1])
	}
	l.write(component, b.String())
}

func (l *Logger) write(component, msg string) {
	now := time.Now()
	line := fmt.Sprintf("%s +%-11s %d %-16s g%-5d [%-12s] %-34s | %s\n",
		now.Format("15:04:05.000000"),
		now.Sub(l.startedAt).Truncate(time.Microsecond),
		l.pid,
		l.process,
		goroutineID(),
		component,
		shortCaller(3),
		msg,
	)
	l.mu.Lock()
	l.file.WriteString(line)
	l.mu.Unlock()
}

func (l *Logger) writeBanner(logID string, attach bool) {
	var b strings.Builder
	if attach {
		b.WriteString("\n=== SWARMIX DEBUG PROCESS ATTACHED ===\n")
	} else {
		b.WriteString("=== SWARMIX DEBUG LOG ===\n")
	}
	fmt.Fprintf(&b, "Started: %s\nPID: %d\nProcess: %s\n",
		l.startedAt.Format(time.RFC3339Nano), l.pid, l.process)
	if !attach {
		fmt.Fprintf(&b, "GOMAXPROCS: %d\nLog ID: %s\n", runtime.GOMAXPROCS(0), logID)
	}
	fmt.Fprintf(&b, "File: %s\n===\n\n", l.path)

	l.mu.Lock()
	l.file.WriteString(b.String())
	l.mu.Unlock()
}

// logTarget picks the file to log into: the inherited aggregate when
// EnvLogPath is set, otherwise a fresh file under ~/.swarmix/debug/. logID
// is "" when attaching to an inherited file.
func logTarget() (path, logID string, attach bool, err error) {
	if inherited := strings.TrimSpace(os.Getenv(EnvLogPath)); inherited != "" {
		if dir := filepath.Dir(inherited); dir != "." && dir != string(filepath.Separator) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", "", true, fmt.Errorf("debug: create dir %s: %w", dir, err)
			}
		}
		return inherited, "", true, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", false, fmt.Errorf("debug: user home dir: %w", err)
	}
	dir := filepath.Join(home, ".swarmix", "debug")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", false, fmt.Errorf("debug: create dir %s: %w", dir, err)
	}

	logID = hexid.New()
	name := fmt.Sprintf("swarmix_%s_%s.log", time.Now().Format("20060102-150405"), logID)
	return filepath.Join(dir, name), logID, false, nil
}

// processLabel names this process in log lines: the inherited EnvProcess
// label, or the binary name plus its first subcommand.
func processLabel() string {
	if p := strings.TrimSpace(os.Getenv(EnvProcess)); p != "" {
		return p
	}
	label := filepath.Base(os.Args[0])
	for _, arg := range os.Args[1:] {
		arg = strings.TrimSpace(arg)
		if arg == "" || strings.HasPrefix(arg, "-") {
			continue
		}
		return label + ":" + arg
	}
	return label
}

// shortCaller renders the frame skip levels up as file.go:line, trimmed to
// the path inside this module.
func shortCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "??:0"
	}
	for _, root := range []string{"/internal/", "/cmd/", "/pkg/"} {
		if i := strings.LastIndex(file, root); i >= 0 {
			file = file[i+1:]
			break
		}
	}
	return file + ":" + strconv.Itoa(line)
}

func overlayEnv(env []string, key, value string) []string {
	entry := key + "=" + value
	for i, kv := range env {
		if strings.HasPrefix(kv, key+"=") {
			env[i] = entry
			return env
		}
	}
	return append(env, entry)
}

// goroutineID parses the goroutine id out of runtime.Stack's first line.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(string(buf[:n]))
	if len(fields) < 2 {
		return 0
	}
	id, _ := strconv.ParseInt(fields[1], 10, 64)
	return id
}
