package buildinfo

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

const devVersion = "0.1.0"

// Set by the linker via -ldflags "-X ...".
var (
	Version    = devVersion
	CommitHash = ""
	BuildDate  = ""
)

// Info is the resolved build metadata shown by version commands and banners.
type Info struct {
	Version    string
	CommitHash string
	BuildDate  string
}

// Current resolves metadata in order: linker overrides, then module build
// settings, then "unknown".
func Current() Info {
	stamp := readVCS()

	version := strings.TrimSpace(Version)
	if version == "" || version == devVersion {
		if stamp.module != "" && stamp.module != "(devel)" {
			version = stamp.module
		}
	}

	commit := strings.TrimSpace(CommitHash)
	if commit == "" && stamp.revision != "" {
		commit = stamp.revision
		if stamp.dirty && !strings.HasSuffix(commit, "-dirty") {
			commit += "-dirty"
		}
	}

	date := strings.TrimSpace(BuildDate)
	if date == "" {
		date = stamp.time
	}
	if t, err := time.Parse(time.RFC3339, date); err == nil {
		date = t.UTC().Format("2006-01-02 15:04:05 UTC")
	}

	return Info{
		Version:    orUnknown(version),
		CommitHash: orUnknown(commit),
		BuildDate:  orUnknown(date),
	}
}

type vcsStamp struct {
	module   string
	revision string
	time     string
	dirty    bool
}

func readVCS() vcsStamp {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return vcsStamp{}
	}
	stamp := vcsStamp{module: bi.Main.Version}
	for _, s := range bi.Settings {
		v := strings.TrimSpace(s.Value)
		switch s.Key {
		case "vcs.revision":
			stamp.revision = v
		case "vcs.time":
			stamp.time = v
		case "vcs.modified":
			stamp.dirty = strings.EqualFold(v, "true")
		}
	}
	return stamp
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// ShortCommit trims the hash for one-line displays, keeping a -dirty suffix.
func (i Info) ShortCommit() string {
	h, dirty := strings.CutSuffix(i.CommitHash, "-dirty")
	if len(h) > 12 {
		h = h[:12]
	}
	if dirty {
		return h + "-dirty"
	}
	return h
}

// String renders the one-line version banner.
func (i Info) String() string {
	return fmt.Sprintf("swarmix %s (commit %s, built %s)", i.Version, i.ShortCommit(), i.BuildDate)
}
