package catalog

import (
	"encoding/json"
	"strconv"
	"strings"
)

// PrepCmd is one pre-launch command pair executed before an app starts
// (do) and after it exits (undo).
type PrepCmd struct {
	Do       string `json:"do"`
	Undo     string `json:"undo,omitempty"`
	Elevated bool   `json:"elevated,omitempty"`
}

// Entry is one launchable application definition. Identity is the display
// name; the local document carries no stable cross-system key.
type Entry struct {
	Name                 string    `json:"name"`
	Cmd                  string    `json:"cmd,omitempty"`
	Detached             []string  `json:"detached,omitempty"`
	Output               string    `json:"output,omitempty"`
	Elevated             bool      `json:"elevated,omitempty"`
	AutoDetach           bool      `json:"auto-detach,omitempty"`
	WaitAll              bool      `json:"wait-all,omitempty"`
	ExitTimeout          int       `json:"exit-timeout,omitempty"`
	ExcludeGlobalPrepCmd bool      `json:"exclude-global-prep-cmd,omitempty"`
	PrepCmds             []PrepCmd `json:"prep-cmd,omitempty"`

	// Remote-only bookkeeping, preserved verbatim and never diffed.
	UUID        string    `json:"uuid,omitempty"`
	ImagePath   string    `json:"image-path,omitempty"`
	PerClient   bool      `json:"per-client,omitempty"`
	ScaleFactor int       `json:"scale-factor,omitempty"`
	Gamepad     string    `json:"gamepad,omitempty"`
	StateCmds   []PrepCmd `json:"state-cmd,omitempty"`
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	out := e
	if e.Detached != nil {
		out.Detached = append([]string(nil), e.Detached...)
	}
	if e.PrepCmds != nil {
		out.PrepCmds = append([]PrepCmd(nil), e.PrepCmds...)
	}
	if e.StateCmds != nil {
		out.StateCmds = append([]PrepCmd(nil), e.StateCmds...)
	}
	return out
}

// NormalizeName reduces a display name to its comparison form: lower-cased,
// quotes stripped, hyphens treated as spaces, whitespace collapsed.
// Two entries whose normalized names are identical are the same logical app.
func NormalizeName(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		switch r {
		case '\'', '`', '"', '‘', '’', '“', '”':
			// dropped
		case '-', '–', '—':
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// SyncFieldNames lists the entry attributes that participate in change
// detection and merging, in stable reporting order.
var SyncFieldNames = []string{
	"cmd",
	"detached",
	"output",
	"elevated",
	"auto-detach",
	"wait-all",
	"exit-timeout",
	"exclude-global-prep-cmd",
	"prep-cmd",
}

// SyncFieldValues renders each sync field of the entry to a stable string.
// The rendering is used both for deep equality over the sync-field subset
// and for conflict reporting.
func SyncFieldValues(e Entry) map[string]string {
	return map[string]string{
		"cmd":                     e.Cmd,
		"detached":                renderStrings(e.Detached),
		"output":                  e.Output,
		"elevated":                strconv.FormatBool(e.Elevated),
		"auto-detach":             strconv.FormatBool(e.AutoDetach),
		"wait-all":                strconv.FormatBool(e.WaitAll),
		"exit-timeout":            strconv.Itoa(e.ExitTimeout),
		"exclude-global-prep-cmd": strconv.FormatBool(e.ExcludeGlobalPrepCmd),
		"prep-cmd":                renderPrepCmds(e.PrepCmds),
	}
}

// SyncFieldsEqual reports deep equality over the sync-field subset only.
// Remote-only fields never factor into change detection.
func SyncFieldsEqual(a, b Entry) bool {
	av := SyncFieldValues(a)
	bv := SyncFieldValues(b)
	for _, field := range SyncFieldNames {
		if av[field] != bv[field] {
			return false
		}
	}
	return true
}

// OverlaySyncFields copies every sync field from src onto dst, including
// zero values: a sync field absent on the source side is cleared on the
// destination rather than left stale. Name and remote-only fields are
// untouched.
func OverlaySyncFields(dst *Entry, src Entry) {
	dst.Cmd = src.Cmd
	dst.Detached = append([]string(nil), src.Detached...)
	if len(dst.Detached) == 0 {
		dst.Detached = nil
	}
	dst.Output = src.Output
	dst.Elevated = src.Elevated
	dst.AutoDetach = src.AutoDetach
	dst.WaitAll = src.WaitAll
	dst.ExitTimeout = src.ExitTimeout
	dst.ExcludeGlobalPrepCmd = src.ExcludeGlobalPrepCmd
	dst.PrepCmds = append([]PrepCmd(nil), src.PrepCmds...)
	if len(dst.PrepCmds) == 0 {
		dst.PrepCmds = nil
	}
}

// MergeSyncFields three-way merges the sync fields of two divergent copies
// of the same entry: each field keeps the local value when local changed it
// relative to the ancestor, and takes the remote value otherwise. Callers
// must have established that no field was changed on both sides to
// different values. Identity and remote-only fields follow local.
func MergeSyncFields(local, remote, cached Entry) Entry {
	out := local.Clone()
	localValues := SyncFieldValues(local)
	cachedValues := SyncFieldValues(cached)
	for _, field := range SyncFieldNames {
		if localValues[field] != cachedValues[field] {
			continue
		}
		switch field {
		case "cmd":
			out.Cmd = remote.Cmd
		case "detached":
			out.Detached = append([]string(nil), remote.Detached...)
			if len(out.Detached) == 0 {
				out.Detached = nil
			}
		case "output":
			out.Output = remote.Output
		case "elevated":
			out.Elevated = remote.Elevated
		case "auto-detach":
			out.AutoDetach = remote.AutoDetach
		case "wait-all":
			out.WaitAll = remote.WaitAll
		case "exit-timeout":
			out.ExitTimeout = remote.ExitTimeout
		case "exclude-global-prep-cmd":
			out.ExcludeGlobalPrepCmd = remote.ExcludeGlobalPrepCmd
		case "prep-cmd":
			out.PrepCmds = append([]PrepCmd(nil), remote.PrepCmds...)
			if len(out.PrepCmds) == 0 {
				out.PrepCmds = nil
			}
		}
	}
	return out
}

// StripRemoteFields returns a copy of the entry without remote-only
// bookkeeping, suitable for insertion into the local document.
func StripRemoteFields(e Entry) Entry {
	out := e.Clone()
	out.UUID = ""
	out.ImagePath = ""
	out.PerClient = false
	out.ScaleFactor = 0
	out.Gamepad = ""
	out.StateCmds = nil
	return out
}

func renderStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return strings.Join(values, ",")
	}
	return string(data)
}

func renderPrepCmds(cmds []PrepCmd) string {
	if len(cmds) == 0 {
		return "[]"
	}
	data, err := json.Marshal(cmds)
	if err != nil {
		return strconv.Itoa(len(cmds))
	}
	return string(data)
}
