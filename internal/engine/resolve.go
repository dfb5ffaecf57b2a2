package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Policy decides what happens to conflicting entries. Resolution is always
// whole-entry: merging field-by-field could tear apart dependent fields
// (detached URIs that only make sense with their launch command).
type Policy int

const (
	// PolicyManual surfaces the conflict unresolved; neither side is
	// mutated for that entry this run.
	PolicyManual Policy = iota
	// PolicyPreferLocal re-classifies the conflict as an update pushed to
	// the remote host.
	PolicyPreferLocal
	// PolicyPreferRemote re-classifies the conflict as an update merged
	// into the local document.
	PolicyPreferRemote
)

func (p Policy) String() string {
	switch p {
	case PolicyManual:
		return "manual"
	case PolicyPreferLocal:
		return "local-wins"
	case PolicyPreferRemote:
		return "server-wins"
	default:
		return "unknown"
	}
}

var ErrUnknownPolicy = errors.New("unknown conflict-resolution policy")

// ParsePolicy maps the CLI spelling to a policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "manual":
		return PolicyManual, nil
	case "local-wins", "local", "prefer-local":
		return PolicyPreferLocal, nil
	case "server-wins", "remote-wins", "server", "remote", "prefer-remote":
		return PolicyPreferRemote, nil
	default:
		return PolicyManual, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// Resolve turns one conflict into zero or one operation. ok is false under
// the manual policy: the conflict stays withheld from both partitions.
func Resolve(c Conflict, policy Policy) (Operation, Direction, bool) {
	local := c.Local.Clone()
	remote := c.Remote.Clone()
	op := Operation{
		Action: ActionUpdate,
		Name:   c.Name,
		Local:  &local,
		Remote: &remote,
	}
	switch policy {
	case PolicyPreferLocal:
		op.Result = op.Local
		return op, DirectionRemote, true
	case PolicyPreferRemote:
		op.Result = op.Remote
		return op, DirectionLocal, true
	default:
		return Operation{}, DirectionNone, false
	}
}
