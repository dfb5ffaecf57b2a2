package engine

import (
	"fmt"
	"strings"

	"github.com/sunsync/sunsync/internal/catalog"
)

// Operation is one planned change against one side.
type Operation struct {
	Action Action
	Name   string
	// Local and Remote point at the entries as fetched; nil when absent on
	// that side.
	Local  *catalog.Entry
	Remote *catalog.Entry
	// Result carries the authoritative sync-field values for this
	// operation: the source side for a one-directional update or create,
	// the field-level merge for an update applied to both sides.
	Result *catalog.Entry
}

// Conflict is an entry withheld from both partitions pending resolution.
type Conflict struct {
	Name   string
	Local  catalog.Entry
	Remote catalog.Entry
	Fields []FieldConflict
}

// Plan is the derived, never-persisted outcome of one engine run. An entry
// name appears in at most one of the three partitions, except that a
// convergent update contributes an operation to both.
type Plan struct {
	LocalOps  []Operation
	RemoteOps []Operation
	Conflicts []Conflict
	Unchanged int
}

// Build classifies every name in the union of the three keyed sets and
// partitions the results. Local entries are keyed directly by normalized
// name; identity ambiguity is assumed already resolved.
func Build(local, remote, cached []catalog.Entry) Plan {
	localSet := keyEntries(local)
	remoteSet := keyEntries(remote)
	cachedSet := keyEntries(cached)

	var plan Plan
	for _, key := range unionKeys(localSet, remoteSet, cachedSet) {
		c := Classify(key, localSet[key], remoteSet[key], cachedSet[key])
		displayName := displayNameFor(localSet[key], remoteSet[key], cachedSet[key], key)
		op := Operation{
			Action: c.Action,
			Name:   displayName,
			Local:  cloneEntry(localSet[key]),
			Remote: cloneEntry(remoteSet[key]),
		}
		switch c.Action {
		case ActionNoChange:
			plan.Unchanged++
		case ActionConflict:
			plan.Conflicts = append(plan.Conflicts, Conflict{
				Name:   displayName,
				Local:  localSet[key].Clone(),
				Remote: remoteSet[key].Clone(),
				Fields: c.Fields,
			})
		default:
			switch c.Direction {
			case DirectionLocal:
				op.Result = op.Remote
				plan.LocalOps = append(plan.LocalOps, op)
			case DirectionRemote:
				op.Result = op.Local
				plan.RemoteOps = append(plan.RemoteOps, op)
			case DirectionBoth:
				op.Result = mergedEntry(localSet[key], remoteSet[key], cachedSet[key])
				plan.LocalOps = append(plan.LocalOps, op)
				plan.RemoteOps = append(plan.RemoteOps, op)
			}
		}
	}
	return plan
}

// Counts returns the partition sizes: operations toward local, toward
// remote, unresolved conflicts, and unchanged entries.
func (p Plan) Counts() (localOps, remoteOps, conflicts, unchanged int) {
	return len(p.LocalOps), len(p.RemoteOps), len(p.Conflicts), p.Unchanged
}

// Empty reports whether the plan carries no work at all.
func (p Plan) Empty() bool {
	return len(p.LocalOps) == 0 && len(p.RemoteOps) == 0 && len(p.Conflicts) == 0
}

// Render produces the stable human-readable plan block used by dry-run
// output and the run summary.
func (p Plan) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "plan: %d to remote, %d to local, %d in conflict, %d unchanged\n",
		len(p.RemoteOps), len(p.LocalOps), len(p.Conflicts), p.Unchanged)
	for _, op := range p.RemoteOps {
		fmt.Fprintf(&b, "  -> remote %s %q\n", op.Action, op.Name)
	}
	for _, op := range p.LocalOps {
		fmt.Fprintf(&b, "  <- local %s %q\n", op.Action, op.Name)
	}
	for _, c := range p.Conflicts {
		fmt.Fprintf(&b, "  !! conflict %q:\n", c.Name)
		for _, f := range c.Fields {
			fmt.Fprintf(&b, "       %s: local=%s remote=%s\n", f.Field, f.Local, f.Remote)
		}
	}
	return b.String()
}

func displayNameFor(local, remote, cached *catalog.Entry, key string) string {
	switch {
	case remote != nil:
		return remote.Name
	case local != nil:
		return local.Name
	case cached != nil:
		return cached.Name
	default:
		return key
	}
}

func cloneEntry(e *catalog.Entry) *catalog.Entry {
	if e == nil {
		return nil
	}
	cloned := e.Clone()
	return &cloned
}

// mergedEntry combines divergent-but-compatible copies. With no ancestor
// the sides are value-identical by construction, so local serves as is.
func mergedEntry(local, remote, cached *catalog.Entry) *catalog.Entry {
	if cached == nil {
		return cloneEntry(local)
	}
	merged := catalog.MergeSyncFields(*local, *remote, *cached)
	return &merged
}
