// Package engine implements the three-way diff over the local, remote, and
// cached (baseline) catalogs: it classifies every entry into an action,
// partitions the result into a sync plan, and resolves conflicts by policy.
package engine

import (
	"sort"

	"github.com/sunsync/sunsync/internal/catalog"
)

// Action classifies what must happen to one entry.
type Action int

const (
	ActionNoChange Action = iota
	ActionCreate
	ActionUpdate
	ActionDelete
	ActionConflict
)

func (a Action) String() string {
	switch a {
	case ActionNoChange:
		return "no-change"
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	case ActionConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Direction is the side an operation applies to.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionLocal
	DirectionRemote
	// DirectionBoth marks a convergent update: both sides already hold the
	// new value and only the stale baseline says otherwise.
	DirectionBoth
)

func (d Direction) String() string {
	switch d {
	case DirectionLocal:
		return "local"
	case DirectionRemote:
		return "remote"
	case DirectionBoth:
		return "both"
	default:
		return "none"
	}
}

// FieldConflict is one sync field in contention between local and remote.
type FieldConflict struct {
	Field  string
	Local  string
	Remote string
}

// Classification is the outcome for one entry name.
type Classification struct {
	Name      string
	Action    Action
	Direction Direction
	Fields    []FieldConflict
}

// Classify applies the decision table to one entry across the three sets.
// nil means the entry is absent from that set. The caller has already
// resolved identity; all three pointers refer to the same logical app.
func Classify(name string, local, remote, cached *catalog.Entry) Classification {
	c := Classification{Name: name}
	switch {
	case local == nil && remote == nil:
		// Deleted on both sides, or a name absent everywhere: nothing to do.
		c.Action = ActionNoChange

	case local == nil && remote != nil && cached == nil:
		// New on the remote host; propagate into the local document.
		c.Action = ActionCreate
		c.Direction = DirectionLocal

	case local != nil && remote == nil && cached == nil:
		// New locally; propagate to the remote host.
		c.Action = ActionCreate
		c.Direction = DirectionRemote

	case local == nil && remote != nil && cached != nil:
		// Present at the ancestor, deleted locally: remove from remote.
		c.Action = ActionDelete
		c.Direction = DirectionRemote

	case local != nil && remote == nil && cached != nil:
		// Present at the ancestor, deleted remotely: remove from local.
		c.Action = ActionDelete
		c.Direction = DirectionLocal

	default:
		// Present on both sides. No cached ancestor degrades to a two-way
		// diff: equal sync fields are a no-change, anything else cannot be
		// attributed and is contested below.
		if cached == nil {
			if catalog.SyncFieldsEqual(*local, *remote) {
				c.Action = ActionNoChange
				return c
			}
			c.Action = ActionConflict
			c.Fields = contestedFields(local, remote, nil)
			return c
		}
		localChanged := !catalog.SyncFieldsEqual(*local, *cached)
		remoteChanged := !catalog.SyncFieldsEqual(*remote, *cached)
		switch {
		case !localChanged && !remoteChanged:
			c.Action = ActionNoChange
		case localChanged && !remoteChanged:
			c.Action = ActionUpdate
			c.Direction = DirectionRemote
		case !localChanged && remoteChanged:
			c.Action = ActionUpdate
			c.Direction = DirectionLocal
		default:
			fields := contestedFields(local, remote, cached)
			if len(fields) == 0 {
				// Convergent or disjoint-field edits merge cleanly; only a
				// field changed on both sides to different values conflicts.
				c.Action = ActionUpdate
				c.Direction = DirectionBoth
			} else {
				c.Action = ActionConflict
				c.Fields = fields
			}
		}
	}
	return c
}

// contestedFields lists each sync field changed on both sides to different
// values, in stable field order. A field edited on only one side is not
// contested: the edit wins during the merge. Without an ancestor no edit
// can be attributed, so every differing field is contested.
func contestedFields(local, remote, cached *catalog.Entry) []FieldConflict {
	localValues := catalog.SyncFieldValues(*local)
	remoteValues := catalog.SyncFieldValues(*remote)
	var cachedValues map[string]string
	if cached != nil {
		cachedValues = catalog.SyncFieldValues(*cached)
	}
	var fields []FieldConflict
	for _, name := range catalog.SyncFieldNames {
		if localValues[name] == remoteValues[name] {
			continue
		}
		if cached != nil && (localValues[name] == cachedValues[name] || remoteValues[name] == cachedValues[name]) {
			continue
		}
		fields = append(fields, FieldConflict{
			Field:  name,
			Local:  localValues[name],
			Remote: remoteValues[name],
		})
	}
	return fields
}

// keyEntries indexes entries by normalized name, keeping the first
// occurrence when a document holds duplicates.
func keyEntries(entries []catalog.Entry) map[string]*catalog.Entry {
	keyed := make(map[string]*catalog.Entry, len(entries))
	for i := range entries {
		key := catalog.NormalizeName(entries[i].Name)
		if key == "" {
			continue
		}
		if _, exists := keyed[key]; exists {
			continue
		}
		keyed[key] = &entries[i]
	}
	return keyed
}

// unionKeys returns the sorted union of the keyed sets so classification
// order is deterministic.
func unionKeys(sets ...map[string]*catalog.Entry) []string {
	seen := map[string]struct{}{}
	for _, set := range sets {
		for key := range set {
			seen[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
