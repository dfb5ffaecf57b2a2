// Package syncer orchestrates one reconciliation pass: load the local
// catalog, fetch the remote catalog, load the baseline, classify, resolve
// conflicts, apply both partitions, and refresh the baseline. The last
// step happens only after a pass with zero errors.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/sunsync/sunsync/internal/baseline"
	"github.com/sunsync/sunsync/internal/catalog"
	"github.com/sunsync/sunsync/internal/engine"
	"github.com/sunsync/sunsync/internal/match"
	"github.com/sunsync/sunsync/internal/remote"
)

var ErrApply = errors.New("apply failed")

// ApplyError records a failure applying one entry's operation. It is
// collected into the run's error list and never halts remaining entries.
type ApplyError struct {
	Name      string
	Operation string
	Err       error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Operation, e.Name, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

func (e *ApplyError) Is(target error) bool {
	return target == ErrApply
}

type Options struct {
	Catalog  *catalog.Store
	Remote   remote.Client
	Baseline baseline.Store
	Policy   engine.Policy
	// TwoWay enables the three-way engine; otherwise the legacy one-way
	// push-only sync runs.
	TwoWay bool
	// DryRun computes and reports the full plan but suppresses every write:
	// remote pushes, the local file, and the baseline cache.
	DryRun  bool
	Matcher match.Strategy
	Logger  log.FieldLogger
	Clock   clockwork.Clock
	// ResolvePrompt, when set, decides each conflict under the manual
	// policy. Returning PolicyManual leaves the conflict unresolved.
	ResolvePrompt func(engine.Conflict) (engine.Policy, error)
}

type Syncer struct {
	catalog       *catalog.Store
	remote        remote.Client
	baseline      baseline.Store
	policy        engine.Policy
	twoWay        bool
	dryRun        bool
	matcher       match.Strategy
	logger        log.FieldLogger
	clock         clockwork.Clock
	resolvePrompt func(engine.Conflict) (engine.Policy, error)
}

func New(opts Options) (*Syncer, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("catalog store is required")
	}
	if opts.Remote == nil {
		return nil, fmt.Errorf("remote client is required")
	}
	if opts.Baseline == nil && opts.TwoWay {
		return nil, fmt.Errorf("baseline store is required for two-way sync")
	}
	matcher := opts.Matcher
	if matcher == nil {
		matcher = match.NameMatcher{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Syncer{
		catalog:       opts.Catalog,
		remote:        opts.Remote,
		baseline:      opts.Baseline,
		policy:        opts.Policy,
		twoWay:        opts.TwoWay,
		dryRun:        opts.DryRun,
		matcher:       matcher,
		logger:        logger,
		clock:         clock,
		resolvePrompt: opts.ResolvePrompt,
	}, nil
}

// Summary is the user-visible outcome of one run. A non-empty error list
// means a non-zero process exit, without suppressing partial progress.
type Summary struct {
	Plan          engine.Plan
	RemoteApplied int
	LocalApplied  int
	Unresolved    int
	DryRun        bool
	Errors        []error
}

// ErrorMessages flattens the accumulated errors for reporting.
func (s *Summary) ErrorMessages() []string {
	messages := make([]string, 0, len(s.Errors))
	for _, err := range s.Errors {
		messages = append(messages, err.Error())
	}
	return messages
}

// Run executes one sync pass to completion. Terminal per-entry failures
// are aggregated into the summary; only failures that make classification
// impossible (local document unreadable, remote unreachable) return an
// error directly.
func (s *Syncer) Run(ctx context.Context) (*Summary, error) {
	if !s.twoWay {
		return s.runOneWay(ctx)
	}
	return s.runTwoWay(ctx)
}

func (s *Syncer) runTwoWay(ctx context.Context) (*Summary, error) {
	doc, err := s.catalog.Load()
	if err != nil {
		return nil, err
	}
	remoteApps, err := s.remote.FetchApps(ctx)
	if err != nil {
		return nil, err
	}
	cachedApps := s.loadBaseline()

	plan := engine.Build(doc.Apps, remoteApps, cachedApps)
	summary := &Summary{Plan: plan, DryRun: s.dryRun}

	localOps, remoteOps := s.resolveConflicts(plan, summary)
	localOps = append(append([]engine.Operation(nil), plan.LocalOps...), localOps...)
	remoteOps = append(append([]engine.Operation(nil), plan.RemoteOps...), remoteOps...)

	remoteState := s.applyRemote(ctx, remoteApps, remoteOps, summary)
	nextApps := s.applyLocal(doc.Apps, localOps, summary)

	if !s.dryRun && summary.LocalApplied > 0 {
		if err := s.catalog.Save(&catalog.Document{Apps: nextApps}); err != nil {
			summary.Errors = append(summary.Errors, fmt.Errorf("write local catalog: %w", err))
		}
	}

	// The baseline is refreshed only when the whole pass accumulated zero
	// errors, so the next run never treats a partially-failed sync as
	// fully reconciled.
	if !s.dryRun && len(summary.Errors) == 0 {
		snap := baseline.New(remoteState, s.clock.Now().UnixMilli())
		if err := s.baseline.Save(snap); err != nil {
			summary.Errors = append(summary.Errors, fmt.Errorf("write baseline cache: %w", err))
		}
	}
	return summary, nil
}

// loadBaseline tolerates absence and corruption: both degrade to "no
// baseline", logged but never fatal.
func (s *Syncer) loadBaseline() []catalog.Entry {
	if s.baseline == nil {
		return nil
	}
	snap, err := s.baseline.Load()
	if err != nil {
		s.logger.WithError(err).Warn("baseline cache unreadable; syncing without ancestor")
		return nil
	}
	if snap == nil {
		s.logger.Debug("no baseline cache; first run or cache cleared")
		return nil
	}
	if err := snap.Verify(); err != nil {
		s.logger.WithError(err).Warn("baseline cache failed verification; syncing without ancestor")
		return nil
	}
	return snap.Apps
}

// resolveConflicts applies the configured policy (or the interactive
// prompt) to each conflict, returning the extra operations per partition.
// Unresolved conflicts stay withheld from both sides for this run.
func (s *Syncer) resolveConflicts(plan engine.Plan, summary *Summary) (localOps, remoteOps []engine.Operation) {
	for _, conflict := range plan.Conflicts {
		policy := s.policy
		if policy == engine.PolicyManual && s.resolvePrompt != nil {
			chosen, err := s.resolvePrompt(conflict)
			if err != nil {
				summary.Errors = append(summary.Errors, fmt.Errorf("resolve %q: %w", conflict.Name, err))
				summary.Unresolved++
				continue
			}
			policy = chosen
		}
		op, direction, ok := engine.Resolve(conflict, policy)
		if !ok {
			s.logger.WithField("name", conflict.Name).Info("conflict deferred to user")
			summary.Unresolved++
			continue
		}
		switch direction {
		case engine.DirectionLocal:
			localOps = append(localOps, op)
		case engine.DirectionRemote:
			remoteOps = append(remoteOps, op)
		}
	}
	return localOps, remoteOps
}

// applyRemote pushes the remote-direction partition and returns the
// expected remote state after the pass, used as the next baseline. Creates
// and updates apply in plan order; deletes run last in descending position
// order so earlier removals cannot shift later ones.
func (s *Syncer) applyRemote(ctx context.Context, fetched []catalog.Entry, ops []engine.Operation, summary *Summary) []catalog.Entry {
	state := make([]catalog.Entry, 0, len(fetched))
	for _, app := range fetched {
		state = append(state, app.Clone())
	}
	if s.dryRun || len(ops) == 0 {
		return state
	}
	positions := make(map[string]int, len(fetched))
	for i, app := range fetched {
		key := catalog.NormalizeName(app.Name)
		if _, exists := positions[key]; !exists {
			positions[key] = i
		}
	}

	var deletions []int
	for _, op := range ops {
		logger := s.logger.WithFields(log.Fields{"name": op.Name, "action": op.Action.String(), "direction": "remote"})
		switch op.Action {
		case engine.ActionCreate:
			// The unassigned-index sentinel makes the host assign an
			// identifier itself.
			entry := catalog.Entry{Name: op.Result.Name}
			catalog.OverlaySyncFields(&entry, *op.Result)
			if err := s.remote.PushApp(ctx, entry, remote.UnassignedIndex); err != nil {
				logger.WithError(err).Error("remote create failed")
				summary.Errors = append(summary.Errors, &ApplyError{Name: op.Name, Operation: "remote create", Err: err})
				continue
			}
			state = append(state, entry)
			summary.RemoteApplied++
			logger.Debug("remote create applied")

		case engine.ActionUpdate:
			index, ok := positions[catalog.NormalizeName(op.Name)]
			if !ok {
				summary.Errors = append(summary.Errors, &ApplyError{Name: op.Name, Operation: "remote update", Err: fmt.Errorf("entry missing from fetched remote catalog")})
				continue
			}
			entry := state[index].Clone()
			catalog.OverlaySyncFields(&entry, *op.Result)
			if catalog.SyncFieldsEqual(entry, state[index]) {
				// Convergent edit: the host already holds these values.
				logger.Debug("remote update is a no-op")
				continue
			}
			if err := s.remote.PushApp(ctx, entry, index); err != nil {
				logger.WithError(err).Error("remote update failed")
				summary.Errors = append(summary.Errors, &ApplyError{Name: op.Name, Operation: "remote update", Err: err})
				continue
			}
			state[index] = entry
			summary.RemoteApplied++
			logger.Debug("remote update applied")

		case engine.ActionDelete:
			index, ok := positions[catalog.NormalizeName(op.Name)]
			if !ok {
				summary.Errors = append(summary.Errors, &ApplyError{Name: op.Name, Operation: "remote delete", Err: fmt.Errorf("entry missing from fetched remote catalog")})
				continue
			}
			deletions = append(deletions, index)
		}
	}

	sort.Sort(sort.Reverse(sort.IntSlice(deletions)))
	for _, index := range deletions {
		name := state[index].Name
		logger := s.logger.WithFields(log.Fields{"name": name, "action": "delete", "direction": "remote"})
		if err := s.remote.DeleteApp(ctx, index); err != nil {
			logger.WithError(err).Error("remote delete failed")
			summary.Errors = append(summary.Errors, &ApplyError{Name: name, Operation: "remote delete", Err: err})
			continue
		}
		state = append(state[:index], state[index+1:]...)
		summary.RemoteApplied++
		logger.Debug("remote delete applied")
	}
	return state
}

// applyLocal builds the next local catalog by copy: the original sequence
// plus indexed insert/update/remove operations, never mutated in place.
func (s *Syncer) applyLocal(current []catalog.Entry, ops []engine.Operation, summary *Summary) []catalog.Entry {
	next := make([]catalog.Entry, 0, len(current))
	for _, app := range current {
		next = append(next, app.Clone())
	}
	if s.dryRun || len(ops) == 0 {
		return next
	}

	findLocal := func(name string) int {
		key := catalog.NormalizeName(name)
		for i := range next {
			if catalog.NormalizeName(next[i].Name) == key {
				return i
			}
		}
		return -1
	}

	for _, op := range ops {
		logger := s.logger.WithFields(log.Fields{"name": op.Name, "action": op.Action.String(), "direction": "local"})
		switch op.Action {
		case engine.ActionCreate:
			// Remote-only bookkeeping never enters the local document.
			next = append(next, catalog.StripRemoteFields(*op.Result))
			summary.LocalApplied++
			logger.Debug("local create applied")

		case engine.ActionUpdate:
			index := findLocal(op.Name)
			if index < 0 {
				summary.Errors = append(summary.Errors, &ApplyError{Name: op.Name, Operation: "local update", Err: fmt.Errorf("entry missing from local catalog")})
				continue
			}
			entry := next[index].Clone()
			catalog.OverlaySyncFields(&entry, *op.Result)
			if catalog.SyncFieldsEqual(entry, next[index]) {
				logger.Debug("local update is a no-op")
				continue
			}
			next[index] = entry
			summary.LocalApplied++
			logger.Debug("local update applied")

		case engine.ActionDelete:
			index := findLocal(op.Name)
			if index < 0 {
				summary.Errors = append(summary.Errors, &ApplyError{Name: op.Name, Operation: "local delete", Err: fmt.Errorf("entry missing from local catalog")})
				continue
			}
			next = append(next[:index], next[index+1:]...)
			summary.LocalApplied++
			logger.Debug("local delete applied")
		}
	}
	return next
}
