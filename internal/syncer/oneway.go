package syncer

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/sunsync/sunsync/internal/catalog"
	"github.com/sunsync/sunsync/internal/engine"
	"github.com/sunsync/sunsync/internal/remote"
)

// runOneWay is the push-only mode: every local entry is matched against the
// remote catalog by name and either overwrites its match or is created. The
// remote side is never deleted from, the local file and baseline are never
// written.
func (s *Syncer) runOneWay(ctx context.Context) (*Summary, error) {
	doc, err := s.catalog.Load()
	if err != nil {
		return nil, err
	}
	remoteApps, err := s.remote.FetchApps(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{DryRun: s.dryRun}
	claimed := make(map[int]bool, len(remoteApps))

	for i := range doc.Apps {
		local := doc.Apps[i]
		logger := s.logger.WithFields(log.Fields{"name": local.Name, "direction": "remote"})

		index, matched := s.matcher.Match(local.Name, remoteApps)
		if matched && claimed[index] {
			summary.Errors = append(summary.Errors, &ApplyError{Name: local.Name, Operation: "remote push", Err: fmt.Errorf("remote entry %q already claimed by an earlier local entry", remoteApps[index].Name)})
			continue
		}

		if !matched {
			entry := catalog.Entry{Name: local.Name}
			catalog.OverlaySyncFields(&entry, local)
			summary.Plan.RemoteOps = append(summary.Plan.RemoteOps, engine.Operation{Action: engine.ActionCreate, Name: local.Name, Local: &local, Result: &local})
			if s.dryRun {
				continue
			}
			if err := s.remote.PushApp(ctx, entry, remote.UnassignedIndex); err != nil {
				logger.WithError(err).Error("remote create failed")
				summary.Errors = append(summary.Errors, &ApplyError{Name: local.Name, Operation: "remote create", Err: err})
				continue
			}
			summary.RemoteApplied++
			logger.Debug("remote create applied")
			continue
		}

		claimed[index] = true
		entry := remoteApps[index].Clone()
		catalog.OverlaySyncFields(&entry, local)
		if catalog.SyncFieldsEqual(entry, remoteApps[index]) {
			summary.Plan.Unchanged++
			continue
		}
		summary.Plan.RemoteOps = append(summary.Plan.RemoteOps, engine.Operation{Action: engine.ActionUpdate, Name: local.Name, Local: &local, Remote: &remoteApps[index], Result: &local})
		if s.dryRun {
			continue
		}
		if err := s.remote.PushApp(ctx, entry, index); err != nil {
			logger.WithError(err).Error("remote update failed")
			summary.Errors = append(summary.Errors, &ApplyError{Name: local.Name, Operation: "remote update", Err: err})
			continue
		}
		summary.RemoteApplied++
		logger.Debug("remote update applied")
	}
	return summary, nil
}
