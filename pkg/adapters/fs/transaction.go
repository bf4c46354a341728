package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aretw0/owlet/pkg/core"
)

// pendingWrite is one change of a commit, prepared but not yet visible.
type pendingWrite struct {
	change core.Change
	rel    string
	tmp    string // staged content for saves
	prior  []byte // content before the commit, nil when the file did not exist
	done   bool
}

// Commit implements core.Repository.
//
// Workflow:
//  1. Acquire the writer lock (in-process mutex + lock file).
//  2. Serialize every saved entity into a synced temp file next to its target.
//  3. Rename temp files over their targets and remove deleted files. On
//     failure, already applied changes are rolled back from their prior content.
//  4. Refresh the cache and, when versioning, record a git commit whose message
//     is the context's core.ChangeReasonKey.
func (r *Repository) Commit(ctx context.Context, changes []core.Change) error {
	if r.config.ReadOnly {
		return core.ErrReadOnly
	}
	if len(changes) == 0 {
		return nil
	}

	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	pending, err := r.stage(changes)
	if err != nil {
		discard(pending)
		return err
	}

	if err := r.apply(pending); err != nil {
		if rbErr := r.rollback(pending); rbErr != nil {
			r.config.Logger.Error("rollback failed, profile may be inconsistent", "error", rbErr)
			err = errors.Join(err, rbErr)
		}
		discard(pending)
		return err
	}

	if err := r.advanceSequence(core.MaxSavedID(changes)); err != nil {
		r.config.Logger.Warn("failed to advance id sequence", "error", err)
	}

	r.refreshCache(pending)
	if err := r.cache.Save(); err != nil {
		r.config.Logger.Warn("failed to save cache", "error", err)
	}

	if r.config.Versioning {
		r.version(ctx, pending)
	}

	now := time.Now()
	r.mu.Lock()
	r.lastCommit = &now
	r.mu.Unlock()
	return nil
}

func (r *Repository) stage(changes []core.Change) ([]*pendingWrite, error) {
	pending := make([]*pendingWrite, 0, len(changes))
	for _, c := range changes {
		p := &pendingWrite{change: c, rel: r.relPath(c.Kind, c.Key)}
		pending = append(pending, p)

		prior, err := os.ReadFile(r.abs(p.rel))
		if err != nil && !os.IsNotExist(err) {
			return pending, fmt.Errorf("failed to read %s: %w", p.rel, err)
		}
		p.prior = prior

		if c.Action != core.ActionSave {
			continue
		}
		if c.Entity == nil {
			return pending, fmt.Errorf("save of %s without entity", p.rel)
		}
		data, err := r.serializer.Marshal(c.Entity)
		if err != nil {
			return pending, fmt.Errorf("failed to serialize %s: %w", p.rel, err)
		}
		if p.tmp, err = stageFile(r.abs(p.rel), data, 0644); err != nil {
			return pending, err
		}
	}
	return pending, nil
}

func (r *Repository) apply(pending []*pendingWrite) error {
	for _, p := range pending {
		r.markOwnWrite(p.rel)
		switch p.change.Action {
		case core.ActionSave:
			if err := os.Rename(p.tmp, r.abs(p.rel)); err != nil {
				return fmt.Errorf("failed to write %s: %w", p.rel, err)
			}
			p.tmp = ""
		case core.ActionDelete:
			if err := os.Remove(r.abs(p.rel)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to delete %s: %w", p.rel, err)
			}
		}
		p.done = true
	}
	return nil
}

func (r *Repository) rollback(pending []*pendingWrite) error {
	var errs []error
	for i := len(pending) - 1; i >= 0; i-- {
		p := pending[i]
		if !p.done {
			continue
		}
		if p.prior == nil {
			if err := os.Remove(r.abs(p.rel)); err != nil && !os.IsNotExist(err) {
				errs = append(errs, err)
			}
			continue
		}
		if err := writeFileAtomic(r.abs(p.rel), p.prior, 0644); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func discard(pending []*pendingWrite) {
	for _, p := range pending {
		if p.tmp != "" {
			os.Remove(p.tmp)
		}
	}
}

func (r *Repository) refreshCache(pending []*pendingWrite) {
	for _, p := range pending {
		if p.change.Action == core.ActionDelete {
			r.cache.Delete(p.rel)
			continue
		}
		info, err := os.Stat(r.abs(p.rel))
		if err != nil {
			r.cache.Delete(p.rel)
			continue
		}
		if entry, err := newIndexEntry(p.change.Entity, info.ModTime()); err == nil {
			r.cache.Set(p.rel, entry)
		}
	}
}

// version records the commit in git. Files are already durable, so a git
// failure is reported but does not fail the commit.
func (r *Repository) version(ctx context.Context, pending []*pendingWrite) {
	var added, removed []string
	for _, p := range pending {
		if p.change.Action == core.ActionDelete {
			if p.prior != nil {
				removed = append(removed, p.rel)
			}
			continue
		}
		added = append(added, p.rel)
	}

	msg, _ := ctx.Value(core.ChangeReasonKey).(string)
	if msg == "" {
		msg = fmt.Sprintf("owlet: %d change(s)", len(pending))
	}

	err := r.git.Add(ctx, added...)
	if err == nil {
		err = r.git.Rm(ctx, removed...)
	}
	if err == nil {
		err = r.git.Commit(ctx, msg)
	}
	if err != nil {
		r.report(fmt.Errorf("failed to version commit: %w", err))
	}
}

func (r *Repository) report(err error) {
	r.config.Logger.Error("fs repository error", "error", err)
	if r.config.ErrorHandler != nil {
		r.config.ErrorHandler(err)
	}
}
