package core

import (
	"context"
	"fmt"
)

type entryKey struct {
	kind Kind
	key  string
}

type txEntry struct {
	action Action
	entity Entity
	// prior is the stored state when the transaction first touched the
	// entity, nil when the entity is created by this transaction.
	prior     Entity
	cascade   bool
	oldParent *Folder
}

// Tx stages saves and deletes. Nothing reaches the repository until the
// function passed to Service.WithTransaction returns nil.
type Tx struct {
	svc     *Service
	id      string
	entries map[entryKey]*txEntry
	order   []entryKey
	done    bool
}

// ID returns the transaction id shared by every batch it produces.
func (tx *Tx) ID() string { return tx.id }

func (tx *Tx) checkOpen() {
	if tx.done {
		Violation("use of finished transaction %s", tx.id)
	}
}

// Get returns the entity as seen by this transaction: staged state first,
// then the repository.
func (tx *Tx) Get(ctx context.Context, ref Reference) (Entity, bool, error) {
	tx.checkOpen()
	return tx.get(ctx, ref.Kind(), ref.Key())
}

func (tx *Tx) get(ctx context.Context, kind Kind, key string) (Entity, bool, error) {
	if e, ok := tx.entries[entryKey{kind, key}]; ok {
		if e.action == ActionDelete {
			return nil, false, nil
		}
		return e.entity, true, nil
	}
	return tx.svc.Load(ctx, kind, key)
}

// list returns the stored entities of a kind with the staged changes applied.
func (tx *Tx) list(ctx context.Context, kind Kind) ([]Entity, error) {
	stored, err := tx.svc.List(ctx, kind)
	if err != nil {
		return nil, err
	}

	out := make([]Entity, 0, len(stored))
	seen := make(map[string]bool, len(stored))
	for _, ent := range stored {
		key := ent.NaturalKey()
		seen[key] = true
		if e, ok := tx.entries[entryKey{kind, key}]; ok {
			if e.action == ActionSave {
				out = append(out, e.entity)
			}
			continue
		}
		out = append(out, ent)
	}
	for _, k := range tx.order {
		if k.kind != kind || seen[k.key] {
			continue
		}
		if e := tx.entries[k]; e.action == ActionSave {
			out = append(out, e.entity)
		}
	}
	return out, nil
}

// Save stages e for persistence. Id-keyed entities with a zero id get a
// fresh id assigned in place.
func (tx *Tx) Save(ctx context.Context, e Entity) error {
	tx.checkOpen()
	if e == nil {
		Violation("save of nil entity")
	}

	if ided, ok := e.(identified); ok && ided.EntityID() == 0 {
		id, err := tx.freshID(ctx, e.Kind())
		if err != nil {
			return err
		}
		ided.setID(id)
	}

	key := e.NaturalKey()
	if key == "" {
		Violation("save of %s without natural key", e.Kind())
	}
	k := entryKey{e.Kind(), key}

	entry, ok := tx.entries[k]
	if !ok {
		prior, found, err := tx.svc.Load(ctx, k.kind, k.key)
		if err != nil {
			return err
		}
		entry = &txEntry{}
		if found {
			entry.prior = prior
		}
		tx.entries[k] = entry
		tx.order = append(tx.order, k)
	}
	entry.action = ActionSave
	entry.entity = e
	entry.cascade = false
	entry.oldParent = nil

	return tx.trackReparent(ctx, entry)
}

// freshID draws ids until one is neither staged nor stored, so entities
// saved with explicit ids or added behind the repository's back are never
// overwritten by a new one.
func (tx *Tx) freshID(ctx context.Context, kind Kind) (int64, error) {
	for {
		id, err := tx.svc.repo.NextID(ctx)
		if err != nil {
			return 0, NewPersistenceError("next id", kind, "", err)
		}
		key := idKey(id)
		if _, staged := tx.entries[entryKey{kind, key}]; staged {
			continue
		}
		_, found, err := tx.svc.Load(ctx, kind, key)
		if err != nil {
			return 0, err
		}
		if !found {
			return id, nil
		}
		tx.svc.logger.Warn("skipping id already in use", "kind", kind, "id", id)
	}
}

func (tx *Tx) trackReparent(ctx context.Context, entry *txEntry) error {
	child, ok := entry.entity.(FolderChild)
	if !ok || entry.prior == nil {
		return nil
	}
	prior, ok := entry.prior.(FolderChild)
	if !ok || prior.ParentID() == child.ParentID() || prior.ParentID() == 0 {
		return nil
	}

	ent, found, err := tx.get(ctx, KindFolder, idKey(prior.ParentID()))
	if err != nil {
		return err
	}
	if found {
		entry.oldParent = ent.(*Folder)
	}
	return nil
}

// Delete stages the removal of the referenced entity and of everything that
// depends on it: folder contents, the news of a feed, the attachments of a
// news item. Deleting a missing entity returns ErrNotFound.
func (tx *Tx) Delete(ctx context.Context, ref Reference) error {
	tx.checkOpen()
	if ref == nil {
		Violation("delete with nil reference")
	}

	ent, ok, err := tx.get(ctx, ref.Kind(), ref.Key())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return tx.stageDelete(ctx, ent, false)
}

func (tx *Tx) stageDelete(ctx context.Context, ent Entity, cascade bool) error {
	k := entryKey{ent.Kind(), ent.NaturalKey()}

	if entry, ok := tx.entries[k]; ok {
		switch {
		case entry.action == ActionDelete:
			return nil
		case entry.prior == nil:
			// Created and deleted in the same transaction: nothing to persist.
			delete(tx.entries, k)
			tx.removeOrder(k)
		default:
			entry.action = ActionDelete
			entry.entity = entry.prior
			entry.cascade = cascade
			entry.oldParent = nil
		}
	} else {
		tx.entries[k] = &txEntry{action: ActionDelete, entity: ent, prior: ent, cascade: cascade}
		tx.order = append(tx.order, k)
	}

	return tx.cascadeDelete(ctx, ent)
}

func (tx *Tx) cascadeDelete(ctx context.Context, ent Entity) error {
	switch v := ent.(type) {
	case *Folder:
		for _, kind := range []Kind{KindFolder, KindBookMark, KindSearchMark, KindNewsBin} {
			children, err := tx.list(ctx, kind)
			if err != nil {
				return err
			}
			for _, c := range children {
				if fc, ok := c.(FolderChild); ok && fc.ParentID() == v.ID {
					if err := tx.stageDelete(ctx, c, true); err != nil {
						return err
					}
				}
			}
		}
	case *Feed:
		news, err := tx.list(ctx, KindNews)
		if err != nil {
			return err
		}
		for _, n := range news {
			if n.(*News).FeedLink == v.Link {
				if err := tx.stageDelete(ctx, n, true); err != nil {
					return err
				}
			}
		}
	case *News:
		atts, err := tx.list(ctx, KindAttachment)
		if err != nil {
			return err
		}
		for _, a := range atts {
			if a.(*Attachment).NewsID == v.ID {
				if err := tx.stageDelete(ctx, a, true); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (tx *Tx) removeOrder(k entryKey) {
	for i, o := range tx.order {
		if o == k {
			tx.order = append(tx.order[:i], tx.order[i+1:]...)
			return
		}
	}
}

// commit persists the staged changes and returns the batches to dispatch,
// one per kind, in order of first appearance.
func (tx *Tx) commit(ctx context.Context) ([]*Batch, error) {
	tx.checkOpen()
	tx.done = true
	if len(tx.order) == 0 {
		return nil, nil
	}

	changes := make([]Change, 0, len(tx.order))
	for _, k := range tx.order {
		e := tx.entries[k]
		changes = append(changes, Change{Action: e.action, Kind: k.kind, Key: k.key, Entity: e.entity})
	}
	gen := tx.svc.counterGeneration()
	if err := tx.svc.repo.Commit(ctx, changes); err != nil {
		return nil, NewPersistenceError("commit", "", "", err)
	}

	if !tx.svc.adjustCounters(gen, tx.updateCounters) {
		if err := tx.svc.RebuildCounters(ctx); err != nil {
			tx.svc.logger.Warn("failed to rebuild counters", "error", err)
		}
	}

	b := &batcher{tx: tx, byKind: make(map[Kind]*Batch), cascaded: make(map[entryKey]bool)}
	for _, k := range tx.order {
		e := tx.entries[k]
		switch {
		case e.action == ActionDelete:
			b.emit(EventDeleted, NewEvent(e.entity, !e.cascade))
			if !e.cascade {
				b.touchParent(ctx, e.entity)
			}
		case e.prior == nil:
			b.emit(EventAdded, NewEvent(e.entity, true))
			b.touchParent(ctx, e.entity)
		case e.oldParent != nil:
			b.emit(EventUpdated, NewReparentEvent(e.entity, true, e.oldParent))
			b.touchFolder(ctx, e.oldParent.ID)
			b.touchParent(ctx, e.entity)
		default:
			b.emit(EventUpdated, NewEvent(e.entity, true))
			if moved(e) {
				b.touchParent(ctx, e.entity)
			}
		}
	}
	return b.batches, nil
}

// moved reports a folder child that left the root level.
func moved(e *txEntry) bool {
	prior, ok := e.prior.(FolderChild)
	if !ok {
		return false
	}
	return prior.ParentID() != e.entity.(FolderChild).ParentID()
}

func (tx *Tx) updateCounters(counter *NewsCounter) {
	var removedFeeds []string
	for _, k := range tx.order {
		e := tx.entries[k]
		switch v := e.entity.(type) {
		case *News:
			if e.prior != nil {
				counter.countNews(e.prior.(*News), -1)
			}
			if e.action == ActionSave {
				counter.countNews(v, 1)
			}
		case *Feed:
			if e.action == ActionDelete {
				removedFeeds = append(removedFeeds, v.Link)
			}
		}
	}
	for _, link := range removedFeeds {
		counter.Remove(link)
	}
}

type batcher struct {
	tx       *Tx
	byKind   map[Kind]*Batch
	batches  []*Batch
	cascaded map[entryKey]bool
}

func (b *batcher) emit(typ EventType, ev ModelEvent) {
	batch, ok := b.byKind[ev.Kind()]
	if !ok {
		batch = ev.NewBatch(b.tx.id)
		b.byKind[ev.Kind()] = batch
		b.batches = append(b.batches, batch)
	}
	batch.Append(typ, ev)
}

// touchParent emits a cascade update for the folder containing ent.
func (b *batcher) touchParent(ctx context.Context, ent Entity) {
	if child, ok := ent.(FolderChild); ok {
		b.touchFolder(ctx, child.ParentID())
	}
}

func (b *batcher) touchFolder(ctx context.Context, id int64) {
	if id <= 0 {
		return
	}
	k := entryKey{KindFolder, idKey(id)}
	if _, inTx := b.tx.entries[k]; inTx || b.cascaded[k] {
		return
	}
	b.cascaded[k] = true

	ent, ok, err := b.tx.svc.Load(ctx, KindFolder, k.key)
	if err != nil {
		b.tx.svc.logger.Warn("failed to load folder for cascade event", "folder", k.key, "error", err)
		return
	}
	if ok {
		b.emit(EventUpdated, NewEvent(ent, false))
	}
}
