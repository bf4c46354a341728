// Package owlet is the composition root of the owlet feed reader model.
//
// It wires the model core (pkg/core) to a persistence adapter, the
// preference scope chain (pkg/prefs) and the search index (pkg/search),
// and hands them out together as an App.
//
// Model:
//
// Entities (folders, bookmarks, search marks, news bins, feeds, news,
// labels, attachments) are persisted through a core.Repository. Callers
// hold lightweight core.Ref handles and resolve them on demand. Every
// transaction produces model events, delivered in per-kind batches to bus
// listeners and subscribers; listeners receive references they can
// resolve later instead of keeping live entities around.
//
// Preferences:
//
// Values resolve through Entity, then Global, then Default scopes. The
// Default scope is seeded at startup by a list of initializers; one
// failing initializer is logged and skipped.
//
// Storage:
//
//   - fs (default): one YAML or JSON file per entity, atomic commits, an
//     optional git history and an fsnotify watcher for external edits.
//   - sqlite / postgres: JSON payloads in SQL tables.
//   - memory: for tests and throwaway sessions.
//
// Usage:
//
//	app, err := owlet.Open(ctx, "./profile", owlet.WithAutoInit(true))
//	if err != nil {
//		return err
//	}
//	defer app.Close()
//
//	feed := &core.Feed{Link: "https://go.dev/blog/feed.atom"}
//	err = app.Model.Save(ctx, feed)
//	interval := owlet.UpdateInterval.GetOr(app.Prefs.Global(), 3600)
package owlet
