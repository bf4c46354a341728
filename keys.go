package owlet

import (
	"github.com/aretw0/owlet/pkg/prefs"
	"github.com/aretw0/owlet/pkg/typed"
)

// Well-known preference keys. Feed-level overrides live in the feed's
// entity scope and fall back to Global, then Default.
var (
	UpdateInterval    = typed.LongKey("feed.update.interval")
	UpdateOnStartup   = typed.BoolKey("feed.update.on_startup")
	MarkReadOnChange  = typed.BoolKey("news.mark_read.on_change")
	MarkReadDelay     = typed.IntKey("news.mark_read.delay")
	CleanUpByCount    = typed.BoolKey("news.cleanup.by_count")
	CleanUpCount      = typed.IntKey("news.cleanup.count")
	CleanUpByAge      = typed.BoolKey("news.cleanup.by_age")
	CleanUpAgeDays    = typed.IntKey("news.cleanup.age_days")
	KeepStickyNews    = typed.BoolKey("news.cleanup.keep_sticky")
	NewsColumns       = typed.StringsKey("news.columns")
	SearchMarkDefault = typed.BoolKey("searchmark.match_all")
)

// DefaultInitializers returns the registry seeding the built-in defaults.
// Each group of keys is its own initializer, so one failing group does
// not keep the others out of the Default scope.
func DefaultInitializers() *prefs.Registry {
	reg := prefs.NewRegistry()
	reg.Register("feed.update.interval", UpdateInterval.Initializer(3600))
	reg.Register("feed.update.on_startup", UpdateOnStartup.Initializer(true))
	reg.Register("news.mark_read.on_change", MarkReadOnChange.Initializer(true))
	reg.Register("news.mark_read.delay", MarkReadDelay.Initializer(0))
	reg.Register("news.cleanup.by_count", CleanUpByCount.Initializer(true))
	reg.Register("news.cleanup.count", CleanUpCount.Initializer(200))
	reg.Register("news.cleanup.by_age", CleanUpByAge.Initializer(false))
	reg.Register("news.cleanup.age_days", CleanUpAgeDays.Initializer(30))
	reg.Register("news.cleanup.keep_sticky", KeepStickyNews.Initializer(true))
	reg.Register("news.columns", NewsColumns.Initializer([]string{"title", "date", "author"}))
	reg.Register("searchmark.match_all", SearchMarkDefault.Initializer(false))
	return reg
}

// KnownKeys maps every well-known key name to its preference type.
func KnownKeys() map[string]prefs.Type {
	return map[string]prefs.Type{
		UpdateInterval.Name():    UpdateInterval.Type(),
		UpdateOnStartup.Name():   UpdateOnStartup.Type(),
		MarkReadOnChange.Name():  MarkReadOnChange.Type(),
		MarkReadDelay.Name():     MarkReadDelay.Type(),
		CleanUpByCount.Name():    CleanUpByCount.Type(),
		CleanUpCount.Name():      CleanUpCount.Type(),
		CleanUpByAge.Name():      CleanUpByAge.Type(),
		CleanUpAgeDays.Name():    CleanUpAgeDays.Type(),
		KeepStickyNews.Name():    KeepStickyNews.Type(),
		NewsColumns.Name():       NewsColumns.Type(),
		SearchMarkDefault.Name(): SearchMarkDefault.Type(),
	}
}
