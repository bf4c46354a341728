package core

import (
	"maps"
	"slices"
)

// Clone returns a deep copy of e. Repositories hand out clones so callers
// can mutate what they load without touching stored state.
func Clone(e Entity) Entity {
	switch v := e.(type) {
	case nil:
		return nil
	case *Folder:
		c := *v
		c.Properties = maps.Clone(v.Properties)
		return &c
	case *BookMark:
		c := *v
		return &c
	case *SearchMark:
		c := *v
		c.Conditions = slices.Clone(v.Conditions)
		return &c
	case *NewsBin:
		c := *v
		c.News = slices.Clone(v.News)
		return &c
	case *Feed:
		c := *v
		return &c
	case *News:
		c := *v
		c.Labels = slices.Clone(v.Labels)
		return &c
	case *Label:
		c := *v
		return &c
	case *Attachment:
		c := *v
		return &c
	}
	Violation("clone of unsupported entity %T", e)
	return nil
}
