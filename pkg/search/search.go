// Package search defines the news search collaborator and an in-memory
// implementation kept current by model events. Results are references,
// never live entities.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/owlet/pkg/core"
)

// Fields and operators understood in core.SearchCondition.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldAuthor      = "author"
	FieldState       = "state"
	FieldLink        = "link"

	OpContains = "contains"
	OpIs       = "is"
	OpIsNot    = "is_not"
)

// Hit is one search result.
type Hit struct {
	News  core.Ref[*core.News]
	Score float64
}

// IndexListener is told when the number of indexed documents changes.
type IndexListener interface {
	IndexUpdated(docs int)
}

// IndexListenerFunc adapts a function to IndexListener.
type IndexListenerFunc func(docs int)

func (f IndexListenerFunc) IndexUpdated(docs int) { f(docs) }

// Searcher is the search collaborator consumed by the model.
type Searcher interface {
	Startup(ctx context.Context) error
	Shutdown(ctx context.Context) error
	// SearchNews returns hits ordered by descending score. With matchAll
	// every condition must match; otherwise any one does.
	SearchNews(ctx context.Context, conditions []core.SearchCondition, matchAll bool) ([]Hit, error)
	ClearIndex(ctx context.Context) error
	AddIndexListener(l IndexListener)
	RemoveIndexListener(l IndexListener)
}

// Validate reports the first malformed condition.
func Validate(conditions []core.SearchCondition) error {
	for i, c := range conditions {
		switch c.Field {
		case FieldTitle, FieldDescription, FieldAuthor, FieldState, FieldLink:
		default:
			return fmt.Errorf("condition %d: unknown field %q", i, c.Field)
		}
		switch c.Op {
		case OpContains, OpIs, OpIsNot:
		default:
			return fmt.Errorf("condition %d: unknown operator %q", i, c.Op)
		}
	}
	return nil
}

// document is the searchable projection of a news item, lower-cased.
type document struct {
	id     int64
	fields map[string]string
}

func newDocument(n *core.News) document {
	return document{
		id: n.ID,
		fields: map[string]string{
			FieldTitle:       strings.ToLower(n.Title),
			FieldDescription: strings.ToLower(n.Description),
			FieldAuthor:      strings.ToLower(n.Author),
			FieldState:       string(n.State),
			FieldLink:        strings.ToLower(n.Link),
		},
	}
}

func (d document) matches(c core.SearchCondition) bool {
	got := d.fields[c.Field]
	want := strings.ToLower(c.Value)
	switch c.Op {
	case OpContains:
		return strings.Contains(got, want)
	case OpIs:
		return got == want
	case OpIsNot:
		return got != want
	}
	return false
}

// score returns the fraction of matching conditions, or 0 when the
// document does not qualify.
func (d document) score(conditions []core.SearchCondition, matchAll bool) float64 {
	matched := 0
	for _, c := range conditions {
		if d.matches(c) {
			matched++
		} else if matchAll {
			return 0
		}
	}
	return float64(matched) / float64(len(conditions))
}
