// Package core holds the feed reader model: entities, references, model
// events and the transactional service that produces them.
package core

import (
	"strconv"
	"time"
)

// Kind names a family of persisted entities.
type Kind string

const (
	KindFolder     Kind = "folder"
	KindBookMark   Kind = "bookmark"
	KindSearchMark Kind = "searchmark"
	KindNewsBin    Kind = "newsbin"
	KindFeed       Kind = "feed"
	KindNews       Kind = "news"
	KindLabel      Kind = "label"
	KindAttachment Kind = "attachment"
)

// Kinds lists every entity kind in dependency order (containers first).
var Kinds = []Kind{
	KindFolder, KindBookMark, KindSearchMark, KindNewsBin,
	KindFeed, KindNews, KindLabel, KindAttachment,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Entity is any persisted domain object.
// Implementations must tolerate being called on a nil pointer.
type Entity interface {
	Kind() Kind
	// NaturalKey returns the stable identifier used to equate and resolve
	// references. It is empty for entities that were never persisted.
	NaturalKey() string
}

// identified is implemented by entities keyed by a numeric id.
type identified interface {
	Entity
	EntityID() int64
	setID(id int64)
}

// FolderChild is implemented by entities that live inside a folder.
type FolderChild interface {
	Entity
	ParentID() int64
}

func idKey(id int64) string {
	if id <= 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

// Folder groups bookmarks, saved searches, news bins and other folders.
type Folder struct {
	ID         int64             `yaml:"id" json:"id"`
	Name       string            `yaml:"name" json:"name"`
	Parent     int64             `yaml:"parent,omitempty" json:"parent,omitempty"`
	Properties map[string]string `yaml:"properties,omitempty" json:"properties,omitempty"`
}

func (*Folder) Kind() Kind { return KindFolder }

func (f *Folder) NaturalKey() string {
	if f == nil {
		return ""
	}
	return idKey(f.ID)
}

func (f *Folder) EntityID() int64 { return f.ID }
func (f *Folder) setID(id int64)  { f.ID = id }
func (f *Folder) ParentID() int64 { return f.Parent }

// BookMark is a folder entry subscribing to a feed.
type BookMark struct {
	ID       int64  `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Parent   int64  `yaml:"parent" json:"parent"`
	FeedLink string `yaml:"feed_link" json:"feed_link"`
}

func (*BookMark) Kind() Kind { return KindBookMark }

func (b *BookMark) NaturalKey() string {
	if b == nil {
		return ""
	}
	return idKey(b.ID)
}

func (b *BookMark) EntityID() int64 { return b.ID }
func (b *BookMark) setID(id int64)  { b.ID = id }
func (b *BookMark) ParentID() int64 { return b.Parent }

// SearchCondition is a single clause of a saved search.
type SearchCondition struct {
	Field string `yaml:"field" json:"field"`
	Op    string `yaml:"op" json:"op"`
	Value string `yaml:"value" json:"value"`
}

// SearchMark is a saved search shown as a folder entry.
type SearchMark struct {
	ID         int64             `yaml:"id" json:"id"`
	Name       string            `yaml:"name" json:"name"`
	Parent     int64             `yaml:"parent" json:"parent"`
	MatchAll   bool              `yaml:"match_all" json:"match_all"`
	Conditions []SearchCondition `yaml:"conditions,omitempty" json:"conditions,omitempty"`
}

func (*SearchMark) Kind() Kind { return KindSearchMark }

func (s *SearchMark) NaturalKey() string {
	if s == nil {
		return ""
	}
	return idKey(s.ID)
}

func (s *SearchMark) EntityID() int64 { return s.ID }
func (s *SearchMark) setID(id int64)  { s.ID = id }
func (s *SearchMark) ParentID() int64 { return s.Parent }

// NewsBin is a user-curated collection of news.
type NewsBin struct {
	ID     int64   `yaml:"id" json:"id"`
	Name   string  `yaml:"name" json:"name"`
	Parent int64   `yaml:"parent" json:"parent"`
	News   []int64 `yaml:"news,omitempty" json:"news,omitempty"`
}

func (*NewsBin) Kind() Kind { return KindNewsBin }

func (n *NewsBin) NaturalKey() string {
	if n == nil {
		return ""
	}
	return idKey(n.ID)
}

func (n *NewsBin) EntityID() int64 { return n.ID }
func (n *NewsBin) setID(id int64)  { n.ID = id }
func (n *NewsBin) ParentID() int64 { return n.Parent }

// Feed is identified by its link rather than by a numeric id.
type Feed struct {
	Link        string    `yaml:"link" json:"link"`
	Title       string    `yaml:"title,omitempty" json:"title,omitempty"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	HomePage    string    `yaml:"homepage,omitempty" json:"homepage,omitempty"`
	LastUpdated time.Time `yaml:"last_updated,omitempty" json:"last_updated,omitempty"`
}

func (*Feed) Kind() Kind { return KindFeed }

func (f *Feed) NaturalKey() string {
	if f == nil {
		return ""
	}
	return f.Link
}

// NewsState is the read state of a news item.
type NewsState string

const (
	StateNew     NewsState = "new"
	StateUnread  NewsState = "unread"
	StateRead    NewsState = "read"
	StateUpdated NewsState = "updated"
	StateHidden  NewsState = "hidden"
	StateDeleted NewsState = "deleted"
)

// Visible reports whether news in this state is shown to the user.
func (s NewsState) Visible() bool {
	return s != StateHidden && s != StateDeleted
}

// News is a single item of a feed.
type News struct {
	ID          int64     `yaml:"id" json:"id"`
	FeedLink    string    `yaml:"feed_link" json:"feed_link"`
	Title       string    `yaml:"title" json:"title"`
	Link        string    `yaml:"link,omitempty" json:"link,omitempty"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string    `yaml:"author,omitempty" json:"author,omitempty"`
	State       NewsState `yaml:"state" json:"state"`
	Sticky      bool      `yaml:"sticky,omitempty" json:"sticky,omitempty"`
	Labels      []int64   `yaml:"labels,omitempty" json:"labels,omitempty"`
	Published   time.Time `yaml:"published,omitempty" json:"published,omitempty"`
}

func (*News) Kind() Kind { return KindNews }

func (n *News) NaturalKey() string {
	if n == nil {
		return ""
	}
	return idKey(n.ID)
}

func (n *News) EntityID() int64 { return n.ID }
func (n *News) setID(id int64)  { n.ID = id }

// Label tags news items.
type Label struct {
	ID    int64  `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
	Order int    `yaml:"order" json:"order"`
}

func (*Label) Kind() Kind { return KindLabel }

func (l *Label) NaturalKey() string {
	if l == nil {
		return ""
	}
	return idKey(l.ID)
}

func (l *Label) EntityID() int64 { return l.ID }
func (l *Label) setID(id int64)  { l.ID = id }

// Attachment is an enclosure of a news item.
type Attachment struct {
	ID     int64  `yaml:"id" json:"id"`
	NewsID int64  `yaml:"news" json:"news"`
	Link   string `yaml:"link" json:"link"`
	Type   string `yaml:"type,omitempty" json:"type,omitempty"`
	Length int64  `yaml:"length,omitempty" json:"length,omitempty"`
}

func (*Attachment) Kind() Kind { return KindAttachment }

func (a *Attachment) NaturalKey() string {
	if a == nil {
		return ""
	}
	return idKey(a.ID)
}

func (a *Attachment) EntityID() int64 { return a.ID }
func (a *Attachment) setID(id int64)  { a.ID = id }

// NewEntity returns a zero value entity of the given kind, ready to be
// decoded into. It returns nil for unknown kinds.
func NewEntity(kind Kind) Entity {
	switch kind {
	case KindFolder:
		return &Folder{}
	case KindBookMark:
		return &BookMark{}
	case KindSearchMark:
		return &SearchMark{}
	case KindNewsBin:
		return &NewsBin{}
	case KindFeed:
		return &Feed{}
	case KindNews:
		return &News{}
	case KindLabel:
		return &Label{}
	case KindAttachment:
		return &Attachment{}
	}
	return nil
}

// ExternalEventType is the type of change observed outside of a transaction.
type ExternalEventType string

const (
	ExternalCreate ExternalEventType = "CREATE"
	ExternalModify ExternalEventType = "MODIFY"
	ExternalDelete ExternalEventType = "DELETE"
)

// ExternalEvent reports a change made to the store by someone else
// (another process, a user editing files by hand).
type ExternalEvent struct {
	Type      ExternalEventType
	Kind      Kind
	Key       string
	Timestamp int64 // Unix timestamp
}

// String implements lifecycle.Event.
func (e ExternalEvent) String() string {
	return string(e.Type) + " " + string(e.Kind) + "/" + e.Key
}

type contextKey string

// ChangeReasonKey is the context key for passing a change reason (commit message) to a transaction.
const ChangeReasonKey contextKey = "change_reason"
