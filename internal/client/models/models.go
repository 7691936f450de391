// Package models defines the locally stored records (bookmarks and
// categories) and their wire representation for the sync protocol.
package models

import (
	"slices"
	"time"
)

// Kind identifies a record kind in queues and tombstone lists.
type Kind string

const (
	KindBookmark Kind = "bookmark"
	KindCategory Kind = "category"
)

// Bookmark is a saved link.
//
// ID is the client-generated id until the server acknowledges the record,
// and the server id afterwards (Synced is then true). CategoryID is empty
// for uncategorized bookmarks.
type Bookmark struct {
	ID         string
	Title      string
	URL        string
	Note       string
	Source     string
	IsRead     bool
	IsFavorite bool
	Tags       []string
	CategoryID string

	ImageURLs []string
	FileURL   string

	// PendingImages and PendingFile are local paths of media not yet uploaded.
	PendingImages []string
	PendingFile   string

	SyncVersion int64
	IsEncrypted bool
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Synced bool
	Dirty  bool
}

// HasPendingMedia reports whether the bookmark carries local media that has
// no remote URL yet. PendingImages only ever holds images not uploaded.
func (b *Bookmark) HasPendingMedia() bool {
	return len(b.PendingImages) > 0 || (b.PendingFile != "" && b.FileURL == "")
}

// SameContent compares the user-visible fields, ignoring identity,
// timestamps and sync bookkeeping.
func (b *Bookmark) SameContent(o *Bookmark) bool {
	return b.Title == o.Title &&
		b.URL == o.URL &&
		b.Note == o.Note &&
		b.IsRead == o.IsRead &&
		b.IsFavorite == o.IsFavorite &&
		b.CategoryID == o.CategoryID &&
		b.FileURL == o.FileURL &&
		slices.Equal(b.Tags, o.Tags) &&
		slices.Equal(b.ImageURLs, o.ImageURLs)
}

// Category groups bookmarks. BookmarkCount is materialized locally.
type Category struct {
	ID            string
	Name          string
	Icon          string
	Color         string
	Order         int
	BookmarkCount int

	SyncVersion int64
	IsEncrypted bool
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Synced bool
	Dirty  bool
}

func (c *Category) SameContent(o *Category) bool {
	return c.Name == o.Name && c.Icon == o.Icon && c.Color == o.Color && c.Order == o.Order
}

// PendingDelete is a locally deleted, previously synced record whose removal
// has not reached the server yet.
type PendingDelete struct {
	Kind      Kind
	ID        string
	CreatedAt time.Time
}
