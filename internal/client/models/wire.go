package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// Timestamp decodes RFC 3339 strings as well as epoch numbers (seconds, or
// milliseconds for values above 1e12) and always encodes RFC 3339 UTC.
type Timestamp struct {
	time.Time
}

const epochMillisThreshold = 1e12

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				t.Time = parsed.UTC()
				return nil
			}
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("timestamp %q: unsupported format", s)
		}
		t.Time = fromEpoch(f)
		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	t.Time = fromEpoch(f)
	return nil
}

func fromEpoch(f float64) time.Time {
	if f > epochMillisThreshold {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// BookmarkPayload is the wire shape of a bookmark, both for upload and for
// records returned by the server.
type BookmarkPayload struct {
	ID          string    `json:"id"`
	LocalID     string    `json:"local_id,omitempty"`
	Title       string    `json:"title"`
	URL         *string   `json:"url,omitempty"`
	Note        *string   `json:"note,omitempty"`
	Source      string    `json:"source"`
	IsRead      bool      `json:"is_read"`
	IsFavorite  bool      `json:"is_favorite"`
	Tags        []string  `json:"tags,omitempty"`
	CategoryID  *string   `json:"category_id"` // null means uncategorized
	ImageURLs   []string  `json:"image_urls,omitempty"`
	FileURL     *string   `json:"file_url,omitempty"`
	SyncVersion int64     `json:"sync_version"`
	IsEncrypted bool      `json:"is_encrypted"`
	CreatedAt   Timestamp `json:"created_at"`
	UpdatedAt   Timestamp `json:"updated_at"`
}

func (p *BookmarkPayload) fillID(id string) {
	if p.ID == "" {
		p.ID = id
	}
}

// CategoryPayload is the wire shape of a category.
type CategoryPayload struct {
	ID          string    `json:"id"`
	LocalID     string    `json:"local_id,omitempty"`
	Name        string    `json:"name"`
	Icon        string    `json:"icon"`
	Color       string    `json:"color"`
	Order       int       `json:"order"`
	SyncVersion int64     `json:"sync_version"`
	IsEncrypted bool      `json:"is_encrypted"`
	CreatedAt   Timestamp `json:"created_at"`
	UpdatedAt   Timestamp `json:"updated_at"`
}

func (p *CategoryPayload) fillID(id string) {
	if p.ID == "" {
		p.ID = id
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Payload converts b to its wire form. LocalID is set for records the
// server has not acknowledged yet so the server can echo it back.
func (b *Bookmark) Payload() BookmarkPayload {
	p := BookmarkPayload{
		ID:          b.ID,
		Title:       b.Title,
		URL:         optional(b.URL),
		Note:        optional(b.Note),
		Source:      b.Source,
		IsRead:      b.IsRead,
		IsFavorite:  b.IsFavorite,
		Tags:        b.Tags,
		CategoryID:  optional(b.CategoryID),
		ImageURLs:   b.ImageURLs,
		FileURL:     optional(b.FileURL),
		SyncVersion: b.SyncVersion,
		IsEncrypted: b.IsEncrypted,
		CreatedAt:   NewTimestamp(b.CreatedAt),
		UpdatedAt:   NewTimestamp(b.UpdatedAt),
	}
	if !b.Synced {
		p.LocalID = b.ID
	}
	return p
}

// Bookmark converts a server record into a local record marked as synced.
func (p *BookmarkPayload) Bookmark() Bookmark {
	return Bookmark{
		ID:          p.ID,
		Title:       p.Title,
		URL:         deref(p.URL),
		Note:        deref(p.Note),
		Source:      p.Source,
		IsRead:      p.IsRead,
		IsFavorite:  p.IsFavorite,
		Tags:        p.Tags,
		CategoryID:  deref(p.CategoryID),
		ImageURLs:   p.ImageURLs,
		FileURL:     deref(p.FileURL),
		SyncVersion: p.SyncVersion,
		IsEncrypted: p.IsEncrypted,
		CreatedAt:   p.CreatedAt.Time,
		UpdatedAt:   p.UpdatedAt.Time,
		Synced:      true,
	}
}

func (c *Category) Payload() CategoryPayload {
	p := CategoryPayload{
		ID:          c.ID,
		Name:        c.Name,
		Icon:        c.Icon,
		Color:       c.Color,
		Order:       c.Order,
		SyncVersion: c.SyncVersion,
		IsEncrypted: c.IsEncrypted,
		CreatedAt:   NewTimestamp(c.CreatedAt),
		UpdatedAt:   NewTimestamp(c.UpdatedAt),
	}
	if !c.Synced {
		p.LocalID = c.ID
	}
	return p
}

func (p *CategoryPayload) Category() Category {
	return Category{
		ID:          p.ID,
		Name:        p.Name,
		Icon:        p.Icon,
		Color:       p.Color,
		Order:       p.Order,
		SyncVersion: p.SyncVersion,
		IsEncrypted: p.IsEncrypted,
		CreatedAt:   p.CreatedAt.Time,
		UpdatedAt:   p.UpdatedAt.Time,
		Synced:      true,
	}
}

// RecordList decodes either a JSON array of records or an object mapping
// record id to record; null and absent decode to an empty list. Map entries
// are ordered by key so decoding is deterministic.
type RecordList[T any] []T

var errRecordShape = errors.New("expected array or object of records")

func (l *RecordList[T]) UnmarshalJSON(b []byte) error {
	items, err := decodeRecords[T](b, "")
	if err != nil {
		return err
	}
	*l = items
	return nil
}

// DecodeRecords decodes a server response carrying records of one kind.
// Accepted shapes: a bare array, an id→record object, an object holding the
// records under key (or "data"), or a single record object.
func DecodeRecords[T any](b []byte, key string) ([]T, error) {
	return decodeRecords[T](b, key)
}

func decodeRecords[T any](b []byte, key string) ([]T, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return []T{}, nil
	}

	switch b[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(b, &items); err != nil {
			return nil, err
		}
		if items == nil {
			items = []T{}
		}
		return items, nil
	case '{':
		var m map[string]json.RawMessage
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, err
		}
		if key != "" {
			for _, k := range []string{key, "data"} {
				if inner, ok := m[k]; ok {
					return decodeRecords[T](inner, "")
				}
			}
			if _, ok := m["id"]; ok {
				var item T
				if err := json.Unmarshal(b, &item); err != nil {
					return nil, err
				}
				return []T{item}, nil
			}
		}

		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		items := make([]T, 0, len(keys))
		for _, k := range keys {
			var item T
			if err := json.Unmarshal(m[k], &item); err != nil {
				return nil, fmt.Errorf("record %q: %w", k, err)
			}
			if f, ok := any(&item).(interface{ fillID(string) }); ok {
				f.fillID(k)
			}
			items = append(items, item)
		}
		return items, nil
	default:
		return nil, errRecordShape
	}
}

// DeltaRequest is the body of POST /sync/delta. A nil LastSyncTimestamp is
// sent as null and asks for a full sync.
type DeltaRequest struct {
	LastSyncTimestamp json.RawMessage `json:"last_sync_timestamp"`
	Bookmarks         *struct{}       `json:"bookmarks"`
	Categories        *struct{}       `json:"categories"`
}

// DeletedIDs is the tombstone list of a delta, partitioned by kind.
type DeletedIDs struct {
	Categories []string `json:"categories"`
	Bookmarks  []string `json:"bookmarks"`
}

// DeltaResponse is the body returned by POST /sync/delta.
// CurrentServerTime is kept raw and becomes the next cursor verbatim.
type DeltaResponse struct {
	UpdatedCategories RecordList[CategoryPayload] `json:"updated_categories"`
	UpdatedBookmarks  RecordList[BookmarkPayload] `json:"updated_bookmarks"`
	DeletedIDs        DeletedIDs                  `json:"deleted_ids"`
	CurrentServerTime json.RawMessage             `json:"current_server_time"`
}

// IsEmpty reports whether the delta carries no changes.
func (d *DeltaResponse) IsEmpty() bool {
	return len(d.UpdatedCategories) == 0 && len(d.UpdatedBookmarks) == 0 &&
		len(d.DeletedIDs.Categories) == 0 && len(d.DeletedIDs.Bookmarks) == 0
}

type BookmarkUpsertRequest struct {
	Bookmarks []BookmarkPayload `json:"bookmarks"`
}

type CategoryUpsertRequest struct {
	Categories []CategoryPayload `json:"categories"`
}

// MediaUploadResponse is returned by POST /media/upload.
type MediaUploadResponse struct {
	URL      string `json:"url"`
	DiskPath string `json:"disk_path"`
}

// ErrorBody is the error envelope of non-2xx responses.
type ErrorBody struct {
	Message string `json:"message"`
}
