package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeltaResponse_ListAndMapDecodeTheSame(t *testing.T) {
	asList := `{
		"updated_categories": [{"id":"C1","name":"Tech","icon":"laptop","color":"#fff","order":1}],
		"updated_bookmarks": [
			{"id":"B1","title":"Go","url":"https://go.dev","category_id":"C1"},
			{"id":"B2","title":"Rust"}
		],
		"deleted_ids": {"categories":[],"bookmarks":["B9"]},
		"current_server_time": "2025-01-02T03:04:05Z"
	}`
	asMap := `{
		"updated_categories": {"C1": {"id":"C1","name":"Tech","icon":"laptop","color":"#fff","order":1}},
		"updated_bookmarks": {
			"B2": {"title":"Rust"},
			"B1": {"id":"B1","title":"Go","url":"https://go.dev","category_id":"C1"}
		},
		"deleted_ids": {"bookmarks":["B9"]},
		"current_server_time": "2025-01-02T03:04:05Z"
	}`

	var a, b DeltaResponse
	require.NoError(t, json.Unmarshal([]byte(asList), &a))
	require.NoError(t, json.Unmarshal([]byte(asMap), &b))

	assert.Empty(t, cmp.Diff(a.UpdatedBookmarks, b.UpdatedBookmarks))
	assert.Empty(t, cmp.Diff(a.UpdatedCategories, b.UpdatedCategories))
	assert.Equal(t, "B2", b.UpdatedBookmarks[1].ID, "id filled from map key")
	assert.Equal(t, []string{"B9"}, b.DeletedIDs.Bookmarks)
	assert.JSONEq(t, `"2025-01-02T03:04:05Z"`, string(a.CurrentServerTime))
}

func TestDeltaResponse_NullAndAbsentFieldsDefaultToEmpty(t *testing.T) {
	var d DeltaResponse
	require.NoError(t, json.Unmarshal([]byte(`{"updated_categories":null,"deleted_ids":null,"current_server_time":1700000000}`), &d))

	assert.Empty(t, d.UpdatedCategories)
	assert.Empty(t, d.UpdatedBookmarks)
	assert.Empty(t, d.DeletedIDs.Bookmarks)
	assert.True(t, d.IsEmpty())
	assert.Equal(t, "1700000000", string(d.CurrentServerTime))
}

func TestDeltaResponse_RejectsScalarRecords(t *testing.T) {
	var d DeltaResponse
	require.Error(t, json.Unmarshal([]byte(`{"updated_bookmarks":"oops"}`), &d))
}

func TestDeltaRequest_NullCursor(t *testing.T) {
	b, err := json.Marshal(DeltaRequest{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"last_sync_timestamp":null,"bookmarks":null,"categories":null}`, string(b))

	b, err = json.Marshal(DeltaRequest{LastSyncTimestamp: json.RawMessage(`"2025-01-01T00:00:00Z"`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"last_sync_timestamp":"2025-01-01T00:00:00Z","bookmarks":null,"categories":null}`, string(b))
}

func TestDecodeRecords_Shapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		ids  []string
	}{
		{name: "bare array", in: `[{"id":"C100","local_id":"C1"}]`, ids: []string{"C100"}},
		{name: "keyed array", in: `{"categories":[{"id":"C100"},{"id":"C101"}]}`, ids: []string{"C100", "C101"}},
		{name: "data map", in: `{"data":{"C101":{"name":"b"},"C100":{"name":"a"}}}`, ids: []string{"C100", "C101"}},
		{name: "single record", in: `{"id":"C100","local_id":"C1","name":"Tech"}`, ids: []string{"C100"}},
		{name: "empty body", in: ``, ids: []string{}},
		{name: "null", in: `null`, ids: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRecords[CategoryPayload]([]byte(tt.in), "categories")
			require.NoError(t, err)
			ids := []string{}
			for _, c := range got {
				ids = append(ids, c.ID)
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestTimestamp_Formats(t *testing.T) {
	want := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	tests := map[string]string{
		"rfc3339":        `"2024-05-06T07:08:09Z"`,
		"offset":         `"2024-05-06T09:08:09+02:00"`,
		"no zone":        `"2024-05-06T07:08:09"`,
		"epoch seconds":  `1714979289`,
		"epoch millis":   `1714979289000`,
		"numeric string": `"1714979289"`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(in), &ts))
			assert.True(t, want.Equal(ts.Time), "got %v", ts.Time)
		})
	}

	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	assert.True(t, ts.IsZero())
	require.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))

	b, err := json.Marshal(NewTimestamp(want.In(time.FixedZone("x", 3600))))
	require.NoError(t, err)
	assert.Equal(t, `"2024-05-06T07:08:09Z"`, string(b))
}

func TestBookmark_PayloadRoundTrip(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	local := Bookmark{
		ID: "B1", Title: "Go", URL: "https://go.dev", Tags: []string{"lang"},
		CategoryID: "C1", SyncVersion: 2, CreatedAt: now, UpdatedAt: now,
	}

	p := local.Payload()
	assert.Equal(t, "B1", p.LocalID, "unsynced records echo their local id")
	require.NotNil(t, p.CategoryID)
	assert.Nil(t, p.Note)

	p.ID = "B200"
	back := p.Bookmark()
	assert.Equal(t, "B200", back.ID)
	assert.True(t, back.Synced)
	assert.True(t, back.SameContent(&local))

	local.Synced = true
	assert.Empty(t, local.Payload().LocalID)
}

func TestBookmark_HasPendingMedia(t *testing.T) {
	b := Bookmark{}
	assert.False(t, b.HasPendingMedia())

	b.PendingImages = []string{"/tmp/a.png"}
	assert.True(t, b.HasPendingMedia())

	b.ImageURLs = []string{"https://cdn/b.png"}
	assert.True(t, b.HasPendingMedia(), "images left over from a partial upload are still pending")

	b.PendingImages = nil
	assert.False(t, b.HasPendingMedia())

	b.PendingFile = "/tmp/doc.pdf"
	assert.True(t, b.HasPendingMedia())
}

func TestBookmarkPayload_ClearedCategoryIsSentAsNull(t *testing.T) {
	b := Bookmark{ID: "b1", Title: "t", Synced: true}
	raw, err := json.Marshal(b.Payload())
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	require.Contains(t, fields, "category_id")
	assert.Equal(t, "null", string(fields["category_id"]))

	b.CategoryID = "c1"
	raw, err = json.Marshal(b.Payload())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"category_id":"c1"`)
}
