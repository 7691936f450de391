package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dmitrijs2005/marksync/internal/client/models"
	"github.com/dmitrijs2005/marksync/internal/logging"
)

const defaultTimeout = 30 * time.Second

// HTTPClient implements Client over net/http.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     logging.Logger
}

type Option func(*HTTPClient)

func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.http = c }
}

func WithTimeout(d time.Duration) Option {
	return func(h *HTTPClient) {
		if d > 0 {
			h.http.Timeout = d
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(h *HTTPClient) { h.log = l }
}

func NewHTTPClient(baseURL string, tokens TokenSource, opts ...Option) *HTTPClient {
	h := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		tokens:  tokens,
		log:     logging.Nop(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

type request struct {
	op          string
	method      string
	path        string
	body        []byte
	contentType string
}

func (h *HTTPClient) do(ctx context.Context, r request) ([]byte, error) {
	token, err := h.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, h.baseURL+r.path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", r.op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	start := time.Now()
	resp, err := h.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%s: %w", r.op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%s: read body: %w", r.op, err)
	}

	h.log.Debug(ctx, "request done", "op", r.op, "method", r.method, "path", r.path,
		"status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	return nil, statusError(r.op, resp.StatusCode, data)
}

func statusError(op string, code int, body []byte) error {
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}
	var eb models.ErrorBody
	if json.Unmarshal(body, &eb) == nil && eb.Message != "" {
		return fmt.Errorf("%s: %w", op, &ServerError{StatusCode: code, Message: eb.Message})
	}
	return fmt.Errorf("%s: %w", op, &UnexpectedStatusError{StatusCode: code})
}

func (h *HTTPClient) postJSON(ctx context.Context, op, path string, v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", op, err)
	}
	return h.do(ctx, request{op: op, method: http.MethodPost, path: path, body: b, contentType: "application/json"})
}

func (h *HTTPClient) Delta(ctx context.Context, cursor json.RawMessage) (*models.DeltaResponse, error) {
	body, err := h.postJSON(ctx, "delta", "/sync/delta", models.DeltaRequest{LastSyncTimestamp: cursor})
	if err != nil {
		return nil, err
	}
	var resp models.DeltaResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, &DecodingError{Op: "delta", Err: err}
		}
	}
	return &resp, nil
}

func (h *HTTPClient) UpsertBookmarks(ctx context.Context, items []models.BookmarkPayload) ([]models.BookmarkPayload, error) {
	body, err := h.postJSON(ctx, "upsert bookmarks", "/bookmarks/upsert", models.BookmarkUpsertRequest{Bookmarks: items})
	if err != nil {
		return nil, err
	}
	out, err := models.DecodeRecords[models.BookmarkPayload](body, "bookmarks")
	if err != nil {
		return nil, &DecodingError{Op: "upsert bookmarks", Err: err}
	}
	return out, nil
}

func (h *HTTPClient) UpsertCategories(ctx context.Context, items []models.CategoryPayload) ([]models.CategoryPayload, error) {
	body, err := h.postJSON(ctx, "upsert categories", "/categories/upsert", models.CategoryUpsertRequest{Categories: items})
	if err != nil {
		return nil, err
	}
	out, err := models.DecodeRecords[models.CategoryPayload](body, "categories")
	if err != nil {
		return nil, &DecodingError{Op: "upsert categories", Err: err}
	}
	return out, nil
}

func writeFilePart(w *multipart.Writer, field string, f File) error {
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, f.Name))
	hdr.Set("Content-Type", mimetype.Detect(f.Data).String())
	part, err := w.CreatePart(hdr)
	if err != nil {
		return err
	}
	_, err = part.Write(f.Data)
	return err
}

func (h *HTTPClient) UpsertBookmarkMultipart(ctx context.Context, item models.BookmarkPayload, images []File, doc *File) ([]models.BookmarkPayload, error) {
	const op = "upsert bookmark multipart"

	payload, err := json.Marshal(models.BookmarkUpsertRequest{Bookmarks: []models.BookmarkPayload{item}})
	if err != nil {
		return nil, fmt.Errorf("%s: encode payload: %w", op, err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("payload", string(payload)); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, img := range images {
		if err := writeFilePart(w, "images", img); err != nil {
			return nil, fmt.Errorf("%s: image part: %w", op, err)
		}
	}
	if doc != nil {
		if err := writeFilePart(w, "file", *doc); err != nil {
			return nil, fmt.Errorf("%s: file part: %w", op, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	body, err := h.do(ctx, request{op: op, method: http.MethodPost, path: "/bookmarks/upsert", body: buf.Bytes(), contentType: w.FormDataContentType()})
	if err != nil {
		return nil, err
	}
	out, err := models.DecodeRecords[models.BookmarkPayload](body, "bookmarks")
	if err != nil {
		return nil, &DecodingError{Op: op, Err: err}
	}
	return out, nil
}

func (h *HTTPClient) DeleteBookmark(ctx context.Context, id string) error {
	_, err := h.do(ctx, request{op: "delete bookmark", method: http.MethodDelete, path: "/bookmarks/" + url.PathEscape(id)})
	return err
}

func (h *HTTPClient) DeleteCategory(ctx context.Context, id string) error {
	_, err := h.do(ctx, request{op: "delete category", method: http.MethodDelete, path: "/categories/" + url.PathEscape(id)})
	return err
}

func (h *HTTPClient) UploadMedia(ctx context.Context, f File) (*models.MediaUploadResponse, error) {
	const op = "upload media"

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := writeFilePart(w, "file", f); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	body, err := h.do(ctx, request{op: op, method: http.MethodPost, path: "/media/upload", body: buf.Bytes(), contentType: w.FormDataContentType()})
	if err != nil {
		return nil, err
	}
	var resp models.MediaUploadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &DecodingError{Op: op, Err: err}
	}
	if resp.URL == "" {
		return nil, &DecodingError{Op: op, Err: errors.New("missing url")}
	}
	return &resp, nil
}

// Ping issues an unauthenticated HEAD on the base URL. Any HTTP answer
// counts as reachable.
func (h *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, h.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := h.http.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}
