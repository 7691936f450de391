// Package media uploads bookmark attachments and returns their public URLs.
//
// Two backends exist: the bookmark server's own /media/upload endpoint and
// an S3-compatible bucket reached through presigned PUT URLs.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/marksync/internal/client/client"
	"github.com/dmitrijs2005/marksync/internal/filex"
)

// MaxFileSize caps a single attachment.
const MaxFileSize = 50 << 20

// Uploader stores one file and returns the URL to put into the record.
type Uploader interface {
	Upload(ctx context.Context, f client.File) (string, error)
}

// Load reads a pending local attachment.
func Load(path string) (client.File, error) {
	data, err := filex.ReadLimited(path, MaxFileSize)
	if err != nil {
		return client.File{}, fmt.Errorf("read %s: %w", path, err)
	}
	return client.File{Name: filepath.Base(path), Data: data}, nil
}

// Exists reports whether a pending attachment is still on disk.
func Exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

// ServerUploader posts files to the bookmark server.
type ServerUploader struct {
	c client.Client
}

func NewServerUploader(c client.Client) *ServerUploader {
	return &ServerUploader{c: c}
}

func (u *ServerUploader) Upload(ctx context.Context, f client.File) (string, error) {
	resp, err := u.c.UploadMedia(ctx, f)
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}
