package sync

import (
	"fmt"

	"github.com/dmitrijs2005/marksync/internal/client/models"
)

// Cipher is the field encryption adapter.
type Cipher interface {
	Encrypt(text string) (string, error)
	// Decrypt returns text unchanged and false when it is not ciphertext.
	Decrypt(text string) (string, bool)
	KeyAvailable() bool
}

type plainCipher struct{}

func (plainCipher) Encrypt(text string) (string, error) { return text, nil }
func (plainCipher) Decrypt(text string) (string, bool)  { return text, false }
func (plainCipher) KeyAvailable() bool                  { return false }

// decryptField rewrites *s once; it reports whether anything changed.
func decryptField(c Cipher, s *string) bool {
	if plain, ok := c.Decrypt(*s); ok && plain != *s {
		*s = plain
		return true
	}
	return false
}

// decryptBookmark runs one decryption step over every text field.
func decryptBookmark(c Cipher, b *models.Bookmark) bool {
	changed := decryptField(c, &b.Title)
	changed = decryptField(c, &b.URL) || changed
	changed = decryptField(c, &b.Note) || changed
	if len(b.Tags) > 0 {
		tags := make([]string, len(b.Tags))
		copy(tags, b.Tags)
		tagsChanged := false
		for i := range tags {
			tagsChanged = decryptField(c, &tags[i]) || tagsChanged
		}
		if tagsChanged {
			b.Tags = tags
			changed = true
		}
	}
	if changed {
		b.IsEncrypted = false
	}
	return changed
}

func decryptCategory(c Cipher, cat *models.Category) bool {
	changed := decryptField(c, &cat.Name)
	if changed {
		cat.IsEncrypted = false
	}
	return changed
}

func encryptPtr(c Cipher, s *string) error {
	if s == nil {
		return nil
	}
	enc, err := c.Encrypt(*s)
	if err != nil {
		return err
	}
	*s = enc
	return nil
}

// sealBookmark encrypts the text fields of p when a key is available.
func sealBookmark(c Cipher, p *models.BookmarkPayload) error {
	if !c.KeyAvailable() {
		p.IsEncrypted = false
		return nil
	}
	var err error
	if p.Title, err = c.Encrypt(p.Title); err != nil {
		return fmt.Errorf("encrypt title of %s: %w", p.ID, err)
	}
	if err := encryptPtr(c, p.URL); err != nil {
		return fmt.Errorf("encrypt url of %s: %w", p.ID, err)
	}
	if err := encryptPtr(c, p.Note); err != nil {
		return fmt.Errorf("encrypt note of %s: %w", p.ID, err)
	}
	if len(p.Tags) > 0 {
		tags := make([]string, len(p.Tags))
		for i, t := range p.Tags {
			if tags[i], err = c.Encrypt(t); err != nil {
				return fmt.Errorf("encrypt tags of %s: %w", p.ID, err)
			}
		}
		p.Tags = tags
	}
	p.IsEncrypted = true
	return nil
}

func sealCategory(c Cipher, p *models.CategoryPayload) error {
	if !c.KeyAvailable() {
		p.IsEncrypted = false
		return nil
	}
	name, err := c.Encrypt(p.Name)
	if err != nil {
		return fmt.Errorf("encrypt name of %s: %w", p.ID, err)
	}
	p.Name = name
	p.IsEncrypted = true
	return nil
}
