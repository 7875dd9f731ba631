package domain

import "time"

// CachedImage describes one transcoded image held in object storage.
// StorageKey is derived from a hash of OriginalURL, never of the bytes.
type CachedImage struct {
	StorageKey  string    `json:"storage_key"`
	ContentType string    `json:"content_type"`
	OriginalURL string    `json:"original_url"`
	Profile     string    `json:"profile"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Size        int64     `json:"size"`
	BlurHash    string    `json:"blur_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
