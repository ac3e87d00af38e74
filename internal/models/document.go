package models

import "time"

// CorpusDocument is a plain-text document delivered to the corpus location by
// the external extraction step. ID is the corpus-relative file name; Path is
// empty for documents that did not come from a file.
type CorpusDocument struct {
	ID          string    `json:"id"`
	Path        string    `json:"path,omitempty"`
	Text        string    `json:"-"`
	SizeBytes   int64     `json:"size_bytes"`
	ModTime     time.Time `json:"mod_time"`
	ContentHash string    `json:"content_hash"`
}
