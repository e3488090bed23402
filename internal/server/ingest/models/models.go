// Package models defines the journal record model consumed by the catalog service.
package models

// JournalModel is the upload journal record written by the web service.
//
// Extras captures any fields not part of the expected structure, so records
// from a newer or corrupted journal can be detected instead of silently
// losing data.
type JournalModel struct {
	ID         string `mapstructure:"id"`
	Namespace  string `mapstructure:"namespace"`
	Path       string `mapstructure:"path"`
	Size       int64  `mapstructure:"size"`
	SHA256     string `mapstructure:"sha256"`
	MIME       string `mapstructure:"mime"`
	Mode       string `mapstructure:"mode"`
	UploadedAt string `mapstructure:"uploaded_at"`

	Extras map[string]any `mapstructure:",remain"`
}
