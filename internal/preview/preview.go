// Package preview generates local previews of files before they are uploaded.
//
// Images are inspected for format and bounds, text files are decoded tolerantly
// and truncated, and CSV files are reduced to their first records.
package preview

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"path/filepath"
	"strings"

	// Registered for image.DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrNoPreview is returned when a file type has no preview support.
var ErrNoPreview = errors.New("no preview available for this file type")

const (
	// maxTextRunes is the length text previews are truncated to.
	maxTextRunes = 500

	// maxCSVRecords is the number of data records shown in CSV previews.
	maxCSVRecords = 5

	// maxImageWidth is the width images are scaled down to for previewing.
	maxImageWidth = 300
)

var (
	imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".webp": true}
	textExts  = map[string]bool{".txt": true, ".md": true, ".json": true}
)

// Kind classifies a file name for display purposes.
type Kind string

// Kinds of files recognized for display.
const (
	KindImage       Kind = "image"
	KindDocument    Kind = "document"
	KindSpreadsheet Kind = "spreadsheet"
	KindArchive     Kind = "archive"
	KindAudio       Kind = "audio"
	KindVideo       Kind = "video"
	KindText        Kind = "text"
	KindCode        Kind = "code"
	KindOther       Kind = "other"
)

// KindOf returns the display kind for a file name based on its extension.
func KindOf(name string) Kind {
	switch ext := strings.ToLower(filepath.Ext(name)); {
	case imageExts[ext]:
		return KindImage
	case ext == ".pdf" || ext == ".doc" || ext == ".docx" || ext == ".ppt" || ext == ".pptx":
		return KindDocument
	case ext == ".xls" || ext == ".xlsx" || ext == ".csv":
		return KindSpreadsheet
	case ext == ".zip" || ext == ".rar" || ext == ".7z" || ext == ".tar" || ext == ".gz":
		return KindArchive
	case ext == ".mp3" || ext == ".wav" || ext == ".ogg" || ext == ".flac":
		return KindAudio
	case ext == ".mp4" || ext == ".avi" || ext == ".mov" || ext == ".wmv":
		return KindVideo
	case textExts[ext]:
		return KindText
	case ext == ".go" || ext == ".py" || ext == ".js" || ext == ".html" || ext == ".css" || ext == ".java" || ext == ".cpp":
		return KindCode
	default:
		return KindOther
	}
}

// MIMEType returns the MIME type of a file name, falling back to
// application/octet-stream when unknown.
func MIMEType(name string) string {
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}

// CanPreview reports whether the file type has preview support.
func CanPreview(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return imageExts[ext] || textExts[ext] || ext == ".csv"
}

// ImageInfo describes an image and the bounds of its scaled-down preview.
type ImageInfo struct {
	Format string
	Width  int
	Height int

	PreviewWidth  int
	PreviewHeight int
}

// Image reads the image header in data and computes its preview bounds.
func Image(data []byte) (ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("failed to decode image: %v", err)
	}

	info := ImageInfo{
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,

		PreviewWidth:  cfg.Width,
		PreviewHeight: cfg.Height,
	}
	if cfg.Width > maxImageWidth {
		ratio := float64(maxImageWidth) / float64(cfg.Width)
		info.PreviewWidth = maxImageWidth
		info.PreviewHeight = int(float64(cfg.Height) * ratio)
	}

	return info, nil
}

// Text decodes data as text and truncates it for previewing.
// UTF-16 input with a byte order mark is converted transparently.
func Text(data []byte) (string, error) {
	bomReader := transform.NewReader(bytes.NewReader(data), unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	decoded, err := io.ReadAll(bomReader)
	if err != nil {
		return "", fmt.Errorf("failed to decode text: %v", err)
	}
	text := string(decoded)

	runes := []rune(text)
	if len(runes) > maxTextRunes {
		return string(runes[:maxTextRunes]) + "...", nil
	}
	return text, nil
}

// CSV parses data as CSV and returns at most the header plus the first
// records for previewing.
func CSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	var records [][]string
	for len(records) < maxCSVRecords+1 {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV: %v", err)
		}
		records = append(records, record)
	}

	return records, nil
}

// For generates a preview for a file, dispatching on its extension.
// The returned string is ready for terminal display.
func For(name string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case imageExts[ext]:
		info, err := Image(data)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s image, %dx%d (preview %dx%d)",
			info.Format, info.Width, info.Height, info.PreviewWidth, info.PreviewHeight), nil
	case textExts[ext]:
		return Text(data)
	case ext == ".csv":
		records, err := CSV(data)
		if err != nil {
			return "", err
		}
		var sb strings.Builder
		for _, record := range records {
			sb.WriteString(strings.Join(record, " | "))
			sb.WriteString("\n")
		}
		return sb.String(), nil
	default:
		return "", ErrNoPreview
	}
}
