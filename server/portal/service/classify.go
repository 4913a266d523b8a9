package service

import "strings"

const (
	BucketImages    = "Images"
	BucketDocuments = "Documents"
	BucketPDFs      = "PDFs"
	BucketOther     = "Other"
)

type FolderTemplate struct {
	Name  string
	Icon  string
	Color string
}

// DefaultFolders are created once per project. The names double as the
// classifier's lookup keys and never change with the display locale.
var DefaultFolders = []FolderTemplate{
	{Name: BucketImages, Icon: "🖼️", Color: "#10b981"},
	{Name: BucketDocuments, Icon: "📄", Color: "#3b82f6"},
	{Name: BucketPDFs, Icon: "📕", Color: "#ef4444"},
	{Name: BucketOther, Icon: "📦", Color: "#6b7280"},
}

var documentMarkers = []string{"document", "text", "word", "excel", "powerpoint"}

// ClassifyFile maps a MIME type to one of the four buckets.
func ClassifyFile(fileType string) string {
	mime := strings.ToLower(strings.TrimSpace(fileType))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch {
	case strings.HasPrefix(mime, "image/"):
		return BucketImages
	case mime == "application/pdf":
		return BucketPDFs
	}
	for _, marker := range documentMarkers {
		if strings.Contains(mime, marker) {
			return BucketDocuments
		}
	}
	return BucketOther
}
