package mediatypes

import (
	"path/filepath"
	"strings"
)

// FileType is the broad class of a file.
type FileType string

const (
	FileTypeVideo    FileType = "video"
	FileTypeImage    FileType = "image"
	FileTypeArtifact FileType = "artifact"
	FileTypeOther    FileType = "other"
)

// Format describes one known file extension.
type Format struct {
	Ext  string
	MIME string
	Type FileType
}

const defaultContentType = "application/octet-stream"

// formats covers library sources and every sidecar format the artifact
// workers write.
var formats = []Format{
	{".mp4", "video/mp4", FileTypeVideo},
	{".m4v", "video/x-m4v", FileTypeVideo},
	{".mkv", "video/x-matroska", FileTypeVideo},
	{".webm", "video/webm", FileTypeVideo},
	{".mov", "video/quicktime", FileTypeVideo},
	{".avi", "video/x-msvideo", FileTypeVideo},
	{".wmv", "video/x-ms-wmv", FileTypeVideo},
	{".flv", "video/x-flv", FileTypeVideo},
	{".mpg", "video/mpeg", FileTypeVideo},
	{".mpeg", "video/mpeg", FileTypeVideo},
	{".ts", "video/mp2t", FileTypeVideo},
	{".3gp", "video/3gpp", FileTypeVideo},

	{".jpg", "image/jpeg", FileTypeImage},
	{".jpeg", "image/jpeg", FileTypeImage},
	{".png", "image/png", FileTypeImage},
	{".webp", "image/webp", FileTypeImage},
	{".gif", "image/gif", FileTypeImage},
	{".bmp", "image/bmp", FileTypeImage},
	{".tif", "image/tiff", FileTypeImage},
	{".tiff", "image/tiff", FileTypeImage},

	{".json", "application/json", FileTypeArtifact},
	{".vtt", "text/vtt", FileTypeArtifact},
}

var byExt = func() map[string]Format {
	m := make(map[string]Format, len(formats))
	for _, f := range formats {
		m[f.Ext] = f
	}
	return m
}()

// Lookup returns the format of a file name or path, ignoring case.
func Lookup(name string) (Format, bool) {
	f, ok := byExt[strings.ToLower(filepath.Ext(name))]
	return f, ok
}

// Classify returns the FileType of a file name or path.
func Classify(name string) FileType {
	if f, ok := Lookup(name); ok {
		return f.Type
	}
	return FileTypeOther
}

// IsVideo reports whether name has a supported video extension.
func IsVideo(name string) bool {
	return Classify(name) == FileTypeVideo
}

// ContentType returns the MIME type for a file name, or
// application/octet-stream when the extension is unknown.
func ContentType(name string) string {
	if f, ok := Lookup(name); ok {
		return f.MIME
	}
	return defaultContentType
}
