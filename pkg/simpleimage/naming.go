package simpleimage

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

// ObjectPathPrefix is the blob key prefix under which image content is stored.
const ObjectPathPrefix = "images/"

// DefaultContentType is reported when the content type cannot be inferred.
const DefaultContentType = "application/octet-stream"

// contentTypesByExtension is the fixed extension table used for download
// content type inference. Keys are lowercase and include the dot.
var contentTypesByExtension = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".jpe":  "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".svg":  "image/svg+xml",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".ico":  "image/x-icon",
	".heic": "image/heic",
	".avif": "image/avif",
}

var extensionsByContentType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// NewImageID returns a fresh random image identifier.
func NewImageID() string {
	return uuid.NewString()
}

// ObjectPath returns the blob key for an image: images/{id}_{fileName}.
func ObjectPath(id, fileName string) string {
	return ObjectPathPrefix + id + "_" + fileName
}

// ContentTypeFromPath infers a content type from the extension of objectPath,
// falling back to DefaultContentType.
func ContentTypeFromPath(objectPath string) string {
	ext := strings.ToLower(path.Ext(objectPath))
	if ct, ok := contentTypesByExtension[ext]; ok {
		return ct
	}
	return DefaultContentType
}

// ExtensionForContentType maps a content type to its canonical file
// extension. Matching is case-insensitive; unknown types map to "".
func ExtensionForContentType(contentType string) string {
	return extensionsByContentType[strings.ToLower(strings.TrimSpace(contentType))]
}

// DownloadFilename returns the client-facing file name for an image.
func DownloadFilename(id, ext string) string {
	return "image-" + id + ext
}
