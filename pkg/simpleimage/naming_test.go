package simpleimage

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewImageID(t *testing.T) {
	id := NewImageID()
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.NotEqual(t, id, NewImageID())
}

func TestObjectPath(t *testing.T) {
	assert.Equal(t, "images/abc_test.jpg", ObjectPath("abc", "test.jpg"))
	assert.Equal(t, "images/abc_", ObjectPath("abc", ""))
}

func TestContentTypeFromPath(t *testing.T) {
	tests := map[string]string{
		"images/a_photo.jpg":  "image/jpeg",
		"images/a_photo.JPEG": "image/jpeg",
		"images/a_photo.png":  "image/png",
		"images/a_anim.gif":   "image/gif",
		"images/a_pic.webp":   "image/webp",
		"images/a_noext":      DefaultContentType,
		"images/a_data.bin":   DefaultContentType,
	}
	for path, want := range tests {
		assert.Equal(t, want, ContentTypeFromPath(path), path)
	}
}

func TestExtensionForContentType(t *testing.T) {
	assert.Equal(t, ".jpg", ExtensionForContentType("image/jpeg"))
	assert.Equal(t, ".jpg", ExtensionForContentType("IMAGE/JPEG"))
	assert.Equal(t, ".png", ExtensionForContentType("image/png"))
	assert.Equal(t, ".gif", ExtensionForContentType("image/gif"))
	assert.Equal(t, ".webp", ExtensionForContentType("image/webp"))
	assert.Equal(t, "", ExtensionForContentType("image/bmp"))
	assert.Equal(t, "", ExtensionForContentType(DefaultContentType))
}

func TestDownloadFilename(t *testing.T) {
	assert.Equal(t, "image-abc.png", DownloadFilename("abc", ".png"))
	assert.Equal(t, "image-abc", DownloadFilename("abc", ""))
}
