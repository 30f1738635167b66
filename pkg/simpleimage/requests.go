package simpleimage

import "io"

// UploadImageRequest contains the parameters for creating an image
type UploadImageRequest struct {
	Reader      io.Reader
	FileName    string
	ContentType string
	Size        int64
}

// DownloadResult is the resolved content of an image
type DownloadResult struct {
	ImageID     string
	Data        []byte
	ContentType string
	Extension   string
}

// Filename returns the name under which the content is offered to clients.
func (d *DownloadResult) Filename() string {
	return DownloadFilename(d.ImageID, d.Extension)
}
