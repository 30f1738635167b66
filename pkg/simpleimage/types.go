package simpleimage

import (
	"slices"
	"time"
)

// Status is the lifecycle state of an image record.
type Status string

// Status constants. The coordinator only ever assigns StatusActive.
const (
	StatusActive Status = "ACTIVE"
)

// Image is the metadata record of a stored image.
type Image struct {
	ID          string    `json:"id"`
	ObjectPath  string    `json:"objectPath"`
	ObjectSize  string    `json:"objectSize"`
	TimeAdded   time.Time `json:"timeAdded"`
	TimeUpdated time.Time `json:"timeUpdated"`
	Labels      []string  `json:"labels"`
	Status      Status    `json:"status"`
}

// Key returns the composite key addressing the record in a metadata store.
func (i *Image) Key() ImageKey {
	return ImageKey{ID: i.ID, ObjectPath: i.ObjectPath}
}

// HasLabel reports whether the label set contains label.
func (i *Image) HasLabel(label string) bool {
	return slices.Contains(i.Labels, label)
}

// Clone returns a deep copy of the record.
func (i *Image) Clone() *Image {
	c := *i
	if i.Labels != nil {
		c.Labels = slices.Clone(i.Labels)
	}
	return &c
}

// ImageKey is the (partition, sort) key of an image record.
type ImageKey struct {
	ID         string
	ObjectPath string
}

// ScanFilter narrows a metadata scan. Zero-valued fields do not filter.
// Limit caps the number of matches returned; zero means no cap.
type ScanFilter struct {
	ID         string
	ObjectPath string
	Label      string
	Limit      int
}

// Match reports whether img passes every set criterion of the filter.
func (f ScanFilter) Match(img *Image) bool {
	if f.ID != "" && img.ID != f.ID {
		return false
	}
	if f.ObjectPath != "" && img.ObjectPath != f.ObjectPath {
		return false
	}
	if f.Label != "" && !img.HasLabel(f.Label) {
		return false
	}
	return true
}

// Full reports whether a result of n matches has reached the limit.
func (f ScanFilter) Full(n int) bool {
	return f.Limit > 0 && n >= f.Limit
}

// NormalizeLabels removes empty and duplicate labels, keeping first-seen order.
func NormalizeLabels(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l == "" || slices.Contains(out, l) {
			continue
		}
		out = append(out, l)
	}
	return out
}
