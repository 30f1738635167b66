package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

// Repository implements simpleimage.MetadataStore using in-memory storage.
// Scans return records in insertion order.
type Repository struct {
	mu     sync.RWMutex
	images map[simpleimage.ImageKey]*simpleimage.Image
	order  []simpleimage.ImageKey
	byID   map[string][]simpleimage.ImageKey // id -> keys sharing the partition
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		images: make(map[simpleimage.ImageKey]*simpleimage.Image),
		byID:   make(map[string][]simpleimage.ImageKey),
	}
}

func (r *Repository) Put(ctx context.Context, image *simpleimage.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := image.Key()
	if _, exists := r.images[key]; !exists {
		r.order = append(r.order, key)
		r.byID[key.ID] = append(r.byID[key.ID], key)
	}
	// Store a copy to avoid external modifications
	r.images[key] = image.Clone()
	return nil
}

func (r *Repository) Get(ctx context.Context, key simpleimage.ImageKey) (*simpleimage.Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	image, exists := r.images[key]
	if !exists {
		return nil, simpleimage.ErrRecordNotFound
	}
	return image.Clone(), nil
}

func (r *Repository) Delete(ctx context.Context, key simpleimage.ImageKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.images[key]; !exists {
		return nil
	}
	delete(r.images, key)
	r.order = slices.DeleteFunc(r.order, func(k simpleimage.ImageKey) bool { return k == key })

	keys := slices.DeleteFunc(r.byID[key.ID], func(k simpleimage.ImageKey) bool { return k == key })
	if len(keys) == 0 {
		delete(r.byID, key.ID)
	} else {
		r.byID[key.ID] = keys
	}
	return nil
}

func (r *Repository) Scan(ctx context.Context, filter simpleimage.ScanFilter) ([]*simpleimage.Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := r.order
	if filter.ID != "" {
		candidates = r.byID[filter.ID]
	}

	var result []*simpleimage.Image
	for _, key := range candidates {
		image := r.images[key]
		if !filter.Match(image) {
			continue
		}
		result = append(result, image.Clone())
		if filter.Full(len(result)) {
			break
		}
	}
	return result, nil
}

func (r *Repository) UpdateLabels(ctx context.Context, key simpleimage.ImageKey, labels []string, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	image, exists := r.images[key]
	if !exists {
		return simpleimage.ErrRecordNotFound
	}
	image.Labels = simpleimage.NormalizeLabels(labels)
	image.TimeUpdated = updatedAt
	return nil
}
