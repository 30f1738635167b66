package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-image/pkg/simpleimage"
)

func newImage(id, name string, labels ...string) *simpleimage.Image {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &simpleimage.Image{
		ID:          id,
		ObjectPath:  simpleimage.ObjectPath(id, name),
		ObjectSize:  "19",
		TimeAdded:   now,
		TimeUpdated: now,
		Labels:      labels,
		Status:      simpleimage.StatusActive,
	}
}

func TestRepository_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	repo := New()
	img := newImage("a", "test.jpg")

	require.NoError(t, repo.Put(ctx, img))

	got, err := repo.Get(ctx, img.Key())
	require.NoError(t, err)
	assert.Equal(t, img, got)

	// Returned records are copies
	got.Status = "MUTATED"
	again, err := repo.Get(ctx, img.Key())
	require.NoError(t, err)
	assert.Equal(t, simpleimage.StatusActive, again.Status)

	require.NoError(t, repo.Delete(ctx, img.Key()))
	_, err = repo.Get(ctx, img.Key())
	assert.ErrorIs(t, err, simpleimage.ErrRecordNotFound)

	// Deleting a missing record is not an error
	assert.NoError(t, repo.Delete(ctx, img.Key()))
}

func TestRepository_Scan(t *testing.T) {
	ctx := context.Background()
	repo := New()
	a := newImage("a", "cat.jpg", "Cat", "Animal")
	b := newImage("b", "dog.png", "Dog", "Animal")
	c := newImage("c", "car.gif", "Car")
	for _, img := range []*simpleimage.Image{a, b, c} {
		require.NoError(t, repo.Put(ctx, img))
	}

	t.Run("ByID", func(t *testing.T) {
		res, err := repo.Scan(ctx, simpleimage.ScanFilter{ID: "b", Limit: 1})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "b", res[0].ID)
	})

	t.Run("ByLabelInInsertionOrder", func(t *testing.T) {
		res, err := repo.Scan(ctx, simpleimage.ScanFilter{Label: "Animal"})
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "a", res[0].ID)
		assert.Equal(t, "b", res[1].ID)
	})

	t.Run("LabelIsCaseSensitive", func(t *testing.T) {
		res, err := repo.Scan(ctx, simpleimage.ScanFilter{Label: "animal"})
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("ByObjectPath", func(t *testing.T) {
		res, err := repo.Scan(ctx, simpleimage.ScanFilter{ObjectPath: c.ObjectPath})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "c", res[0].ID)
	})

	t.Run("UnknownID", func(t *testing.T) {
		res, err := repo.Scan(ctx, simpleimage.ScanFilter{ID: "missing", Limit: 1})
		require.NoError(t, err)
		assert.Empty(t, res)
	})
}

func TestRepository_UpdateLabels(t *testing.T) {
	ctx := context.Background()
	repo := New()
	img := newImage("a", "cat.jpg")
	require.NoError(t, repo.Put(ctx, img))

	later := img.TimeUpdated.Add(time.Minute)
	require.NoError(t, repo.UpdateLabels(ctx, img.Key(), []string{"Cat", "", "Cat", "Pet"}, later))

	got, err := repo.Get(ctx, img.Key())
	require.NoError(t, err)
	assert.Equal(t, []string{"Cat", "Pet"}, got.Labels)
	assert.Equal(t, later, got.TimeUpdated)
	assert.Equal(t, img.TimeAdded, got.TimeAdded)

	err = repo.UpdateLabels(ctx, simpleimage.ImageKey{ID: "x", ObjectPath: "y"}, nil, later)
	assert.ErrorIs(t, err, simpleimage.ErrRecordNotFound)
}
