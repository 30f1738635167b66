package annotate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-image/pkg/simpleimage"
	"github.com/tendant/simple-image/pkg/simpleimage/repo/memory"
	memorystorage "github.com/tendant/simple-image/pkg/simpleimage/storage/memory"
)

type stubDetector struct {
	labels []Label
	err    error
	calls  int
	seen   []string
}

func (s *stubDetector) DetectLabels(ctx context.Context, image []byte) ([]Label, error) {
	s.calls++
	s.seen = append(s.seen, string(image))
	return s.labels, s.err
}

var later = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func setup(t *testing.T, detector Detector) (*Annotator, simpleimage.Service, *memory.Repository) {
	t.Helper()
	blobs := memorystorage.New()
	repo := memory.New()
	svc, err := simpleimage.New(simpleimage.WithBlobStore(blobs), simpleimage.WithMetadataStore(repo))
	require.NoError(t, err)

	a, err := New(blobs, repo, detector, WithClock(func() time.Time { return later }))
	require.NoError(t, err)
	return a, svc, repo
}

func create(t *testing.T, svc simpleimage.Service, name, data string) *simpleimage.Image {
	t.Helper()
	img, err := svc.CreateImage(context.Background(), simpleimage.UploadImageRequest{
		Reader:      strings.NewReader(data),
		FileName:    name,
		ContentType: "image/jpeg",
		Size:        int64(len(data)),
	})
	require.NoError(t, err)
	return img
}

func TestIsAnnotatable(t *testing.T) {
	assert.True(t, IsAnnotatable("images/a_cat.jpg"))
	assert.True(t, IsAnnotatable("images/a_cat.JPEG"))
	assert.True(t, IsAnnotatable("images/a_cat.png"))
	assert.False(t, IsAnnotatable("images/a_anim.gif"))
	assert.False(t, IsAnnotatable("images/a_noext"))
}

func TestAnnotateByID(t *testing.T) {
	detector := &stubDetector{labels: []Label{{Name: "Cat", Confidence: 98}, {Name: "Pet", Confidence: 80}, {Name: "Cat", Confidence: 76}}}
	a, svc, _ := setup(t, detector)
	img := create(t, svc, "cat.jpg", "meow")

	annotated, err := a.AnnotateByID(context.Background(), img.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cat", "Pet"}, annotated.Labels)
	assert.Equal(t, []string{"meow"}, detector.seen)

	got, err := svc.GetImage(context.Background(), img.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cat", "Pet"}, got.Labels)
	assert.Equal(t, later, got.TimeUpdated)
	assert.Equal(t, img.TimeAdded, got.TimeAdded)

	found, err := svc.SearchByLabel(context.Background(), "Pet")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, img.ID, found[0].ID)
}

func TestAnnotateByID_NotFound(t *testing.T) {
	a, _, _ := setup(t, &stubDetector{})
	_, err := a.AnnotateByID(context.Background(), "missing")
	assert.ErrorIs(t, err, simpleimage.ErrImageNotFound)
}

func TestAnnotateByObjectPath_SkipsNonImages(t *testing.T) {
	detector := &stubDetector{}
	a, svc, _ := setup(t, detector)
	img := create(t, svc, "anim.gif", "gif")

	_, err := a.AnnotateByObjectPath(context.Background(), img.ObjectPath)
	assert.ErrorIs(t, err, ErrNotAnImage)
	_, err = a.AnnotateByID(context.Background(), img.ID)
	assert.ErrorIs(t, err, ErrNotAnImage)
	assert.Zero(t, detector.calls)
}

func TestAnnotateByObjectPath_DetectorFailureLeavesLabels(t *testing.T) {
	a, svc, repo := setup(t, &stubDetector{err: errors.New("throttled")})
	img := create(t, svc, "cat.png", "png")

	_, err := a.AnnotateByObjectPath(context.Background(), img.ObjectPath)
	require.Error(t, err)

	got, err := repo.Get(context.Background(), img.Key())
	require.NoError(t, err)
	assert.Nil(t, got.Labels)
	assert.Equal(t, img.TimeUpdated, got.TimeUpdated)
}

func TestAnnotateObjectPaths_ContinuesPastFailures(t *testing.T) {
	detector := &stubDetector{labels: []Label{{Name: "Dog", Confidence: 90}}}
	a, svc, _ := setup(t, detector)
	dog := create(t, svc, "dog.jpg", "woof")
	gif := create(t, svc, "anim.gif", "gif")

	outcomes := a.AnnotateObjectPaths(context.Background(), []string{
		"images/unknown_ghost.jpg",
		gif.ObjectPath,
		dog.ObjectPath,
	})
	require.Len(t, outcomes, 3)

	assert.ErrorIs(t, outcomes[0].Err, simpleimage.ErrImageNotFound)
	assert.True(t, outcomes[1].Skipped())
	require.NoError(t, outcomes[2].Err)
	assert.Equal(t, []string{"Dog"}, outcomes[2].Image.Labels)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, memory.New(), &stubDetector{})
	assert.Error(t, err)
}
