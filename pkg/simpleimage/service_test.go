package simpleimage_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-image/pkg/simpleimage"
	repomemory "github.com/tendant/simple-image/pkg/simpleimage/repo/memory"
	storagememory "github.com/tendant/simple-image/pkg/simpleimage/storage/memory"
)

var fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   simpleimage.Service
	blobs *storagememory.Backend
	repo  *repomemory.Repository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	blobs := storagememory.New()
	repo := repomemory.New()
	svc, err := simpleimage.New(
		simpleimage.WithBlobStore(blobs),
		simpleimage.WithMetadataStore(repo),
		simpleimage.WithClock(func() time.Time { return fixedTime }),
	)
	require.NoError(t, err)
	return fixture{svc: svc, blobs: blobs, repo: repo}
}

func upload(name, contentType, data string) simpleimage.UploadImageRequest {
	return simpleimage.UploadImageRequest{
		Reader:      strings.NewReader(data),
		FileName:    name,
		ContentType: contentType,
		Size:        int64(len(data)),
	}
}

// Mock blob store for failure injection
type mockBlobStore struct {
	mock.Mock
}

func (m *mockBlobStore) BucketExists(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *mockBlobStore) CreateBucket(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockBlobStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	return m.Called(ctx, key, size, contentType).Error(0)
}

func (m *mockBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *mockBlobStore) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

// Mock metadata store for failure injection
type mockMetadataStore struct {
	mock.Mock
}

func (m *mockMetadataStore) Put(ctx context.Context, image *simpleimage.Image) error {
	return m.Called(ctx, image).Error(0)
}

func (m *mockMetadataStore) Get(ctx context.Context, key simpleimage.ImageKey) (*simpleimage.Image, error) {
	args := m.Called(ctx, key)
	img, _ := args.Get(0).(*simpleimage.Image)
	return img, args.Error(1)
}

func (m *mockMetadataStore) Delete(ctx context.Context, key simpleimage.ImageKey) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockMetadataStore) Scan(ctx context.Context, filter simpleimage.ScanFilter) ([]*simpleimage.Image, error) {
	args := m.Called(ctx, filter)
	imgs, _ := args.Get(0).([]*simpleimage.Image)
	return imgs, args.Error(1)
}

func (m *mockMetadataStore) UpdateLabels(ctx context.Context, key simpleimage.ImageKey, labels []string, updatedAt time.Time) error {
	return m.Called(ctx, key, labels, updatedAt).Error(0)
}

type recordingSink struct {
	created []string
	deleted []string
}

func (r *recordingSink) ImageCreated(ctx context.Context, image *simpleimage.Image) error {
	r.created = append(r.created, image.ID)
	return nil
}

func (r *recordingSink) ImageDeleted(ctx context.Context, image *simpleimage.Image) error {
	r.deleted = append(r.deleted, image.ID)
	return nil
}

func TestNew_RequiresStores(t *testing.T) {
	_, err := simpleimage.New(simpleimage.WithMetadataStore(repomemory.New()))
	assert.Error(t, err)
	_, err = simpleimage.New(simpleimage.WithBlobStore(storagememory.New()))
	assert.Error(t, err)
}

func TestCreateImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	img, err := f.svc.CreateImage(ctx, upload("test.jpg", "image/jpeg", "fake jpeg contents!"))
	require.NoError(t, err)

	assert.NotEmpty(t, img.ID)
	assert.Equal(t, "images/"+img.ID+"_test.jpg", img.ObjectPath)
	assert.Equal(t, "19", img.ObjectSize)
	assert.Equal(t, fixedTime, img.TimeAdded)
	assert.Equal(t, img.TimeAdded, img.TimeUpdated)
	assert.Nil(t, img.Labels)
	assert.Equal(t, simpleimage.StatusActive, img.Status)

	// The bucket was created on demand and the blob carries the declared type
	exists, err := f.blobs.BucketExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
	contentType, ok := f.blobs.ContentType(img.ObjectPath)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", contentType)
}

func TestCreateImage_DistinctIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.CreateImage(ctx, upload("same.png", "image/png", "aaa"))
	require.NoError(t, err)
	b, err := f.svc.CreateImage(ctx, upload("same.png", "image/png", "bbb"))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.ObjectPath, b.ObjectPath)
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	data := "fake jpeg contents!"

	created, err := f.svc.CreateImage(ctx, upload("test.jpg", "image/jpeg", data))
	require.NoError(t, err)

	got, err := f.svc.GetImage(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	dl, err := f.svc.DownloadImage(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte(data), dl.Data)
	assert.Equal(t, "image/jpeg", dl.ContentType)
	assert.Equal(t, ".jpg", dl.Extension)
	assert.Equal(t, "image-"+created.ID+".jpg", dl.Filename())
}

func TestDownloadImage_UnknownExtension(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateImage(ctx, upload("scan.raw", "image/png", "raw"))
	require.NoError(t, err)

	dl, err := f.svc.DownloadImage(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, simpleimage.DefaultContentType, dl.ContentType)
	assert.Equal(t, "", dl.Extension)
}

func TestGetImage_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetImage(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, simpleimage.ErrImageNotFound)
	assert.Equal(t, simpleimage.ErrImageNotFound, simpleimage.KindOf(err))
}

func TestDeleteImage(t *testing.T) {
	sink := &recordingSink{}
	blobs := storagememory.New()
	repo := repomemory.New()
	svc, err := simpleimage.New(
		simpleimage.WithBlobStore(blobs),
		simpleimage.WithMetadataStore(repo),
		simpleimage.WithEventSink(sink),
	)
	require.NoError(t, err)
	ctx := context.Background()

	created, err := svc.CreateImage(ctx, upload("test.jpg", "image/jpeg", "data"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteImage(ctx, created.ID))

	t.Run("NotFoundAfterDelete", func(t *testing.T) {
		_, err := svc.GetImage(ctx, created.ID)
		assert.ErrorIs(t, err, simpleimage.ErrImageNotFound)
		_, err = svc.DownloadImage(ctx, created.ID)
		assert.ErrorIs(t, err, simpleimage.ErrImageNotFound)
		assert.Equal(t, 0, blobs.Len())
	})

	t.Run("Idempotent", func(t *testing.T) {
		assert.NoError(t, svc.DeleteImage(ctx, created.ID))
		assert.NoError(t, svc.DeleteImage(ctx, "never-existed"))
	})

	assert.Equal(t, []string{created.ID}, sink.created)
	assert.Equal(t, []string{created.ID}, sink.deleted)
}

func TestDeleteImage_MissingBlobStillRemovesRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateImage(ctx, upload("test.jpg", "image/jpeg", "data"))
	require.NoError(t, err)
	require.NoError(t, f.blobs.Delete(ctx, created.ObjectPath))

	require.NoError(t, f.svc.DeleteImage(ctx, created.ID))
	_, err = f.svc.GetImage(ctx, created.ID)
	assert.ErrorIs(t, err, simpleimage.ErrImageNotFound)
}

func TestSearchByLabel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cat, err := f.svc.CreateImage(ctx, upload("cat.jpg", "image/jpeg", "meow"))
	require.NoError(t, err)
	dog, err := f.svc.CreateImage(ctx, upload("dog.jpg", "image/jpeg", "woof"))
	require.NoError(t, err)

	require.NoError(t, f.repo.UpdateLabels(ctx, cat.Key(), []string{"Cat", "Animal"}, fixedTime))
	require.NoError(t, f.repo.UpdateLabels(ctx, dog.Key(), []string{"Dog", "Animal"}, fixedTime))

	res, err := f.svc.SearchByLabel(ctx, "Animal")
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, cat.ID, res[0].ID)
	assert.Equal(t, dog.ID, res[1].ID)

	res, err = f.svc.SearchByLabel(ctx, "Cat")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, cat.ID, res[0].ID)

	t.Run("NoMatchIsEmptyNotNil", func(t *testing.T) {
		res, err := f.svc.SearchByLabel(ctx, "nonexistent")
		require.NoError(t, err)
		assert.NotNil(t, res)
		assert.Empty(t, res)
	})

	t.Run("EmptyLabelRejected", func(t *testing.T) {
		_, err := f.svc.SearchByLabel(ctx, "")
		assert.ErrorIs(t, err, simpleimage.ErrValidationRejected)
	})
}

func TestCreateImage_BucketPrecondition(t *testing.T) {
	cases := []struct {
		name       string
		existsErr  error
		createErr  error
		wantKind   error
		wantCreate bool
	}{
		{name: "AccessDenied", existsErr: fmt.Errorf("%w: 403", simpleimage.ErrAccessDenied), wantKind: simpleimage.ErrStorageAccessDenied},
		{name: "NoSuchBucket", existsErr: simpleimage.ErrNoSuchBucket, wantKind: simpleimage.ErrBucketNotFound},
		{name: "Unreachable", existsErr: errors.New("connection refused"), wantKind: simpleimage.ErrStorageUnavailable},
		{name: "CreateDenied", createErr: simpleimage.ErrAccessDenied, wantKind: simpleimage.ErrStorageAccessDenied, wantCreate: true},
		{name: "CreateFailed", createErr: errors.New("quota exceeded"), wantKind: simpleimage.ErrStorageUnavailable, wantCreate: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			blobs := new(mockBlobStore)
			repo := new(mockMetadataStore)
			blobs.On("BucketExists", mock.Anything).Return(false, tc.existsErr)
			if tc.wantCreate {
				blobs.On("CreateBucket", mock.Anything).Return(tc.createErr)
			}

			svc, err := simpleimage.New(simpleimage.WithBlobStore(blobs), simpleimage.WithMetadataStore(repo))
			require.NoError(t, err)

			_, err = svc.CreateImage(context.Background(), upload("test.jpg", "image/jpeg", "data"))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantKind)
			assert.Equal(t, tc.wantKind, simpleimage.KindOf(err))

			// Nothing is written when the precondition fails
			blobs.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			repo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateImage_ConcurrentBucketCreateIsSuccess(t *testing.T) {
	blobs := new(mockBlobStore)
	repo := new(mockMetadataStore)
	blobs.On("BucketExists", mock.Anything).Return(false, nil)
	blobs.On("CreateBucket", mock.Anything).Return(simpleimage.ErrBucketAlreadyExists)
	blobs.On("Put", mock.Anything, mock.Anything, int64(4), "image/jpeg").Return(nil)
	repo.On("Put", mock.Anything, mock.Anything).Return(nil)

	svc, err := simpleimage.New(simpleimage.WithBlobStore(blobs), simpleimage.WithMetadataStore(repo))
	require.NoError(t, err)

	_, err = svc.CreateImage(context.Background(), upload("test.jpg", "image/jpeg", "data"))
	require.NoError(t, err)
	blobs.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestCreateImage_BlobFailureWritesNoRecord(t *testing.T) {
	blobs := new(mockBlobStore)
	repo := new(mockMetadataStore)
	blobs.On("BucketExists", mock.Anything).Return(true, nil)
	blobs.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("network reset"))

	svc, err := simpleimage.New(simpleimage.WithBlobStore(blobs), simpleimage.WithMetadataStore(repo))
	require.NoError(t, err)

	_, err = svc.CreateImage(context.Background(), upload("test.jpg", "image/jpeg", "data"))
	assert.ErrorIs(t, err, simpleimage.ErrUploadFailed)
	repo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestCreateImage_MetadataFailureLeavesOrphanBlob(t *testing.T) {
	blobs := storagememory.NewWithBucket()
	repo := new(mockMetadataStore)
	repo.On("Put", mock.Anything, mock.Anything).Return(errors.New("table unavailable"))

	svc, err := simpleimage.New(simpleimage.WithBlobStore(blobs), simpleimage.WithMetadataStore(repo))
	require.NoError(t, err)

	_, err = svc.CreateImage(context.Background(), upload("test.jpg", "image/jpeg", "data"))
	assert.ErrorIs(t, err, simpleimage.ErrInternal)
	assert.Equal(t, 1, blobs.Len())
}

func TestDeleteImage_BlobFailureKeepsRecord(t *testing.T) {
	img := &simpleimage.Image{ID: "abc", ObjectPath: "images/abc_test.jpg", Status: simpleimage.StatusActive}
	blobs := new(mockBlobStore)
	repo := new(mockMetadataStore)
	repo.On("Scan", mock.Anything, simpleimage.ScanFilter{ID: "abc", Limit: 1}).Return([]*simpleimage.Image{img}, nil)
	blobs.On("Delete", mock.Anything, img.ObjectPath).Return(errors.New("access denied by policy"))

	svc, err := simpleimage.New(simpleimage.WithBlobStore(blobs), simpleimage.WithMetadataStore(repo))
	require.NoError(t, err)

	err = svc.DeleteImage(context.Background(), "abc")
	assert.ErrorIs(t, err, simpleimage.ErrDeleteFailed)
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDownloadImage_BlobFailure(t *testing.T) {
	img := &simpleimage.Image{ID: "abc", ObjectPath: "images/abc_test.jpg"}
	blobs := new(mockBlobStore)
	repo := new(mockMetadataStore)
	repo.On("Scan", mock.Anything, mock.Anything).Return([]*simpleimage.Image{img}, nil)
	blobs.On("Get", mock.Anything, img.ObjectPath).Return(nil, simpleimage.ErrObjectNotFound)

	svc, err := simpleimage.New(simpleimage.WithBlobStore(blobs), simpleimage.WithMetadataStore(repo))
	require.NoError(t, err)

	_, err = svc.DownloadImage(context.Background(), "abc")
	assert.ErrorIs(t, err, simpleimage.ErrDownloadFailed)
	assert.Equal(t, simpleimage.ErrObjectNotFound, simpleimage.RootCause(err))
}

func TestMetadataUnavailableIsInternal(t *testing.T) {
	blobs := new(mockBlobStore)
	repo := new(mockMetadataStore)
	repo.On("Scan", mock.Anything, mock.Anything).Return(nil, errors.New("dial tcp: timeout"))

	svc, err := simpleimage.New(simpleimage.WithBlobStore(blobs), simpleimage.WithMetadataStore(repo))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.GetImage(ctx, "abc")
	assert.ErrorIs(t, err, simpleimage.ErrInternal)
	_, err = svc.SearchByLabel(ctx, "Cat")
	assert.ErrorIs(t, err, simpleimage.ErrInternal)
	assert.ErrorIs(t, svc.DeleteImage(ctx, "abc"), simpleimage.ErrInternal)
	_, err = svc.DownloadImage(ctx, "abc")
	assert.ErrorIs(t, err, simpleimage.ErrInternal)
}

func TestCreateImage_StreamsReader(t *testing.T) {
	f := newFixture(t)
	data := bytes.Repeat([]byte("x"), 1<<16)
	img, err := f.svc.CreateImage(context.Background(), simpleimage.UploadImageRequest{
		Reader:      bytes.NewReader(data),
		FileName:    "big.png",
		ContentType: "image/png",
		Size:        int64(len(data)),
	})
	require.NoError(t, err)
	assert.Equal(t, "65536", img.ObjectSize)
}
