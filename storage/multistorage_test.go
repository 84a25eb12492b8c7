package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const labelCID = interfaces.ContentID("bafkreihdwdcefgh4dqkjv67uzcmw7ojee6xedzdetojuzjevtenxquvyku")

func pinningBackend(name string, available bool) *MockStorageBackend {
	b := &MockStorageBackend{BackendName: name}
	b.On("Available", mock.Anything).Return(available)
	return b
}

// metadataPinner records pin metadata next to the mock calls.
type metadataPinner struct {
	*MockStorageBackend
	meta PinMetadata
}

func (p *metadataPinner) StoreWithMetadata(ctx context.Context, data []byte, contentType interfaces.ContentType, meta PinMetadata) (interfaces.ContentID, error) {
	p.meta = meta
	return p.Store(ctx, data, contentType)
}

func TestMultiStorageFetchFallsBack(t *testing.T) {
	doc := []byte(`{"name":"Cashew kernels"}`)

	offline := pinningBackend("pinata", false)
	missing := pinningBackend("ipfs", true)
	missing.On("Fetch", mock.Anything, labelCID, interfaces.MetadataType).Return(nil, interfaces.ErrContentNotFound)
	mirror := pinningBackend("s3", true)
	mirror.On("Fetch", mock.Anything, labelCID, interfaces.MetadataType).Return(doc, nil)

	multi := NewMultiStorageBackend([]interfaces.StorageBackend{offline, missing, mirror}, discardLogger())
	data, err := multi.Fetch(context.Background(), labelCID, interfaces.MetadataType)
	require.NoError(t, err)
	assert.Equal(t, doc, data)

	offline.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything)
	missing.AssertExpectations(t)
	mirror.AssertExpectations(t)
}

func TestMultiStorageFetchClassification(t *testing.T) {
	ctx := context.Background()

	t.Run("not found everywhere", func(t *testing.T) {
		a := pinningBackend("a", true)
		a.On("Fetch", mock.Anything, labelCID, interfaces.ImageType).Return(nil, interfaces.ErrContentNotFound)
		b := pinningBackend("b", true)
		b.On("Fetch", mock.Anything, labelCID, interfaces.ImageType).Return(nil, interfaces.ErrContentNotFound)

		_, err := NewMultiStorageBackend([]interfaces.StorageBackend{a, b}, discardLogger()).Fetch(ctx, labelCID, interfaces.ImageType)
		assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
	})

	t.Run("one backend broken", func(t *testing.T) {
		a := pinningBackend("a", true)
		a.On("Fetch", mock.Anything, labelCID, interfaces.ImageType).Return(nil, interfaces.ErrContentNotFound)
		b := pinningBackend("b", true)
		b.On("Fetch", mock.Anything, labelCID, interfaces.ImageType).Return(nil, errors.New("connection refused"))

		_, err := NewMultiStorageBackend([]interfaces.StorageBackend{a, b}, discardLogger()).Fetch(ctx, labelCID, interfaces.ImageType)
		assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
		assert.NotErrorIs(t, err, interfaces.ErrContentNotFound)
	})

	t.Run("nothing reachable", func(t *testing.T) {
		multi := NewMultiStorageBackend([]interfaces.StorageBackend{pinningBackend("a", false)}, discardLogger())
		_, err := multi.Fetch(ctx, labelCID, interfaces.ImageType)
		assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
		assert.False(t, multi.Available(ctx))
	})
}

func TestMultiStorageStore(t *testing.T) {
	ctx := context.Background()
	image := []byte("png bytes")

	t.Run("first successful backend names the content", func(t *testing.T) {
		broken := pinningBackend("pinata", true)
		broken.On("Store", mock.Anything, image, interfaces.ImageType).Return(interfaces.ContentID(""), errors.New("401 unauthorized"))
		ipfs := &metadataPinner{MockStorageBackend: pinningBackend("ipfs", true)}
		ipfs.On("Store", mock.Anything, image, interfaces.ImageType).Return(labelCID, nil)
		mirror := pinningBackend("s3", true)
		mirror.On("Store", mock.Anything, image, interfaces.ImageType).Return(interfaces.ContentID("QmOtherLayout"), nil)

		multi := NewMultiStorageBackend([]interfaces.StorageBackend{broken, ipfs, mirror}, discardLogger())
		id, err := multi.StoreWithMetadata(ctx, image, interfaces.ImageType, PinMetadata{Name: "label.png"})
		require.NoError(t, err)
		assert.Equal(t, labelCID, id)
		assert.Equal(t, "label.png", ipfs.meta.Name)

		broken.AssertExpectations(t)
		ipfs.AssertExpectations(t)
		mirror.AssertExpectations(t)
	})

	t.Run("every backend fails", func(t *testing.T) {
		a := pinningBackend("a", true)
		a.On("Store", mock.Anything, image, interfaces.ImageType).Return(interfaces.ContentID(""), errors.New("quota exceeded"))
		b := pinningBackend("b", false)

		_, err := NewMultiStorageBackend([]interfaces.StorageBackend{a, b}, discardLogger()).Store(ctx, image, interfaces.ImageType)
		require.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
		assert.Contains(t, err.Error(), "quota exceeded")
		b.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestMultiStorageDescribesBackends(t *testing.T) {
	multi := NewMultiStorageBackend([]interfaces.StorageBackend{pinningBackend("a", true), pinningBackend("b", true)}, nil)
	assert.Equal(t, "multi-storage", multi.Name())
	assert.Equal(t, "multi:[mock:,mock:]", multi.LocationURI())
	assert.True(t, multi.Available(context.Background()))
}
