package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// MaxImageSize is the upload limit for product images and documents.
const MaxImageSize = 10 << 20

// ProductMetadata is the off-chain document referenced by a product's metadata CID.
type ProductMetadata struct {
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	Category       string                 `json:"category"`
	Manufacturer   string                 `json:"manufacturer"`
	OriginLocation string                 `json:"originLocation"`
	BatchNumber    string                 `json:"batchNumber"`
	Quantity       uint64                 `json:"quantity"`
	UnitPrice      uint64                 `json:"unitPrice"`
	Currency       string                 `json:"currency"`
	CreatedAt      int64                  `json:"createdAt"`
	Attributes     map[string]interface{} `json:"attributes,omitempty"`
}

// MetadataStore pins product documents and files to a storage backend.
type MetadataStore struct {
	backend interfaces.StorageBackend
	gateway string
}

// NewMetadataStore wraps backend. gateway is the public IPFS gateway used for URLs.
func NewMetadataStore(backend interfaces.StorageBackend, gateway string) *MetadataStore {
	if gateway == "" {
		gateway = DefaultPinataGateway
	}
	return &MetadataStore{backend: backend, gateway: strings.TrimSuffix(gateway, "/")}
}

// GatewayURL returns the public URL of pinned content.
func (s *MetadataStore) GatewayURL(id interfaces.ContentID) string {
	return s.gateway + "/ipfs/" + id.String()
}

// PinJSON pins v as a JSON document.
func (s *MetadataStore) PinJSON(ctx context.Context, v interface{}, meta PinMetadata) (interfaces.ContentID, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v", interfaces.ErrInvalidArgument, err)
	}
	return s.store(ctx, data, interfaces.MetadataType, meta)
}

// PinFile pins an opaque file such as an image or a verification document.
func (s *MetadataStore) PinFile(ctx context.Context, data []byte, meta PinMetadata) (interfaces.ContentID, error) {
	if err := ValidateUploadSize(len(data)); err != nil {
		return "", err
	}
	return s.store(ctx, data, interfaces.ImageType, meta)
}

// PinProductMetadata pins the product document, tagged for later listing.
func (s *MetadataStore) PinProductMetadata(ctx context.Context, p ProductMetadata) (interfaces.ContentID, error) {
	if p.Name == "" {
		return "", fmt.Errorf("%w: product name is required", interfaces.ErrInvalidArgument)
	}
	return s.PinJSON(ctx, p, PinMetadata{
		Name: "Product - " + p.Name,
		KeyValues: map[string]interface{}{
			"type":         "product",
			"category":     p.Category,
			"manufacturer": p.Manufacturer,
			"batchNumber":  p.BatchNumber,
		},
	})
}

// PinProductImage pins a product image.
func (s *MetadataStore) PinProductImage(ctx context.Context, image []byte, productName string) (interfaces.ContentID, error) {
	return s.PinFile(ctx, image, PinMetadata{
		Name: "Product Image - " + productName,
		KeyValues: map[string]interface{}{
			"type":        "product-image",
			"productName": productName,
		},
	})
}

// Fetch reads pinned content.
func (s *MetadataStore) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	if _, err := ParseContentID(id.String()); err != nil {
		return nil, err
	}
	return s.backend.Fetch(ctx, id, contentType)
}

// FetchJSON reads a pinned JSON document into out.
func (s *MetadataStore) FetchJSON(ctx context.Context, id interfaces.ContentID, out interface{}) error {
	data, err := s.Fetch(ctx, id, interfaces.MetadataType)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("content %s is not a JSON document: %w", id, err)
	}
	return nil
}

// Available reports whether the underlying backend is reachable.
func (s *MetadataStore) Available(ctx context.Context) bool {
	return s.backend.Available(ctx)
}

func (s *MetadataStore) store(ctx context.Context, data []byte, ct interfaces.ContentType, meta PinMetadata) (interfaces.ContentID, error) {
	if pinner, ok := s.backend.(MetadataPinner); ok {
		return pinner.StoreWithMetadata(ctx, data, ct, meta)
	}
	return s.backend.Store(ctx, data, ct)
}

// ValidateUploadSize rejects empty uploads and uploads over MaxImageSize.
func ValidateUploadSize(n int) error {
	if n == 0 {
		return fmt.Errorf("%w: empty upload", interfaces.ErrInvalidArgument)
	}
	if n > MaxImageSize {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte limit", interfaces.ErrContentTooLarge, n, MaxImageSize)
	}
	return nil
}
