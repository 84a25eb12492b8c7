package storage

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestContentID(t *testing.T) {
	a, err := ComputeContentID([]byte("cocoa"))
	require.NoError(t, err)
	b, err := ComputeContentID([]byte("cocoa"))
	require.NoError(t, err)
	c, err := ComputeContentID([]byte("coffee"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a.String(), "bafkrei"), a)

	parsed, err := ParseContentID(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	v0, err := ParseContentID("QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG")
	require.NoError(t, err)
	assert.Equal(t, "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", v0.String())

	for _, bad := range []string{"", "../../etc/passwd", "not-a-cid"} {
		_, err := ParseContentID(bad)
		assert.ErrorIs(t, err, interfaces.ErrInvalidArgument, bad)
	}
}

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	b, err := NewFileBackend(t.TempDir(), discardLogger())
	require.NoError(t, err)
	assert.True(t, b.Available(ctx))

	data := []byte(`{"name":"Cocoa beans"}`)
	id, err := b.Store(ctx, data, interfaces.MetadataType)
	require.NoError(t, err)

	expected, err := ComputeContentID(data)
	require.NoError(t, err)
	assert.Equal(t, expected, id)

	got, err := b.Fetch(ctx, id, interfaces.MetadataType)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Content types are separate namespaces.
	_, err = b.Fetch(ctx, id, interfaces.ImageType)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	_, err = b.Fetch(ctx, interfaces.ContentID("../metadata/x"), interfaces.MetadataType)
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)
}

// fakePinata serves the pinning API and the gateway from one server.
type fakePinata struct {
	mu    sync.Mutex
	pins  map[string][]byte
	metas map[string]PinMetadata
	auth  []string
}

func newFakePinata(t *testing.T) (*fakePinata, *httptest.Server) {
	f := &fakePinata{pins: map[string][]byte{}, metas: map[string]PinMetadata{}}
	mux := http.NewServeMux()

	mux.HandleFunc("/data/testAuthentication", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-jwt" && r.Header.Get("pinata_api_key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"message":"Congratulations!"}`))
	})
	mux.HandleFunc("/pinning/pinJSONToIPFS", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Content  json.RawMessage `json:"pinataContent"`
			Metadata PinMetadata     `json:"pinataMetadata"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.pin(w, r, req.Content, req.Metadata)
	})
	mux.HandleFunc("/pinning/pinFileToIPFS", func(w http.ResponseWriter, r *http.Request) {
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		mr := multipart.NewReader(r.Body, params["boundary"])
		var data []byte
		var meta PinMetadata
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			body, _ := io.ReadAll(part)
			switch part.FormName() {
			case "file":
				data = body
			case "pinataMetadata":
				require.NoError(t, json.Unmarshal(body, &meta))
			}
		}
		f.pin(w, r, data, meta)
	})
	mux.HandleFunc("/ipfs/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		data, ok := f.pins[strings.TrimPrefix(r.URL.Path, "/ipfs/")]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakePinata) pin(w http.ResponseWriter, r *http.Request, data []byte, meta PinMetadata) {
	id, _ := ComputeContentID(data)
	f.mu.Lock()
	f.pins[id.String()] = data
	f.metas[id.String()] = meta
	f.auth = append(f.auth, r.Header.Get("Authorization")+r.Header.Get("pinata_api_key"))
	f.mu.Unlock()
	_ = json.NewEncoder(w).Encode(pinResponse{IpfsHash: id.String(), PinSize: int64(len(data)), Timestamp: time.Now().Format(time.RFC3339)})
}

func TestPinataBackend(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakePinata(t)

	b, err := NewPinataBackend(srv.URL, srv.URL, PinataCredentials{JWT: "good-jwt"}, 5*time.Second, discardLogger())
	require.NoError(t, err)
	assert.True(t, b.Available(ctx))

	doc := []byte(`{"name":"Shea butter","quantity":40}`)
	id, err := b.StoreWithMetadata(ctx, doc, interfaces.MetadataType, PinMetadata{Name: "Product - Shea butter"})
	require.NoError(t, err)
	assert.Equal(t, "Product - Shea butter", fake.metas[id.String()].Name)
	assert.Equal(t, []string{"Bearer good-jwt"}, fake.auth)

	got, err := b.Fetch(ctx, id, interfaces.MetadataType)
	require.NoError(t, err)
	assert.JSONEq(t, string(doc), string(got))

	img := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}
	imgID, err := b.Store(ctx, img, interfaces.ImageType)
	require.NoError(t, err)
	got, err = b.Fetch(ctx, imgID, interfaces.ImageType)
	require.NoError(t, err)
	assert.Equal(t, img, got)

	_, err = b.Store(ctx, []byte("not json"), interfaces.MetadataType)
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)

	missing, err := ComputeContentID([]byte("never pinned"))
	require.NoError(t, err)
	_, err = b.Fetch(ctx, missing, interfaces.MetadataType)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	assert.Equal(t, srv.URL+"/ipfs/"+id.String(), b.GatewayURL(id))
}

func TestPinataBackendCredentials(t *testing.T) {
	_, err := NewPinataBackend("", "", PinataCredentials{}, time.Second, discardLogger())
	assert.ErrorIs(t, err, interfaces.ErrConfiguration)

	_, srv := newFakePinata(t)
	b, err := NewPinataBackend(srv.URL, srv.URL, PinataCredentials{JWT: "stale"}, time.Second, discardLogger())
	require.NoError(t, err)
	assert.False(t, b.Available(context.Background()))

	srv.Close()
	b, err = NewPinataBackend(srv.URL, srv.URL, PinataCredentials{JWT: "good-jwt"}, time.Second, discardLogger())
	require.NoError(t, err)
	_, err = b.Store(context.Background(), []byte(`{}`), interfaces.MetadataType)
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
}

func TestFactory(t *testing.T) {
	sf := NewStorageBackendFactory(discardLogger())
	sf.getenv = func(string) string { return "env-jwt" }

	dir := t.TempDir()
	locs := make([]interfaces.StorageBackendLocation, 0, 3)
	for _, uri := range []string{
		"file://" + dir,
		"pinata://api.pinata.cloud/?gateway=https://example.mypinata.cloud",
		"ipfs://127.0.0.1:5001/?timeout=10s",
	} {
		loc, err := interfaces.NewStorageBackendLocation(uri)
		require.NoError(t, err)
		locs = append(locs, loc)
	}

	b, err := sf.StorageBackendFor(locs[0])
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, b)

	b, err = sf.StorageBackendFor(locs[1])
	require.NoError(t, err)
	pinata := b.(*PinataBackend)
	assert.Equal(t, "env-jwt", pinata.creds.JWT)
	assert.Equal(t, "https://api.pinata.cloud", pinata.apiURL)

	b, err = sf.StorageBackendFor(locs[2])
	require.NoError(t, err)
	assert.IsType(t, &IPFSBackend{}, b)

	multi, err := sf.CreateMultiBackend(locs)
	require.NoError(t, err)
	assert.Len(t, multi.(*MultiStorageBackend).backends, 3)

	bad, err := interfaces.NewStorageBackendLocation("ipfs://127.0.0.1/?timeout=soon")
	require.NoError(t, err)
	_, err = sf.StorageBackendFor(bad)
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	_, err = sf.CreateMultiBackend([]interfaces.StorageBackendLocation{bad})
	assert.ErrorIs(t, err, interfaces.ErrConfiguration)

	_, err = interfaces.NewStorageBackendLocation("github://owner/repo")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}

func TestMetadataStore(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakePinata(t)
	pinata, err := NewPinataBackend(srv.URL, srv.URL, PinataCredentials{APIKey: "key", SecretKey: "secret"}, 5*time.Second, discardLogger())
	require.NoError(t, err)
	files, err := NewFileBackend(t.TempDir(), discardLogger())
	require.NoError(t, err)

	store := NewMetadataStore(NewMultiStorageBackend([]interfaces.StorageBackend{pinata, files}, discardLogger()), "https://gw.example/")

	doc := ProductMetadata{
		Name:         "Cashew nuts",
		Category:     "Agriculture",
		Manufacturer: "Bouake Coop",
		BatchNumber:  "CN-7",
		Quantity:     12,
		UnitPrice:    4_000_000_000,
		Currency:     "SUI",
		CreatedAt:    1767225600000,
	}
	id, err := store.PinProductMetadata(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, "Product - Cashew nuts", fake.metas[id.String()].Name)
	assert.Equal(t, "product", fake.metas[id.String()].KeyValues["type"])
	assert.Equal(t, []string{"key"}, fake.auth)

	// The file mirror holds the same bytes under the same id.
	mirrored, err := files.Fetch(ctx, id, interfaces.MetadataType)
	require.NoError(t, err)
	assert.Equal(t, fake.pins[id.String()], mirrored)

	var back ProductMetadata
	require.NoError(t, store.FetchJSON(ctx, id, &back))
	assert.Equal(t, doc, back)
	assert.Equal(t, "https://gw.example/ipfs/"+id.String(), store.GatewayURL(id))

	_, err = store.PinProductMetadata(ctx, ProductMetadata{})
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)

	imgID, err := store.PinProductImage(ctx, []byte("jpeg bytes"), "Cashew nuts")
	require.NoError(t, err)
	assert.Equal(t, "product-image", fake.metas[imgID.String()].KeyValues["type"])

	_, err = store.PinProductImage(ctx, make([]byte, MaxImageSize+1), "Cashew nuts")
	assert.ErrorIs(t, err, interfaces.ErrContentTooLarge)
	_, err = store.PinFile(ctx, nil, PinMetadata{})
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)

	_, err = store.Fetch(ctx, "nope", interfaces.MetadataType)
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)
}
