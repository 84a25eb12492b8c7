package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

const (
	DefaultPinataAPI     = "https://api.pinata.cloud"
	DefaultPinataGateway = "https://gateway.pinata.cloud"
)

// PinMetadata names a pin and attaches searchable key-values to it.
type PinMetadata struct {
	Name      string                 `json:"name,omitempty"`
	KeyValues map[string]interface{} `json:"keyvalues,omitempty"`
}

// MetadataPinner is implemented by backends that keep pin metadata alongside content.
type MetadataPinner interface {
	StoreWithMetadata(ctx context.Context, data []byte, contentType interfaces.ContentType, meta PinMetadata) (interfaces.ContentID, error)
}

// PinataCredentials authenticate against the pinning API. JWT takes precedence
// over the key pair.
type PinataCredentials struct {
	JWT       string
	APIKey    string
	SecretKey string
}

// PinataBackend pins content through the Pinata pinning API and fetches it
// back through a Pinata gateway.
type PinataBackend struct {
	apiURL      string
	gatewayURL  string
	creds       PinataCredentials
	client      *http.Client
	log         *slog.Logger
	locationURI string
}

type pinResponse struct {
	IpfsHash    string `json:"IpfsHash"`
	PinSize     int64  `json:"PinSize"`
	Timestamp   string `json:"Timestamp"`
	IsDuplicate bool   `json:"isDuplicate,omitempty"`
}

// NewPinataBackend creates a Pinata backend. Empty URLs fall back to the public endpoints.
func NewPinataBackend(apiURL, gatewayURL string, creds PinataCredentials, timeout time.Duration, log *slog.Logger) (*PinataBackend, error) {
	if apiURL == "" {
		apiURL = DefaultPinataAPI
	}
	if gatewayURL == "" {
		gatewayURL = DefaultPinataGateway
	}
	if creds.JWT == "" && (creds.APIKey == "" || creds.SecretKey == "") {
		return nil, fmt.Errorf("%w: pinata requires a JWT or an api key and secret", interfaces.ErrConfiguration)
	}

	apiURL = strings.TrimSuffix(apiURL, "/")
	gatewayURL = strings.TrimSuffix(gatewayURL, "/")
	return &PinataBackend{
		apiURL:      apiURL,
		gatewayURL:  gatewayURL,
		creds:       creds,
		client:      &http.Client{Timeout: timeout},
		log:         log,
		locationURI: fmt.Sprintf("pinata://%s/?gateway=%s", strings.TrimPrefix(strings.TrimPrefix(apiURL, "https://"), "http://"), gatewayURL),
	}, nil
}

// GatewayURL returns the public URL of pinned content.
func (b *PinataBackend) GatewayURL(id interfaces.ContentID) string {
	return b.gatewayURL + "/ipfs/" + id.String()
}

// Fetch reads pinned content through the gateway.
func (b *PinataBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	start := time.Now()
	canonical, err := ParseContentID(id.String())
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.GatewayURL(canonical), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, interfaces.ErrContentNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: gateway returned %d: %s", interfaces.ErrBackendUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	b.log.Debug("Fetched content from Pinata gateway",
		slog.String("content_id", shortID(id)),
		slog.String("content_type", contentType.String()),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	return data, nil
}

// Store pins data without pin metadata.
func (b *PinataBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	return b.StoreWithMetadata(ctx, data, contentType, PinMetadata{})
}

// StoreWithMetadata pins metadata documents as JSON and everything else as a file.
func (b *PinataBackend) StoreWithMetadata(ctx context.Context, data []byte, contentType interfaces.ContentType, meta PinMetadata) (interfaces.ContentID, error) {
	start := time.Now()

	var (
		body        io.Reader
		contentMime string
		endpoint    string
	)
	switch contentType {
	case interfaces.MetadataType:
		if !json.Valid(data) {
			return "", fmt.Errorf("%w: metadata content is not valid JSON", interfaces.ErrInvalidArgument)
		}
		payload, err := json.Marshal(map[string]interface{}{
			"pinataContent":  json.RawMessage(data),
			"pinataMetadata": meta,
			"pinataOptions":  map[string]int{"cidVersion": 1},
		})
		if err != nil {
			return "", fmt.Errorf("failed to encode pin request: %w", err)
		}
		body, contentMime, endpoint = bytes.NewReader(payload), "application/json", "/pinning/pinJSONToIPFS"
	default:
		buf := &bytes.Buffer{}
		mw := multipart.NewWriter(buf)
		name := meta.Name
		if name == "" {
			name = "upload"
		}
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			return "", fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := fw.Write(data); err != nil {
			return "", fmt.Errorf("failed to write form file: %w", err)
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return "", fmt.Errorf("failed to encode pin metadata: %w", err)
		}
		if err := mw.WriteField("pinataMetadata", string(metaJSON)); err != nil {
			return "", err
		}
		if err := mw.WriteField("pinataOptions", `{"cidVersion":1}`); err != nil {
			return "", err
		}
		if err := mw.Close(); err != nil {
			return "", err
		}
		body, contentMime, endpoint = buf, mw.FormDataContentType(), "/pinning/pinFileToIPFS"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiURL+endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentMime)
	b.authorize(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("pinata returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
		}
		return "", err
	}

	var pinned pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pinned); err != nil {
		return "", fmt.Errorf("failed to decode pin response: %w", err)
	}
	id, err := ParseContentID(pinned.IpfsHash)
	if err != nil {
		return "", fmt.Errorf("pinata returned an invalid content id: %w", err)
	}

	b.log.Info("Pinned content",
		slog.String("content_id", id.String()),
		slog.String("content_type", contentType.String()),
		slog.Int64("pin_size", pinned.PinSize),
		slog.Bool("duplicate", pinned.IsDuplicate),
		slog.Duration("duration", time.Since(start)))
	return id, nil
}

// Available checks the credentials against the authentication test endpoint.
func (b *PinataBackend) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.apiURL+"/data/testAuthentication", nil)
	if err != nil {
		return false
	}
	b.authorize(req)

	resp, err := b.client.Do(req)
	if err != nil {
		b.log.Debug("Pinata unavailable", "err", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Name returns a unique identifier for this storage backend.
func (b *PinataBackend) Name() string {
	return "pinata"
}

// LocationURI returns the URI that identifies this storage backend.
func (b *PinataBackend) LocationURI() string {
	return b.locationURI
}

func (b *PinataBackend) authorize(req *http.Request) {
	if b.creds.JWT != "" {
		req.Header.Set("Authorization", "Bearer "+b.creds.JWT)
		return
	}
	req.Header.Set("pinata_api_key", b.creds.APIKey)
	req.Header.Set("pinata_secret_api_key", b.creds.SecretKey)
}
