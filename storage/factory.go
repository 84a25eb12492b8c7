package storage

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// PinataJWTEnv names the environment variable read for Pinata credentials
// when the URI carries none.
const PinataJWTEnv = "PINATA_JWT"

// StorageBackendFactory creates storage backends from URI strings and manages
// multi-backend configurations for redundant storage.
type StorageBackendFactory struct {
	log    *slog.Logger
	getenv func(string) string
}

// NewStorageBackendFactory creates a new factory instance that can create storage backends.
func NewStorageBackendFactory(logger *slog.Logger) *StorageBackendFactory {
	return &StorageBackendFactory{
		log:    logger,
		getenv: os.Getenv,
	}
}

// StorageBackendFor creates a storage backend from a location URI.
//
// Supported schemes:
//   - pinata:// - Pinata pinning API with gateway reads
//   - ipfs:// - Kubo node HTTP API
//   - s3:// - Amazon S3 or compatible object storage
//   - file:// - Local filesystem storage
func (sf *StorageBackendFactory) StorageBackendFor(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	switch loc.Scheme {
	case "pinata":
		return sf.createPinataBackend(loc)
	case "ipfs":
		return sf.createIPFSBackend(loc)
	case "s3":
		return sf.createS3Backend(loc)
	case "file":
		return sf.createFileBackend(loc)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme: %s", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}
}

// CreateMultiBackend creates a multi-storage backend from a list of location URIs.
// Returns an error if no valid backends could be created from the provided URIs.
func (sf *StorageBackendFactory) CreateMultiBackend(locs []interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	backends := make([]interfaces.StorageBackend, 0, len(locs))

	// Skip backends that fail to initialize; the rest still serve
	for _, loc := range locs {
		backend, err := sf.StorageBackendFor(loc)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("locationURI", loc.String()))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("%w: no valid storage backends created", interfaces.ErrConfiguration)
	}

	return NewMultiStorageBackend(backends, sf.log), nil
}

// createPinataBackend creates a Pinata backend.
// URI format: pinata://[API_KEY:SECRET@]api.pinata.cloud/?gateway=https://gateway.pinata.cloud&timeout=60s&insecure=true
// Without user info the JWT is read from PINATA_JWT.
func (sf *StorageBackendFactory) createPinataBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating Pinata backend", slog.String("host", loc.Host))

	// Key and secret from the URI, otherwise a JWT from the environment
	var creds PinataCredentials
	if loc.Auth != "" {
		key, secret, _ := strings.Cut(loc.Auth, ":")
		creds.APIKey, creds.SecretKey = key, secret
	} else {
		creds.JWT = sf.getenv(PinataJWTEnv)
	}

	// Empty host selects the public Pinata API
	apiURL := ""
	if loc.Host != "" {
		scheme := "https"
		if loc.GetParamBool("insecure") {
			scheme = "http"
		}
		apiURL = scheme + "://" + loc.Host
	}

	timeout, err := durationParam(loc, "timeout", 60*time.Second)
	if err != nil {
		return nil, err
	}

	return NewPinataBackend(apiURL, loc.GetParam("gateway"), creds, timeout, sf.log)
}

// createIPFSBackend creates an IPFS storage backend.
// URI format: ipfs://host:port/?timeout=30s
func (sf *StorageBackendFactory) createIPFSBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating IPFS backend", slog.String("host", loc.Host))

	// Defaults to the local Kubo API port
	host, port, found := strings.Cut(loc.Host, ":")
	if !found || port == "" {
		port = "5001"
	}
	if host == "" {
		host = "127.0.0.1"
	}

	timeout, err := durationParam(loc, "timeout", 30*time.Second)
	if err != nil {
		return nil, err
	}

	return NewIPFSBackend(host, port, timeout, sf.log)
}

// createS3Backend creates an S3 or S3-compatible storage backend.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/path/?region=us-west-2&endpoint=custom.s3.com
func (sf *StorageBackendFactory) createS3Backend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating S3 backend", slog.String("bucket", loc.Host))

	if loc.Host == "" {
		return nil, fmt.Errorf("%w: missing bucket in %s", interfaces.ErrInvalidLocationURI, loc.Raw)
	}

	// Extract region from query parameters
	region := loc.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	// Extract credentials from user info
	var accessKey, secretKey string
	if loc.Auth != "" {
		accessKey, secretKey, _ = strings.Cut(loc.Auth, ":")
		sf.log.Debug("Using embedded credentials for write access")
	} else {
		sf.log.Debug("No credentials provided, S3 bucket assumed to be public, write operations may fail")
	}

	return NewS3Backend(loc.Host, strings.TrimPrefix(loc.Path, "/"), region, loc.GetParam("endpoint"), accessKey, secretKey, sf.log)
}

// createFileBackend creates a file system storage backend.
// URI format: file:///absolute/path/ or file://./relative/path/
func (sf *StorageBackendFactory) createFileBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating file backend", slog.String("path", loc.Path))

	// file://./data puts "." in the host
	path := loc.Path
	if loc.Host != "" {
		path = loc.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI: %s", interfaces.ErrInvalidLocationURI, loc.Raw)
	}

	return NewFileBackend(path, sf.log)
}

func durationParam(loc interfaces.StorageBackendLocation, name string, def time.Duration) (time.Duration, error) {
	raw := loc.GetParam(name)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", interfaces.ErrInvalidLocationURI, name, raw)
	}
	return d, nil
}
