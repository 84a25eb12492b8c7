// Package storage pins product metadata and images to content-addressed backends.
//
// Every backend identifies content by its IPFS CID, so a document pinned to
// Pinata can be fetched back from a local IPFS node, a file mirror or an S3
// mirror under the same identifier. Locally computed identifiers are CIDv1
// over the raw bytes with a sha2-256 multihash.
//
// # Storage URI Format
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - pinata://api.pinata.cloud/?gateway=https://gateway.pinata.cloud
//   - ipfs://127.0.0.1:5001/?timeout=30s
//   - file:///var/lib/escrow-gateway/pins/
//   - s3://bucket-name/prefix/?region=eu-west-1
//
// Pinata credentials are taken from the URI user info (api key and secret) or
// from the PINATA_JWT environment variable.
//
// # Multiple Backends
//
// MultiStorageBackend stores to every available backend and fetches from the
// first one that has the content. StorageBackendFactory builds it from a list
// of URIs.
//
// # Product Metadata
//
// MetadataStore builds on a backend to pin product metadata documents and
// product images (at most 10 MiB) and to resolve gateway URLs.
package storage
