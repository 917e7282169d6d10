// Package cryptoutil holds the digest helpers shared by the catalog loader,
// the catalog watcher and the static asset fingerprinting: sha256 hex
// digests, bounded hashing reads and constant-time digest comparison.
package cryptoutil
