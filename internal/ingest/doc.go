// Package ingest turns user-supplied paths and streams into image uploads.
// Directories are scanned recursively; anything that does not sniff as an
// image is skipped and reported rather than failing the whole batch.
package ingest
