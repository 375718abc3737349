// Package media holds the in-memory image payload passed between the ingest,
// split and expand stages, plus MIME sniffing used to filter uploads.
package media
