// Package services contains the application services of the server
// core: the index-aware query engine over ingested metadata and the
// ingestion pipeline that feeds it.
package services
