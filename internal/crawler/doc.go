// Package crawler defines the records, errors and collaborator interfaces
// shared by the fetch, parse, load and orchestration packages, plus the
// URL helpers for gyakorikerdesek.hu listing and thread pages.
package crawler
