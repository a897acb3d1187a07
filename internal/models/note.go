// Package models defines the domain types shared across the service.
package models

import (
	"time"

	"github.com/starford/notelog/internal/noteid"
)

// Note is the full representation of an indexed note.
type Note struct {
	ID      noteid.ID `json:"id"`
	Path    string    `json:"path"`
	Title   string    `json:"title"`
	Tags    []string  `json:"tags"`
	Created time.Time `json:"created"`
	Content string    `json:"content,omitempty"`
}

// NoteSummary is a lightweight result item for search and list responses.
type NoteSummary struct {
	ID      noteid.ID `json:"id"`
	Title   string    `json:"title"`
	Tags    []string  `json:"tags"`
	Created time.Time `json:"created"`
}

// FileMetadata describes a note file on disk without its content.
type FileMetadata struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"mtime"`
	Size    int64     `json:"size"`
}
