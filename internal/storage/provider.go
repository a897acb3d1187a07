// Package storage defines the notes-directory abstraction.
package storage

import (
	"time"

	"github.com/starford/notelog/internal/models"
)

// Provider is the interface for note file operations. All paths are
// relative to the notes root.
type Provider interface {
	// List returns metadata for every note file under the root.
	List() ([]models.FileMetadata, error)
	// Stat returns metadata for a single note file.
	Stat(path string) (models.FileMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// SaveNote writes content into the dated directory layout, deriving the
	// filename from title and resolving collisions. Returns the relative path.
	SaveNote(title string, content []byte, now time.Time) (string, error)
}
