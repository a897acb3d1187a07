package api

import (
	"github.com/starford/notelog/internal/models"
	"github.com/starford/notelog/internal/noteservice"
)

// AddNoteRequest is the request body for creating a note.
type AddNoteRequest struct {
	Content string   `json:"content" example:"# Hello\nWorld" validate:"required"`
	Tags    []string `json:"tags" example:"project,meeting"`
}

// EditTagsRequest is the request body for a tag edit.
type EditTagsRequest struct {
	Add    []string `json:"add" example:"final"`
	Remove []string `json:"remove" example:"draft"`
}

// Note is the full note response type (aliased from the domain layer).
type Note = models.Note

// SearchResponse wraps search results (aliased from the domain layer).
type SearchResponse = noteservice.SearchResult

// TagListResponse wraps the tag ledger.
type TagListResponse struct {
	Tags []noteservice.TagCount `json:"tags" validate:"required"`
}
