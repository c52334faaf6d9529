package api

import "gumboard-api/domain"

const (
	noteBodyMaxSize    = 256 * 1024 // 256 KiB
	commandBodyMaxSize = 16 * 1024  // 16 KiB
)

// PUT/POST note responses
type noteResponse struct {
	Note *domain.Note `json:"note"`
}

// POST .../checklist/:itemId/split request body
type splitRequest struct {
	Cursor *int `json:"cursor"`
}

// POST .../checklist/:itemId/split response body
type splitResponse struct {
	Note     *domain.Note         `json:"note"`
	Original domain.ChecklistItem `json:"original"`
	Created  domain.ChecklistItem `json:"created"`
}

type errorResponse struct {
	Error string `json:"error"`
}
