package api

import (
	"math"
	"net/http"
	"strconv"
)

// maxPageSize caps the page size a client may request.
const maxPageSize = 500

// PaginationParams holds parsed pagination values from query params.
type PaginationParams struct {
	Page int
	Size int
}

// PaginatedResponse wraps any list data with pagination metadata.
type PaginatedResponse struct {
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

// PaginationMeta contains pagination metadata for the response.
type PaginationMeta struct {
	Page       int   `json:"page"`
	Size       int   `json:"size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasMore    bool  `json:"has_more"`
}

// ParsePagination extracts page and size from query params with defaults.
// defaultSize is used when no size param is provided; maxSize caps the
// maximum allowed size to prevent abuse.
func ParsePagination(r *http.Request, defaultSize, maxSize int) PaginationParams {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))

	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultSize
	}
	if size > maxSize {
		size = maxSize
	}

	return PaginationParams{Page: page, Size: size}
}

// NewPaginatedResponse builds a PaginatedResponse from data, params, and
// total count.
func NewPaginatedResponse(data interface{}, params PaginationParams, total int64) PaginatedResponse {
	totalPages := int(math.Ceil(float64(total) / float64(params.Size)))
	if totalPages < 1 {
		totalPages = 1
	}

	return PaginatedResponse{
		Data: data,
		Pagination: PaginationMeta{
			Page:       params.Page,
			Size:       params.Size,
			Total:      total,
			TotalPages: totalPages,
			HasMore:    params.Page < totalPages,
		},
	}
}
