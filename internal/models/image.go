package models

import "time"

type Image struct {
	ID              string     `json:"id"`
	Description     string     `json:"description"`
	URL             string     `json:"image"`
	OwnerID         int64      `json:"-"`
	Owner           *Owner     `json:"owner,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	PendingDeleteAt *time.Time `json:"-"`
}

type Pagination struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalImages int64 `json:"totalImages"`
	TotalPages  int64 `json:"totalPages"`
	HasNext     bool  `json:"hasNext"`
	HasPrev     bool  `json:"hasPrev"`
}

type RecentImages struct {
	Images     []Image    `json:"images"`
	Pagination Pagination `json:"pagination"`
}

// NewPagination derives page counts for a newest-first listing.
func NewPagination(page, limit int, total int64) Pagination {
	totalPages := int64(0)
	if limit > 0 {
		totalPages = (total + int64(limit) - 1) / int64(limit)
	}
	return Pagination{
		Page:        page,
		Limit:       limit,
		TotalImages: total,
		TotalPages:  totalPages,
		HasNext:     int64(page) < totalPages,
		HasPrev:     page > 1,
	}
}
