package store

import "time"

// Default page sizes for listings.
const (
	DefaultUserPageSize = 10
	DefaultLogPageSize  = 20
)

// UserUpdate lists the mutable user fields. Nil pointers are left untouched.
type UserUpdate struct {
	Name     *string
	MSV      *string
	IsActive *bool
}

// UserFilter selects a page of users.
type UserFilter struct {
	Page     int
	Limit    int
	IsActive *bool
	Search   string
}

// LogFilter selects a page of attendance logs.
type LogFilter struct {
	Page     int
	PageSize int
	UserID   string // External user id
	From     *time.Time
	To       *time.Time
}

// NormalizePage clamps page to >= 1 and size to 1..200, using defaultSize when unset.
func NormalizePage(page, size, defaultSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultSize
	}
	if size > 200 {
		size = 200
	}
	return page, size
}
