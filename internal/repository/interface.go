package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository access shared by the table repositories.
type Repository interface {
	// Transaction runs fn on a transaction handle. Any error from fn rolls
	// the transaction back.
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Page size limits of listings.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page one page of a listing. The query fills in Total.
type Page struct {
	Number int
	Size   int
	Total  int64
}

// NewPage clamps number to at least 1 and size to 1..MaxPageSize. A size of
// zero or less means DefaultPageSize.
func NewPage(number, size int) *Page {
	if size <= 0 {
		size = DefaultPageSize
	}
	return &Page{
		Number: max(number, 1),
		Size:   min(size, MaxPageSize),
	}
}

func (p *Page) offset() int {
	return (p.Number - 1) * p.Size
}

// scope restricts a query to the page's rows.
func (p *Page) scope(db *gorm.DB) *gorm.DB {
	return db.Offset(p.offset()).Limit(p.Size)
}

type baseRepo struct {
	db *gorm.DB
}

func (r *baseRepo) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}
