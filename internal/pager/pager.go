// Package pager provides keyset pagination shared by the workflow and catalog
// store clients and by listing endpoints that page through results.
package pager

import (
	"context"
	"errors"
	"fmt"
)

// DefaultPageSize is used when a caller passes a non-positive size
const DefaultPageSize = 500

// ErrStop may be returned from an Each callback to end iteration early without error
var ErrStop = errors.New("pager: stop")

// Page is one slice of results plus the cursor for the next page.
// An empty Next means there are no further pages.
type Page[T any] struct {
	Items []T
	Next  string
}

// FetchFunc loads the page that starts after the given cursor.
// The first call receives an empty cursor.
type FetchFunc[T any] func(ctx context.Context, after string, size int) (Page[T], error)

// Each walks every page and calls fn for every item in order
func Each[T any](ctx context.Context, size int, fetch FetchFunc[T], fn func(T) error) error {
	if size <= 0 {
		size = DefaultPageSize
	}

	cursor := ""
	seen := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := fetch(ctx, cursor, size)
		if err != nil {
			return fmt.Errorf("fetch page after %q: %w", cursor, err)
		}

		for _, item := range page.Items {
			if err := fn(item); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
		}

		if page.Next == "" || len(page.Items) == 0 {
			return nil
		}

		// A cursor that repeats would loop forever
		if _, dup := seen[page.Next]; dup {
			return fmt.Errorf("pager: cursor %q repeated", page.Next)
		}
		seen[page.Next] = struct{}{}
		cursor = page.Next
	}
}

// All collects every item; limit > 0 caps the number returned
func All[T any](ctx context.Context, size, limit int, fetch FetchFunc[T]) ([]T, error) {
	var out []T
	err := Each(ctx, size, fetch, func(item T) error {
		out = append(out, item)
		if limit > 0 && len(out) >= limit {
			return ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Slice pages over an in-memory slice ordered by key. Useful for stores that
// can only return full result sets and for tests.
func Slice[T any](items []T, key func(T) string, after string, size int) Page[T] {
	if size <= 0 {
		size = DefaultPageSize
	}

	start := 0
	if after != "" {
		start = len(items)
		for i, item := range items {
			if key(item) > after {
				start = i
				break
			}
		}
	}

	end := start + size
	if end > len(items) {
		end = len(items)
	}

	page := Page[T]{Items: items[start:end]}
	if end < len(items) && end > start {
		page.Next = key(items[end-1])
	}
	return page
}
