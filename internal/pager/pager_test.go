package pager

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("k%03d", i)
	}
	return out
}

func sliceFetch(items []string, calls *int) FetchFunc[string] {
	return func(ctx context.Context, after string, size int) (Page[string], error) {
		*calls++
		return Slice(items, func(s string) string { return s }, after, size), nil
	}
}

func TestAll_WalksEveryPage(t *testing.T) {
	items := keys(25)
	calls := 0

	got, err := All(context.Background(), 10, 0, sliceFetch(items, &calls))
	require.NoError(t, err)
	assert.Equal(t, items, got)
	assert.Equal(t, 3, calls)
}

func TestAll_RespectsLimit(t *testing.T) {
	calls := 0
	got, err := All(context.Background(), 4, 6, sliceFetch(keys(25), &calls))
	require.NoError(t, err)
	assert.Len(t, got, 6)
	assert.Equal(t, "k005", got[5])
	assert.Equal(t, 2, calls)
}

func TestEach_EmptySource(t *testing.T) {
	calls := 0
	got, err := All(context.Background(), 10, 0, sliceFetch(nil, &calls))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, calls)
}

func TestEach_PropagatesFetchError(t *testing.T) {
	boom := errors.New("boom")
	fetch := func(ctx context.Context, after string, size int) (Page[string], error) {
		return Page[string]{}, boom
	}
	err := Each(context.Background(), 10, fetch, func(string) error { return nil })
	assert.ErrorIs(t, err, boom)
}

func TestEach_DetectsRepeatedCursor(t *testing.T) {
	fetch := func(ctx context.Context, after string, size int) (Page[string], error) {
		return Page[string]{Items: []string{"a"}, Next: "same"}, nil
	}
	err := Each(context.Background(), 10, fetch, func(string) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repeated")
}

func TestEach_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Each(ctx, 10, sliceFetch(keys(5), &calls), func(string) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestSlice_AfterLastKey(t *testing.T) {
	page := Slice(keys(3), func(s string) string { return s }, "k002", 10)
	assert.Empty(t, page.Items)
	assert.Empty(t, page.Next)
}
