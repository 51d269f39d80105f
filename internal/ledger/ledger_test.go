package ledger

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rec := &Record{
		CertID:         "abc",
		Name:           "Ana",
		Course:         "Math",
		Date:           "2024-05-01",
		Signature:      "sig",
		ContentHash:    "hash",
		CreatedAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		AdditionalData: json.RawMessage(`{"Name":"Ana"}`),
	}
	require.NoError(t, store.Put(ctx, rec))

	got, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Put(ctx, rec), ErrDuplicate)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreConcurrentPut(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Put(ctx, &Record{CertID: string(rune('a'+i%26)) + string(rune('A'+i/26))})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, store.Len())
}
