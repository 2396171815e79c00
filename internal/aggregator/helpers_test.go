package aggregator

import (
	"context"
	"testing"

	"github.com/starford/shelfcheck/internal/credstore"
	"github.com/starford/shelfcheck/internal/source"
)

func credstoreWith(t *testing.T, ids ...string) credstore.Store {
	t.Helper()
	store := credstore.NewMemory()
	for _, id := range ids {
		if err := store.Set(context.Background(), id, source.Credentials{}, false); err != nil {
			t.Fatal(err)
		}
	}
	return store
}
