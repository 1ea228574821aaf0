// Package storagetest holds the behavioural checks every storage.Store must pass.
package storagetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entregas/internal/storage"
)

// Run exercises a fresh store returned by newStore for every subtest.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("insert rejects duplicate ids", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Insert(ctx, storage.Costs, rec("a", `{"v":1}`)))
		err := s.Insert(ctx, storage.Costs, rec("a", `{"v":2}`))
		require.ErrorIs(t, err, storage.ErrDuplicateKey)

		got, err := s.Get(ctx, storage.Costs, "a")
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":1}`, string(got.Data))
	})

	t.Run("upsert replaces and keeps insertion order", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Upsert(ctx, storage.Companies, rec("b", `{"n":"first"}`)))
		require.NoError(t, s.Upsert(ctx, storage.Companies, rec("a", `{"n":"second"}`)))
		require.NoError(t, s.Upsert(ctx, storage.Companies, rec("b", `{"n":"edited"}`)))

		all, err := s.GetAll(ctx, storage.Companies)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "b", all[0].ID)
		assert.JSONEq(t, `{"n":"edited"}`, string(all[0].Data))
		assert.Equal(t, "a", all[1].ID)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Insert(ctx, storage.Refuels, rec("r1", `{}`)))
		require.NoError(t, s.Delete(ctx, storage.Refuels, "r1"))
		require.NoError(t, s.Delete(ctx, storage.Refuels, "r1"))
		require.NoError(t, s.Delete(ctx, storage.Refuels, "never-existed"))

		_, err := s.Get(ctx, storage.Refuels, "r1")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("collections are isolated", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Insert(ctx, storage.DailyEntries, rec("x", `{}`)))
		require.NoError(t, s.Insert(ctx, storage.Costs, rec("x", `{}`)))

		entries, err := s.GetAll(ctx, storage.DailyEntries)
		require.NoError(t, err)
		assert.Len(t, entries, 1)

		_, err = s.GetAll(ctx, storage.Collection("trips"))
		require.ErrorIs(t, err, storage.ErrUnknownCollection)
	})

	t.Run("config get and set", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		v, err := s.GetConfig(ctx, "vehicleSettings")
		require.NoError(t, err)
		assert.Nil(t, v)

		require.NoError(t, s.SetConfig(ctx, "vehicleSettings", json.RawMessage(`{"averageEfficiency":10}`)))
		require.NoError(t, s.SetConfig(ctx, "vehicleSettings", json.RawMessage(`{"averageEfficiency":12}`)))

		v, err = s.GetConfig(ctx, "vehicleSettings")
		require.NoError(t, err)
		assert.JSONEq(t, `{"averageEfficiency":12}`, string(v))

		entries, err := s.ListConfig(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "vehicleSettings", entries[0].Key)
	})

	t.Run("replace all swaps content", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Insert(ctx, storage.Costs, rec("old", `{}`)))
		require.NoError(t, s.SetConfig(ctx, "stale", json.RawMessage(`1`)))

		snap := storage.Snapshot{
			Records: map[storage.Collection][]storage.Record{
				storage.Companies: {rec("c1", `{"name":"A"}`)},
				storage.Costs:     {rec("n1", `{}`), rec("n2", `{}`)},
			},
			Settings: []storage.ConfigEntry{{Key: "vehicleSettings", Value: json.RawMessage(`{"lastFuelPrice":5}`)}},
		}
		require.NoError(t, s.ReplaceAll(ctx, snap))

		costs, err := s.GetAll(ctx, storage.Costs)
		require.NoError(t, err)
		assert.Equal(t, []string{"n1", "n2"}, ids(costs))

		stale, err := s.GetConfig(ctx, "stale")
		require.NoError(t, err)
		assert.Nil(t, stale)

		companies, err := s.GetAll(ctx, storage.Companies)
		require.NoError(t, err)
		assert.Equal(t, []string{"c1"}, ids(companies))
	})

	t.Run("failed replace keeps previous content", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Insert(ctx, storage.Costs, rec("keep", `{}`)))

		snap := storage.Snapshot{Records: map[storage.Collection][]storage.Record{
			storage.Costs: {rec("dup", `{}`), rec("dup", `{}`)},
		}}
		before, err := s.Generation(ctx)
		require.NoError(t, err)
		require.ErrorIs(t, s.ReplaceAll(ctx, snap), storage.ErrDuplicateKey)

		costs, err := s.GetAll(ctx, storage.Costs)
		require.NoError(t, err)
		assert.Equal(t, []string{"keep"}, ids(costs))

		after, err := s.Generation(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("generation advances on every write", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		last, err := s.Generation(ctx)
		require.NoError(t, err)
		advanced := func(step string) {
			t.Helper()
			g, err := s.Generation(ctx)
			require.NoError(t, err)
			assert.Greater(t, g, last, step)
			last = g
		}

		require.NoError(t, s.Insert(ctx, storage.Costs, rec("k1", `{}`)))
		advanced("insert")
		require.NoError(t, s.Upsert(ctx, storage.Costs, rec("k1", `{"v":2}`)))
		advanced("upsert")
		require.NoError(t, s.SetConfig(ctx, "vehicleSettings", json.RawMessage(`{}`)))
		advanced("set config")
		require.NoError(t, s.Delete(ctx, storage.Costs, "k1"))
		advanced("delete")

		_, err = s.GetAll(ctx, storage.Costs)
		require.NoError(t, err)
		_, err = s.ListConfig(ctx)
		require.NoError(t, err)
		g, err := s.Generation(ctx)
		require.NoError(t, err)
		assert.Equal(t, last, g, "reads leave the generation alone")

		require.NoError(t, s.ReplaceAll(ctx, storage.Snapshot{}))
		advanced("replace all")
	})

	t.Run("concurrent writes to distinct ids", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.Upsert(ctx, storage.DailyEntries, rec(fmt.Sprintf("e%02d", i), `{}`)))
			}(i)
		}
		wg.Wait()

		all, err := s.GetAll(ctx, storage.DailyEntries)
		require.NoError(t, err)
		assert.Len(t, all, 20)
	})
}

func rec(id, data string) storage.Record {
	return storage.Record{ID: id, Data: json.RawMessage(data)}
}

func ids(recs []storage.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}
