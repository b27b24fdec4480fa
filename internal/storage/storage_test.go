package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/eugenenazirov/stock-packs/internal/inventory"
)

func sample(size, color, category string, qty int) inventory.Record {
	return inventory.Record{Size: size, Color: color, Quantity: qty, Category: category, CollarStyle: "Redondo"}
}

// runStorageSuite exercises the Storage contract against one backend.
func runStorageSuite(t *testing.T, open func(t *testing.T) Storage) {
	t.Run("CreateAssignsIDAndGetReturnsIt", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		created, err := store.Create(ctx, sample("6", "rosado", "Niña", 4))
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)

		got, err := store.Get(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, created, got)
	})

	t.Run("CreateRejectsInvalidRecord", func(t *testing.T) {
		store := open(t)
		_, err := store.Create(context.Background(), sample("7", "rosado", "Niña", 4))
		require.ErrorIs(t, err, inventory.ErrInvalidRecord)
	})

	t.Run("ListIsSorted", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		for _, rec := range []inventory.Record{
			sample("10", "negro", "Niño", 1),
			sample("6", "negro", "Niño", 1),
			sample("S", "negro", "Mujer", 1),
		} {
			_, err := store.Create(ctx, rec)
			require.NoError(t, err)
		}

		records, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, records, 3)
		require.Equal(t, "S", records[0].Size)
		require.Equal(t, "6", records[1].Size)
		require.Equal(t, "10", records[2].Size)
	})

	t.Run("UpdateAndDelete", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		created, err := store.Create(ctx, sample("8", "violeta", "Niña", 2))
		require.NoError(t, err)

		created.Quantity = 11
		created.CollarStyle = "V"
		_, err = store.Update(ctx, created)
		require.NoError(t, err)

		got, err := store.Get(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, 11, got.Quantity)
		require.Equal(t, "V", got.CollarStyle)

		require.NoError(t, store.Delete(ctx, created.ID))
		_, err = store.Get(ctx, created.ID)
		require.ErrorIs(t, err, ErrNotFound)
		require.ErrorIs(t, store.Delete(ctx, created.ID), ErrNotFound)
	})

	t.Run("UpdateMissingRecord", func(t *testing.T) {
		store := open(t)
		rec := sample("8", "violeta", "Niña", 2)
		rec.ID = "missing"
		_, err := store.Update(context.Background(), rec)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("SetQuantity", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		created, err := store.Create(ctx, sample("12", "negro", "Niño", 2))
		require.NoError(t, err)

		require.NoError(t, store.SetQuantity(ctx, created.ID, 9))
		got, err := store.Get(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, 9, got.Quantity)

		require.ErrorIs(t, store.SetQuantity(ctx, created.ID, -1), ErrNegativeQuantity)
		require.ErrorIs(t, store.SetQuantity(ctx, "missing", 1), ErrNotFound)
	})

	t.Run("SetQuantitiesIsAllOrNothing", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		a, err := store.Create(ctx, sample("14", "rosado", "Niña", 5))
		require.NoError(t, err)
		b, err := store.Create(ctx, sample("14", "blanco", "Kids", 5))
		require.NoError(t, err)

		err = store.SetQuantities(ctx, []inventory.QuantityUpdate{{ID: a.ID, Quantity: 1}, {ID: "missing", Quantity: 1}})
		require.ErrorIs(t, err, ErrNotFound)

		got, err := store.Get(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, 5, got.Quantity, "partial batch must not be applied")

		require.NoError(t, store.SetQuantities(ctx, []inventory.QuantityUpdate{{ID: a.ID, Quantity: 3}, {ID: b.ID, Quantity: 1}}))
		got, err = store.Get(ctx, b.ID)
		require.NoError(t, err)
		require.Equal(t, 1, got.Quantity)
	})

	t.Run("AdjustQuantityClampsAtZero", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		created, err := store.Create(ctx, sample("16", "negro", "Niño", 1))
		require.NoError(t, err)

		got, err := store.AdjustQuantity(ctx, created.ID, 2)
		require.NoError(t, err)
		require.Equal(t, 3, got.Quantity)

		got, err = store.AdjustQuantity(ctx, created.ID, -10)
		require.NoError(t, err)
		require.Equal(t, 0, got.Quantity)

		_, err = store.AdjustQuantity(ctx, "missing", 1)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStorage(t *testing.T) {
	runStorageSuite(t, func(t *testing.T) Storage {
		return NewMemoryStorage()
	})
}

func TestFileStorage(t *testing.T) {
	runStorageSuite(t, func(t *testing.T) Storage {
		store, err := OpenFile(filepath.Join(t.TempDir(), "inventory.yaml"))
		require.NoError(t, err)
		return store
	})
}

func TestSQLiteStorage(t *testing.T) {
	runStorageSuite(t, func(t *testing.T) Storage {
		store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "inventory.db"), time.Second)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestPostgresStorage(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	runStorageSuite(t, func(t *testing.T) Storage {
		store, err := OpenPostgres(context.Background(), dsn, time.Second)
		require.NoError(t, err)
		_, err = store.db.Exec(`DELETE FROM inventory_records`)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestMemoryStorageGetReturnsCopy(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage(sample("6", "rosado", "Niña", 4))
	records, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	records[0].Quantity = 999
	again, err := store.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, again[0].Quantity)
}

func TestMemoryStorageConcurrentAdjust(t *testing.T) {
	store := NewMemoryStorage()
	rec, err := store.Create(context.Background(), sample("6", "rosado", "Niña", 0))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := store.AdjustQuantity(context.Background(), rec.ID, 1); err != nil {
				t.Errorf("AdjustQuantity failed: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := store.List(context.Background()); err != nil {
				t.Errorf("List failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, 32, got.Quantity)
}

func TestMemoryStorageWatchPublishesChanges(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := NewMemoryStorage()
	ctx, cancel := context.WithCancel(context.Background())

	snapshots := make(chan []inventory.Record, 8)
	done := make(chan error, 1)
	go func() {
		done <- store.Watch(ctx, func(records []inventory.Record) { snapshots <- records })
	}()

	require.Empty(t, <-snapshots)

	_, err := store.Create(context.Background(), sample("6", "rosado", "Niña", 4))
	require.NoError(t, err)

	select {
	case records := <-snapshots:
		require.Len(t, records, 1)
	case <-time.After(time.Second):
		t.Fatal("expected a snapshot after create")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestFileStoragePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "inventory.yaml")
	store, err := OpenFile(path)
	require.NoError(t, err)

	created, err := store.Create(context.Background(), sample("XL", "negro", "Mujer", 7))
	require.NoError(t, err)

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	got, err := reopened.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, created, got)
}

func TestFileStorageAssignsMissingIDs(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "inventory.yaml")
	seed := "records:\n  - size: \"6\"\n    color: blanco\n    quantity: 3\n    category: Kids\n"
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	store, err := OpenFile(path)
	require.NoError(t, err)

	records, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotEmpty(t, records[0].ID)
	require.Equal(t, inventory.DefaultCollarStyle, records[0].CollarStyle)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), records[0].ID)
}

func TestFileStorageReloadDoesNotDropConcurrentWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := OpenFile(filepath.Join(t.TempDir(), "inventory.yaml"))
	require.NoError(t, err)
	created, err := store.Create(ctx, sample("8", "blanco", "Kids", 5))
	require.NoError(t, err)

	written := make(chan error, 1)
	store.readFile = func(path string) ([]byte, error) {
		data, err := os.ReadFile(path)
		go func() {
			written <- store.SetQuantity(ctx, created.ID, 1)
		}()
		// Give the write a chance to run before the stale bytes are returned.
		select {
		case err := <-written:
			written <- err
		case <-time.After(100 * time.Millisecond):
		}
		return data, err
	}

	require.NoError(t, store.reload())
	require.NoError(t, <-written)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Quantity)

	reopened, err := OpenFile(store.Path())
	require.NoError(t, err)
	got, err = reopened.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Quantity)
}

func TestFileStorageRejectsDuplicateIDs(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "inventory.yaml")
	seed := "records:\n  - id: a\n    size: \"6\"\n  - id: a\n    size: \"8\"\n"
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	_, err := OpenFile(path)
	require.ErrorIs(t, err, inventory.ErrInvalidRecord)
}

func TestFileStorageWatchReloadsExternalEdits(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "inventory.yaml")
	store, err := OpenFile(path, WithFileDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	snapshots := make(chan []inventory.Record, 16)
	done := make(chan error, 1)
	go func() {
		done <- store.Watch(ctx, func(records []inventory.Record) { snapshots <- records })
	}()

	require.Empty(t, <-snapshots)

	edit := "records:\n  - id: ext-1\n    size: \"8\"\n    color: negro\n    quantity: 5\n    category: Niño\n    collar_style: Redondo\n"
	require.NoError(t, os.WriteFile(path, []byte(edit), 0o644))

	deadline := time.After(3 * time.Second)
	for found := false; !found; {
		select {
		case records := <-snapshots:
			found = len(records) == 1 && records[0].ID == "ext-1"
		case <-deadline:
			t.Fatal("expected external edit to be published")
		}
	}

	cancel()
	require.NoError(t, <-done)
}

func TestSQLiteWatchPollsTable(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "inventory.db"), 10*time.Millisecond)
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	snapshots := make(chan []inventory.Record, 64)
	done := make(chan error, 1)
	go func() {
		done <- store.Watch(ctx, func(records []inventory.Record) {
			select {
			case snapshots <- records:
			default:
			}
		})
	}()

	_, err = store.Create(context.Background(), sample("6", "rosado", "Niña", 4))
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for found := false; !found; {
		select {
		case records := <-snapshots:
			found = len(records) == 1
		case <-deadline:
			t.Fatal("expected polled snapshot with the new record")
		}
	}

	cancel()
	require.NoError(t, <-done)
}

func TestSQLRebind(t *testing.T) {
	t.Parallel()

	pg := &SQLStorage{dialect: DialectPostgres}
	require.Equal(t, "UPDATE t SET a = $1 WHERE id = $2", pg.rebind("UPDATE t SET a = ? WHERE id = ?"))

	lite := &SQLStorage{dialect: DialectSQLite}
	require.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}

func TestRecordFromData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data map[string]any
		want inventory.Record
	}{
		{
			name: "IntegerQuantity",
			data: map[string]any{"talle": "6", "color": "rosado", "cantidad": int64(4), "tipo": "Niña", "cuello": "V"},
			want: inventory.Record{ID: "doc", Size: "6", Color: "rosado", Quantity: 4, Category: "Niña", CollarStyle: "V"},
		},
		{
			name: "StringQuantityAndDefaults",
			data: map[string]any{"talle": "8", "color": "negro", "cantidad": " 7 "},
			want: inventory.Record{ID: "doc", Size: "8", Color: "negro", Quantity: 7, Category: "Niño", CollarStyle: "Redondo"},
		},
		{
			name: "NegativeAndFloatQuantity",
			data: map[string]any{"talle": "10", "color": "blanco", "cantidad": -3.0, "tipo": "Kids"},
			want: inventory.Record{ID: "doc", Size: "10", Color: "blanco", Quantity: 0, Category: "Kids", CollarStyle: "Redondo"},
		},
		{
			name: "LowercaseCategoryAndCollar",
			data: map[string]any{"talle": "14", "color": "blanco", "cantidad": int64(2), "tipo": "kids", "cuello": "redondo"},
			want: inventory.Record{ID: "doc", Size: "14", Color: "blanco", Quantity: 2, Category: "Kids", CollarStyle: "Redondo"},
		},
		{
			name: "GarbageQuantity",
			data: map[string]any{"talle": "12", "color": "gris", "cantidad": "muchas", "tipo": "Mujer"},
			want: inventory.Record{ID: "doc", Size: "12", Color: "gris", Quantity: 0, Category: "Mujer", CollarStyle: "Redondo"},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, recordFromData("doc", tc.data))
		})
	}
}

func TestDataFromRecordRoundTrip(t *testing.T) {
	t.Parallel()

	rec := inventory.Record{ID: "doc", Size: "S", Color: "rayado", Quantity: 2, Category: "Mujer", CollarStyle: "V"}
	data := dataFromRecord(rec)
	data["cantidad"] = int64(2)
	require.Equal(t, rec, recordFromData("doc", data))
}

func TestFirestoreStorage(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	runStorageSuite(t, func(t *testing.T) Storage {
		ctx := context.Background()
		store, err := OpenFirestore(ctx, FirestoreConfig{ProjectID: "stock-packs-test", Collection: "inventory-" + newID()})
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestIsFirestoreNotFound(t *testing.T) {
	t.Parallel()

	require.False(t, isFirestoreNotFound(nil))
	require.False(t, isFirestoreNotFound(errors.New("boom")))
}
