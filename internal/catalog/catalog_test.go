package catalog

import (
	"context"
	"os"
	"testing"

	"github.com/tabletpruner/partitionpruner/internal/partitionschema"
	"github.com/tabletpruner/partitionpruner/internal/storage"
	"github.com/tabletpruner/partitionpruner/pkg/types"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "catalog_test_*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	store, err := Open(tmpFile.Name())
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleSchema() types.Schema {
	return types.Schema{
		Columns: []types.ColumnSchema{
			{ID: 1, Name: "a", Type: types.Int32, Position: 0},
			{ID: 2, Name: "b", Type: types.Int32, Position: 1},
			{ID: 3, Name: "c", Type: types.Int32, Position: 2},
		},
		NumKeyColumns: 3,
	}
}

func samplePartitionSchema() partitionschema.PartitionSchema {
	return partitionschema.PartitionSchema{
		RangeColumnIDs: []int32{3},
		HashSchema: partitionschema.HashSchema{
			{ColumnIDs: []int32{1}, NumBuckets: 2, Seed: 0},
			{ColumnIDs: []int32{2}, NumBuckets: 3, Seed: 42},
		},
	}
}

func TestStore_PutAndGetTable(t *testing.T) {
	store := tempStore(t)
	ctx := context.Background()

	def, err := store.PutTable(ctx, "t", sampleSchema(), samplePartitionSchema())
	if err != nil {
		t.Fatalf("PutTable failed: %v", err)
	}
	if def.Version != 1 {
		t.Errorf("initial version = %d, want 1", def.Version)
	}

	got, err := store.GetTable(ctx, "t")
	if err != nil {
		t.Fatalf("GetTable failed: %v", err)
	}
	if len(got.Schema.Columns) != 3 {
		t.Errorf("got %d columns, want 3", len(got.Schema.Columns))
	}
	if len(got.PartitionSchema.HashSchema) != 2 {
		t.Errorf("got %d hash dimensions, want 2", len(got.PartitionSchema.HashSchema))
	}
	if got.PartitionSchema.HashSchema[1].NumBuckets != 3 {
		t.Errorf("second dimension NumBuckets = %d, want 3", got.PartitionSchema.HashSchema[1].NumBuckets)
	}
}

func TestStore_PutTable_BumpsVersionOnUpdate(t *testing.T) {
	store := tempStore(t)
	ctx := context.Background()

	if _, err := store.PutTable(ctx, "t", sampleSchema(), samplePartitionSchema()); err != nil {
		t.Fatalf("first PutTable failed: %v", err)
	}
	second, err := store.PutTable(ctx, "t", sampleSchema(), samplePartitionSchema())
	if err != nil {
		t.Fatalf("second PutTable failed: %v", err)
	}
	if second.Version != 2 {
		t.Errorf("version after update = %d, want 2", second.Version)
	}
}

func TestStore_GetTable_UnknownNameFails(t *testing.T) {
	store := tempStore(t)
	if _, err := store.GetTable(context.Background(), "missing"); err == nil {
		t.Error("expected GetTable of an unregistered table to fail")
	}
}

func TestStore_ListTables_SortedByName(t *testing.T) {
	store := tempStore(t)
	ctx := context.Background()

	for _, name := range []string{"zebra", "apple", "mango"} {
		if _, err := store.PutTable(ctx, name, sampleSchema(), samplePartitionSchema()); err != nil {
			t.Fatalf("PutTable(%s) failed: %v", name, err)
		}
	}

	names, err := store.ListTables(ctx)
	if err != nil {
		t.Fatalf("ListTables failed: %v", err)
	}
	want := []string{"apple", "mango", "zebra"}
	if len(names) != len(want) {
		t.Fatalf("got %d names, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestStore_DeleteTable(t *testing.T) {
	store := tempStore(t)
	ctx := context.Background()

	if _, err := store.PutTable(ctx, "t", sampleSchema(), samplePartitionSchema()); err != nil {
		t.Fatalf("PutTable failed: %v", err)
	}
	if err := store.DeleteTable(ctx, "t"); err != nil {
		t.Fatalf("DeleteTable failed: %v", err)
	}
	if _, err := store.GetTable(ctx, "t"); err == nil {
		t.Error("expected GetTable to fail after DeleteTable")
	}
}

func TestStore_DeleteTable_UnknownNameFails(t *testing.T) {
	store := tempStore(t)
	if err := store.DeleteTable(context.Background(), "missing"); err == nil {
		t.Error("expected DeleteTable of an unregistered table to fail")
	}
}

func TestStore_SnapshotRoundTrip(t *testing.T) {
	source := tempStore(t)
	ctx := context.Background()

	if _, err := source.PutTable(ctx, "orders", sampleSchema(), samplePartitionSchema()); err != nil {
		t.Fatalf("PutTable failed: %v", err)
	}
	if _, err := source.PutTable(ctx, "customers", sampleSchema(), partitionschema.PartitionSchema{}); err != nil {
		t.Fatalf("PutTable failed: %v", err)
	}

	objDir, err := os.MkdirTemp("", "catalog_snapshot_objstore_*")
	if err != nil {
		t.Fatalf("failed to create object storage dir: %v", err)
	}
	defer os.RemoveAll(objDir)
	objStore, err := storage.NewLocalStorage(objDir)
	if err != nil {
		t.Fatalf("failed to create local object storage: %v", err)
	}

	id, err := source.PushSnapshot(ctx, objStore, "snapshots/prod")
	if err != nil {
		t.Fatalf("PushSnapshot failed: %v", err)
	}

	dest := tempStore(t)
	if err := dest.PullSnapshot(ctx, objStore, "snapshots/prod", id); err != nil {
		t.Fatalf("PullSnapshot failed: %v", err)
	}

	names, err := dest.ListTables(ctx)
	if err != nil {
		t.Fatalf("ListTables on destination failed: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("destination has %d tables, want 2", len(names))
	}

	got, err := dest.GetTable(ctx, "orders")
	if err != nil {
		t.Fatalf("GetTable(orders) on destination failed: %v", err)
	}
	if len(got.PartitionSchema.HashSchema) != 2 {
		t.Errorf("restored orders table has %d hash dimensions, want 2", len(got.PartitionSchema.HashSchema))
	}

	latest, ok, err := LatestSnapshotID(ctx, objStore, "snapshots/prod")
	if err != nil {
		t.Fatalf("LatestSnapshotID failed: %v", err)
	}
	if !ok {
		t.Fatal("expected LatestSnapshotID to find the pushed snapshot")
	}
	if latest.String() != id.String() {
		t.Errorf("LatestSnapshotID = %s, want %s", latest.String(), id.String())
	}
}

func TestStore_PullSnapshot_UnknownIDFails(t *testing.T) {
	source := tempStore(t)
	dest := tempStore(t)
	ctx := context.Background()

	objDir, err := os.MkdirTemp("", "catalog_snapshot_objstore_*")
	if err != nil {
		t.Fatalf("failed to create object storage dir: %v", err)
	}
	defer os.RemoveAll(objDir)
	objStore, err := storage.NewLocalStorage(objDir)
	if err != nil {
		t.Fatalf("failed to create local object storage: %v", err)
	}

	unknown, err := types.NewULIDGenerator().Generate()
	if err != nil {
		t.Fatalf("failed to generate ulid: %v", err)
	}

	if err := dest.PullSnapshot(ctx, objStore, "snapshots/prod", unknown); err == nil {
		t.Error("expected PullSnapshot of a missing snapshot id to fail")
	}
	_ = source
}

func TestPruneSnapshots_KeepsOnlyMostRecent(t *testing.T) {
	store := tempStore(t)
	ctx := context.Background()

	if _, err := store.PutTable(ctx, "t", sampleSchema(), samplePartitionSchema()); err != nil {
		t.Fatalf("PutTable failed: %v", err)
	}

	objDir, err := os.MkdirTemp("", "catalog_snapshot_objstore_*")
	if err != nil {
		t.Fatalf("failed to create object storage dir: %v", err)
	}
	defer os.RemoveAll(objDir)
	objStore, err := storage.NewLocalStorage(objDir)
	if err != nil {
		t.Fatalf("failed to create local object storage: %v", err)
	}

	var last types.ULID
	for i := 0; i < 4; i++ {
		id, err := store.PushSnapshot(ctx, objStore, "snapshots/prod")
		if err != nil {
			t.Fatalf("PushSnapshot #%d failed: %v", i, err)
		}
		last = id
	}

	deleted, err := PruneSnapshots(ctx, objStore, "snapshots/prod", 2)
	if err != nil {
		t.Fatalf("PruneSnapshots failed: %v", err)
	}
	if len(deleted) != 2 {
		t.Fatalf("PruneSnapshots deleted %d snapshots, want 2", len(deleted))
	}

	remaining, err := objStore.ListObjects(ctx, "snapshots/prod")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 snapshots remaining, got %d", len(remaining))
	}

	latest, ok, err := LatestSnapshotID(ctx, objStore, "snapshots/prod")
	if err != nil {
		t.Fatalf("LatestSnapshotID failed: %v", err)
	}
	if !ok || latest.String() != last.String() {
		t.Errorf("LatestSnapshotID = %v (ok=%v), want %s", latest, ok, last.String())
	}
}

func TestPruneSnapshots_FewerThanKeepDeletesNothing(t *testing.T) {
	store := tempStore(t)
	ctx := context.Background()

	if _, err := store.PutTable(ctx, "t", sampleSchema(), samplePartitionSchema()); err != nil {
		t.Fatalf("PutTable failed: %v", err)
	}

	objDir, err := os.MkdirTemp("", "catalog_snapshot_objstore_*")
	if err != nil {
		t.Fatalf("failed to create object storage dir: %v", err)
	}
	defer os.RemoveAll(objDir)
	objStore, err := storage.NewLocalStorage(objDir)
	if err != nil {
		t.Fatalf("failed to create local object storage: %v", err)
	}

	if _, err := store.PushSnapshot(ctx, objStore, "snapshots/prod"); err != nil {
		t.Fatalf("PushSnapshot failed: %v", err)
	}

	deleted, err := PruneSnapshots(ctx, objStore, "snapshots/prod", 5)
	if err != nil {
		t.Fatalf("PruneSnapshots failed: %v", err)
	}
	if len(deleted) != 0 {
		t.Errorf("expected no deletions, got %d", len(deleted))
	}
}
