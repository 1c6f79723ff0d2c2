package alvlbot

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecordStore(t testing.TB) *RecordStore {
	t.Helper()
	store, err := NewRecordStore(t.TempDir(), slog.Default())
	require.NoError(t, err)
	return store
}

func TestRecordStoreCreatesTableFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	_, err := NewRecordStore(dir, slog.Default())
	require.NoError(t, err)

	for _, name := range []string{
		"unregistered.json",
		"registered.json",
		"clients.json",
	} {
		data, readErr := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, readErr)
		assert.Equal(t, "{}", string(data))
	}
}

func TestRecordStoreRoundTrip(t *testing.T) {
	store := newTestRecordStore(t)

	joined := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	require.NoError(
		t,
		store.AddUnregistered(
			"1186410533335863403",
			UnregisteredRecord{Username: "joão#0", JoinedAt: joined},
		),
	)

	records := store.Unregistered()
	require.Len(t, records, 1)
	assert.Equal(t, "joão#0", records["1186410533335863403"].Username)
	assert.True(t, joined.Equal(records["1186410533335863403"].JoinedAt))
}

func TestRecordStoreWriteFormat(t *testing.T) {
	dir := t.TempDir()
	store, err := NewRecordStore(dir, slog.Default())
	require.NoError(t, err)

	require.NoError(
		t,
		store.AddUnregistered(
			"123",
			UnregisteredRecord{Username: "avaliação & vouches"},
		),
	)

	data, err := os.ReadFile(filepath.Join(dir, "unregistered.json"))
	require.NoError(t, err)
	content := string(data)

	// 4-space indentation, non-ASCII and HTML characters left as-is
	assert.Contains(t, content, "    \"123\"")
	assert.Contains(t, content, "avaliação & vouches")
	assert.NotContains(t, content, `\u`)
}

func TestRecordStoreCorruptTable(t *testing.T) {
	dir := t.TempDir()
	store, err := NewRecordStore(dir, slog.Default())
	require.NoError(t, err)

	require.NoError(
		t,
		os.WriteFile(
			filepath.Join(dir, "registered.json"),
			[]byte("{not json"),
			0o644,
		),
	)

	assert.Empty(t, store.Registered())
	assert.False(t, store.HasRegistered("123"))

	// a write through the store repairs the table
	require.NoError(
		t,
		store.Register("123", RegisteredRecord{Username: "foo"}),
	)
	assert.True(t, store.HasRegistered("123"))
}

func TestRecordStoreRegister(t *testing.T) {
	store := newTestRecordStore(t)

	require.NoError(
		t,
		store.AddUnregistered("123", UnregisteredRecord{Username: "foo"}),
	)
	require.NoError(
		t,
		store.Register(
			"123",
			RegisteredRecord{Username: "foo", Source: "indicação"},
		),
	)

	assert.True(t, store.HasRegistered("123"))
	assert.False(t, store.HasClient("123"))
	assert.Empty(t, store.Unregistered())

	registered := store.Registered()
	require.Len(t, registered, 1)
	assert.Equal(t, "indicação", registered["123"].Source)
}

func TestRecordStorePromoteClient(t *testing.T) {
	store := newTestRecordStore(t)

	require.NoError(
		t,
		store.AddUnregistered("123", UnregisteredRecord{Username: "foo"}),
	)
	require.NoError(
		t,
		store.Register("123", RegisteredRecord{Username: "foo"}),
	)
	require.NoError(
		t,
		store.PromoteClient(
			"123",
			ClientRecord{Username: "foo", ProjectInfo: "bot de orçamentos"},
		),
	)

	// at most one table holds the ID
	assert.Empty(t, store.Unregistered())
	assert.Empty(t, store.Registered())
	require.Len(t, store.Clients(), 1)

	assert.True(t, store.HasClient("123"))
	assert.True(t, store.HasRegistered("123"))
}

func TestRecordStorePromoteClientSkipsRegistration(t *testing.T) {
	store := newTestRecordStore(t)

	require.NoError(
		t,
		store.AddUnregistered("456", UnregisteredRecord{Username: "bar"}),
	)
	require.NoError(
		t,
		store.PromoteClient("456", ClientRecord{Username: "bar"}),
	)

	assert.Empty(t, store.Unregistered())
	assert.Empty(t, store.Registered())
	assert.True(t, store.HasClient("456"))
}

func TestRecordStoreTableSizes(t *testing.T) {
	store := newTestRecordStore(t)

	require.NoError(
		t,
		store.AddUnregistered("1", UnregisteredRecord{Username: "a"}),
	)
	require.NoError(
		t,
		store.AddUnregistered("2", UnregisteredRecord{Username: "b"}),
	)
	require.NoError(t, store.Register("2", RegisteredRecord{Username: "b"}))
	require.NoError(t, store.PromoteClient("3", ClientRecord{Username: "c"}))

	sizes := store.TableSizes()
	assert.Equal(t, 1, sizes["unregistered"])
	assert.Equal(t, 1, sizes["registered"])
	assert.Equal(t, 1, sizes["clients"])
}

func TestRecordStoreMissingDirRecreated(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	_, err := NewRecordStore(dir, slog.Default())
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
