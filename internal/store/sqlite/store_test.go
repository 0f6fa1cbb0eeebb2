package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koltyakov/fbxos/internal/domain"
	"github.com/koltyakov/fbxos/internal/entity"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "mirror", "fbxos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustEntity(t *testing.T, kind *entity.Kind, fields entity.Fields) *entity.Entity {
	t.Helper()
	e, err := entity.New(kind, fields, "https://box.example:443", entity.FromDevice)
	require.NoError(t, err)
	return e
}

func TestRoundTripPreservesEveryField(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	cases := []*entity.Entity{
		mustEntity(t, entity.CallLog, entity.Fields{
			"id": 7, "status": "missed", "timestamp": 1700000000, "number": "0102030405",
			"name": "O'Brien \"Bob\"", "duration": 0, "new": true, "contact_id": 3,
		}),
		mustEntity(t, entity.StaticLease, entity.Fields{
			"id": "AA:BB:CC:DD:EE:FF", "mac": "AA:BB:CC:DD:EE:FF", "comment": "nas; DROP TABLE static_lease",
			"hostname": "nas", "ip": "192.168.1.10", "reachable": false, "last_activity": 1699999999,
		}),
		mustEntity(t, entity.FwRedir, entity.Fields{
			"id": 2, "src_ip": "0.0.0.0", "ip_proto": "tcp", "wan_port_start": 2222, "wan_port_end": 2222,
			"lan_port": 22, "lan_ip": "192.168.1.10", "enabled": true, "comment": "ssh",
		}),
		mustEntity(t, entity.ContactGroup, entity.Fields{"group_id": 4, "contact_id": 5, "id": 9}),
	}
	for _, e := range cases {
		require.NoError(t, store.Upsert(ctx, e))

		got, err := store.SelectAll(ctx, e.Kind())
		require.NoError(t, err)
		require.Len(t, got, 1, e.Kind().Name)
		assert.True(t, e.Equal(got[0]), "%s: want %v, got %v", e.Kind().Name, e.Fields(), got[0].Fields())
		assert.Equal(t, entity.FromMirror, got[0].Provenance)
		assert.Equal(t, e.Source, got[0].Source)
	}
}

func TestCreateSchemaIsIdempotent(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	require.NoError(t, store.CreateSchema(context.Background(), entity.Kinds()...))
	require.NoError(t, store.CreateSchema(context.Background(), entity.Kinds()...))
}

func TestUpsertReplacesRow(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	lease := mustEntity(t, entity.StaticLease, entity.Fields{"id": "AA", "mac": "AA", "comment": "old"})
	require.NoError(t, store.Upsert(ctx, lease))
	require.NoError(t, lease.Set("comment", "new"))
	require.NoError(t, store.Upsert(ctx, lease))

	n, err := store.Count(ctx, entity.StaticLease)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.SelectByID(ctx, entity.StaticLease, "AA")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Text("comment"))
}

func TestSelectByIDNotFound(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	_, err := store.SelectByID(context.Background(), entity.CallLog, "404")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = store.SelectByID(context.Background(), entity.CallLog, "abc")
	assert.Error(t, err)
}

func TestSaveAndLoadCollectionWithChildren(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	alice := mustEntity(t, entity.Contact, entity.Fields{"id": 5, "display_name": "Alice", "last_update": 1700000000})
	alice.AddChild(mustEntity(t, entity.ContactNumber, entity.Fields{"id": 51, "contact_id": 5, "number": "0102030405", "is_default": true}))
	alice.AddChild(mustEntity(t, entity.ContactEmail, entity.Fields{"id": 52, "contact_id": 5, "email": "alice@example.com"}))
	bob := mustEntity(t, entity.Contact, entity.Fields{"id": 6, "display_name": "Bob"})

	saved, err := store.SaveCollection(ctx, entity.NewCollection(entity.Contact, alice, bob))
	require.NoError(t, err)
	assert.Equal(t, 2, saved)

	col, err := store.LoadCollection(ctx, entity.Contact)
	require.NoError(t, err)
	require.Equal(t, 2, col.Len())
	loaded := col.ByID("5")
	require.NotNil(t, loaded)
	require.Len(t, loaded.Children(entity.ContactNumber), 1)
	assert.True(t, loaded.Children(entity.ContactNumber)[0].Bool("is_default"))
	assert.Len(t, loaded.Children(entity.ContactEmail), 1)
	assert.Empty(t, col.ByID("6").Children(entity.ContactNumber))
	assert.Nil(t, col.ByID("6").Get("last_update"))
}

func TestEmptyTable(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	col, err := store.LoadCollection(context.Background(), entity.DynamicLease)
	require.NoError(t, err)
	assert.Equal(t, 0, col.Len())
}

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	ddl := createTableSQL(entity.ContactGroup)
	assert.Contains(t, ddl, `CREATE TABLE IF NOT EXISTS "contact_group"`)
	assert.Contains(t, ddl, `PRIMARY KEY ("group_id", "contact_id")`)
	assert.Contains(t, ddl, `"UpdatedInDB" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP`)

	assert.Equal(t, `INSERT OR REPLACE INTO "group" ("id", "name", "nb_contact", "src") VALUES (?, ?, ?, ?)`, upsertSQL(entity.Group))
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
}
