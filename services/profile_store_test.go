package services

import (
	"context"
	"testing"

	"alertaraven/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestStore(t *testing.T) (*miniredis.Miniredis, *ProfileStore) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	kv := NewRedisKVStore(client, "test:")
	return mr, NewProfileStore(kv, zap.NewNop())
}

func TestProfileStore_Contacts_EmptyWhenMissing(t *testing.T) {
	_, store := setupTestStore(t)

	contacts, err := store.Contacts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestProfileStore_AddContact_PreservesOrder(t *testing.T) {
	mr, store := setupTestStore(t)
	ctx := context.Background()

	first, err := store.AddContact(ctx, "María García", "+521111")
	require.NoError(t, err)
	second, err := store.AddContact(ctx, " Juan ", " +522222 ")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "Juan", second.Name)
	assert.Equal(t, "+522222", second.Phone)

	contacts, err := store.Contacts(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, first.ID, contacts[0].ID)
	assert.Equal(t, second.ID, contacts[1].ID)

	raw, err := mr.Get("test:" + KeyEmergencyContacts)
	require.NoError(t, err)
	assert.Contains(t, raw, `"phone":"+521111"`)
}

func TestProfileStore_AddContact_RequiresFields(t *testing.T) {
	_, store := setupTestStore(t)

	_, err := store.AddContact(context.Background(), "Ana", "  ")
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestProfileStore_SaveContacts_RejectsDuplicateIDs(t *testing.T) {
	_, store := setupTestStore(t)

	err := store.SaveContacts(context.Background(), []models.EmergencyContact{
		{ID: "1", Name: "A", Phone: "1"},
		{ID: "1", Name: "B", Phone: "2"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")
}

func TestProfileStore_RemoveContact(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	a, err := store.AddContact(ctx, "A", "1")
	require.NoError(t, err)
	b, err := store.AddContact(ctx, "B", "2")
	require.NoError(t, err)

	require.NoError(t, store.RemoveContact(ctx, a.ID))
	require.NoError(t, store.RemoveContact(ctx, "missing"))

	contacts, err := store.Contacts(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, b.ID, contacts[0].ID)
}

func TestProfileStore_MedicalRecord_Overwrite(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMedicalRecord(ctx, models.MedicalRecord{BloodType: "O+", Allergies: "Penicilina"}))
	require.NoError(t, store.SaveMedicalRecord(ctx, models.MedicalRecord{BloodType: "A-"}))

	record, err := store.MedicalRecord(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A-", record.BloodType)
	assert.Empty(t, record.Allergies)
}

func TestProfileStore_Snapshot_IsIndependent(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.AddContact(ctx, "A", "1")
	require.NoError(t, err)
	require.NoError(t, store.SaveMedicalRecord(ctx, models.MedicalRecord{BloodType: "O+"}))

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)

	_, err = store.AddContact(ctx, "B", "2")
	require.NoError(t, err)
	require.NoError(t, store.SaveMedicalRecord(ctx, models.MedicalRecord{BloodType: "B+"}))

	assert.Len(t, snap.Contacts, 1)
	assert.Equal(t, "O+", snap.Medical.BloodType)
}

func TestProfileStore_Speed_RoundTripAndClear(t *testing.T) {
	mr, store := setupTestStore(t)
	ctx := context.Background()

	_, ok, err := store.PreviousSpeed(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveSpeed(ctx, models.SpeedSample{Speed: 12.5, TimestampMs: 1700000000000}))

	raw, err := mr.Get("test:" + KeyPreviousSpeed)
	require.NoError(t, err)
	assert.Equal(t, "12.5", raw)

	sample, ok, err := store.PreviousSpeed(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12.5, sample.Speed)
	assert.Equal(t, int64(1700000000000), sample.TimestampMs)

	require.NoError(t, store.ClearSpeed(ctx))
	_, ok, err = store.PreviousSpeed(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProfileStore_PreviousSpeed_Corrupt(t *testing.T) {
	mr, store := setupTestStore(t)

	require.NoError(t, mr.Set("test:"+KeyPreviousSpeed, "fast"))
	require.NoError(t, mr.Set("test:"+KeyPreviousTimestamp, "1"))

	_, _, err := store.PreviousSpeed(context.Background())
	require.Error(t, err)
}
