package channelstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoprnet/hopr-corego/channelstore"
	"github.com/hoprnet/hopr-corego/domain"
	"github.com/hoprnet/hopr-corego/storage"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInsertAndGet(t *testing.T) {
	db := openTestDB(t)
	store := channelstore.New()
	var src, dst domain.Address
	src[0] = 1
	dst[0] = 2
	id := domain.NewChannelID(src, dst)

	err := db.Perform(context.Background(), func(_ context.Context, tx *storage.Tx) error {
		return store.Insert(tx, domain.Channel{
			ID: id, Source: src, Destination: dst,
			Balance: 100, Status: domain.StatusOpen, Epoch: 1,
		})
	})
	require.NoError(t, err)

	err = db.Perform(context.Background(), func(_ context.Context, tx *storage.Tx) error {
		ch, gerr := store.Get(tx, id)
		require.NoError(t, gerr)
		require.Equal(t, uint64(100), ch.Balance)
		require.Equal(t, domain.StatusOpen, ch.Status)
		return nil
	})
	require.NoError(t, err)
}

func TestBeginUpdateMissingReturnsNil(t *testing.T) {
	db := openTestDB(t)
	store := channelstore.New()
	var id domain.ChannelID
	id[0] = 9

	err := db.Perform(context.Background(), func(_ context.Context, tx *storage.Tx) error {
		edits, berr := store.BeginUpdate(tx, id)
		require.NoError(t, berr)
		require.Nil(t, edits)
		return nil
	})
	require.NoError(t, err)
}

func TestCloseZeroesBalanceAndIndex(t *testing.T) {
	db := openTestDB(t)
	store := channelstore.New()
	var src, dst domain.Address
	src[0], dst[0] = 1, 2
	id := domain.NewChannelID(src, dst)

	require.NoError(t, db.Perform(context.Background(), func(_ context.Context, tx *storage.Tx) error {
		return store.Insert(tx, domain.Channel{ID: id, Source: src, Destination: dst, Balance: 50, TicketIndex: 3, Status: domain.StatusOpen, Epoch: 1})
	}))

	require.NoError(t, db.Perform(context.Background(), func(_ context.Context, tx *storage.Tx) error {
		edits, err := store.BeginUpdate(tx, id)
		require.NoError(t, err)
		require.NotNil(t, edits)
		edits.SetStatus(domain.StatusClosed)
		updated, ok, err := store.Finish(tx, edits)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, uint64(0), updated.Balance)
		require.Equal(t, uint64(0), updated.TicketIndex)
		return nil
	}))
}

func TestCorruptedInvisibleToGet(t *testing.T) {
	db := openTestDB(t)
	store := channelstore.New()
	var id domain.ChannelID
	id[0] = 7

	require.NoError(t, db.Perform(context.Background(), func(_ context.Context, tx *storage.Tx) error {
		return store.InsertCorrupted(tx, id)
	}))

	require.NoError(t, db.Perform(context.Background(), func(_ context.Context, tx *storage.Tx) error {
		_, err := store.Get(tx, id)
		require.ErrorIs(t, err, channelstore.ErrCorrupted)
		corrupted, cerr := store.GetCorrupted(tx, id)
		require.NoError(t, cerr)
		require.True(t, corrupted)
		return nil
	}))
}
