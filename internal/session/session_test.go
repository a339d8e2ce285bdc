package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRedisClient is a mock for the redis client slice the store uses
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	args := m.Called(ctx, key, values)
	cmd := redis.NewIntCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	}
	return cmd
}

func (m *MockRedisClient) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	args := m.Called(ctx, key)
	cmd := redis.NewMapStringStringCmd(ctx)
	if err := args.Error(1); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(args.Get(0).(map[string]string))
	}
	return cmd
}

func (m *MockRedisClient) HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd {
	args := m.Called(ctx, key, field, incr)
	cmd := redis.NewIntCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	}
	return cmd
}

func (m *MockRedisClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	args := m.Called(ctx, keys)
	cmd := redis.NewIntCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	}
	return cmd
}

func TestCreateGeneratesID(t *testing.T) {
	client := new(MockRedisClient)
	client.On("HSet", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	store := NewStore(client, nil)
	id, err := store.Create(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	client.AssertExpectations(t)
}

func TestCreateKeepsGivenID(t *testing.T) {
	client := new(MockRedisClient)
	client.On("HSet", mock.Anything, "session:my-session", mock.Anything).Return(nil)

	store := NewStore(client, nil)
	id, err := store.Create(context.Background(), "my-session")
	require.NoError(t, err)
	assert.Equal(t, "my-session", id)
}

func TestGet(t *testing.T) {
	created := time.Now().UTC().Truncate(time.Second)
	client := new(MockRedisClient)
	client.On("HGetAll", mock.Anything, "session:abc").Return(map[string]string{
		"created_at":     created.Format(time.RFC3339),
		"last_accessed":  created.Format(time.RFC3339),
		"search_count":   "3",
		"last_search_id": "search-1",
	}, nil)
	client.On("HSet", mock.Anything, "session:abc", mock.Anything).Return(nil)

	store := NewStore(client, nil)
	session, err := store.Get(context.Background(), "abc")
	require.NoError(t, err)

	assert.Equal(t, "abc", session.ID)
	assert.Equal(t, 3, session.SearchCount)
	assert.Equal(t, "search-1", session.LastSearchID)
	assert.True(t, session.CreatedAt.Equal(created))
}

func TestGetNotFound(t *testing.T) {
	client := new(MockRedisClient)
	client.On("HGetAll", mock.Anything, "session:missing").Return(map[string]string{}, nil)

	store := NewStore(client, nil)
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetRedisError(t *testing.T) {
	client := new(MockRedisClient)
	client.On("HGetAll", mock.Anything, mock.Anything).Return(map[string]string(nil), errors.New("connection refused"))

	store := NewStore(client, nil)
	_, err := store.Get(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRecordSearch(t *testing.T) {
	client := new(MockRedisClient)
	client.On("HIncrBy", mock.Anything, "session:abc", "search_count", int64(1)).Return(nil)
	client.On("HSet", mock.Anything, "session:abc", mock.Anything).Return(nil)

	store := NewStore(client, nil)
	err := store.RecordSearch(context.Background(), "abc", "search-42")
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestRecordSearchIncrementFailure(t *testing.T) {
	client := new(MockRedisClient)
	client.On("HIncrBy", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("down"))

	store := NewStore(client, nil)
	err := store.RecordSearch(context.Background(), "abc", "search-42")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	client := new(MockRedisClient)
	client.On("Del", mock.Anything, []string{"session:abc"}).Return(nil)

	store := NewStore(client, nil)
	require.NoError(t, store.Delete(context.Background(), "abc"))
	client.AssertExpectations(t)
}
