package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	v, err := s.GetValue(ctx, "A32NX_MISSING")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, s.PutValue(ctx, "A32NX_CONFIG_SIMBRIDGE_PORT", []byte("8381")))
	require.NoError(t, s.PutValue(ctx, "A32NX_EFIS_L", []byte("ROSE")))
	require.NoError(t, s.PutValue(ctx, "OTHER_KEY", []byte("x")))

	v, err = s.GetValue(ctx, "A32NX_CONFIG_SIMBRIDGE_PORT")
	require.NoError(t, err)
	assert.Equal(t, "8381", string(v))

	keys, err := s.ListKeys(ctx, "A32NX_")
	require.NoError(t, err)
	assert.Equal(t, []string{"A32NX_CONFIG_SIMBRIDGE_PORT", "A32NX_EFIS_L"}, keys)

	require.NoError(t, s.PutValue(ctx, "A32NX_EFIS_L", []byte("ARC")))
	v, err = s.GetValue(ctx, "A32NX_EFIS_L")
	require.NoError(t, err)
	assert.Equal(t, "ARC", string(v), "last write wins")

	require.NoError(t, s.DeleteKey(ctx, "A32NX_EFIS_L"))
	v, err = s.GetValue(ctx, "A32NX_EFIS_L")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.NoError(t, s.DeleteKey(ctx, "A32NX_EFIS_L"), "deleting a missing key")
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	testStoreContract(t, s)
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	buf := []byte("abc")
	require.NoError(t, s.PutValue(ctx, "k", buf))
	buf[0] = 'z'

	v, err := s.GetValue(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(v))
}

func TestBitcaskStore(t *testing.T) {
	s, err := NewBitcaskStore(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer s.Close()
	testStoreContract(t, s)
}

func TestBitcaskStoreEmptyValue(t *testing.T) {
	s, err := NewBitcaskStore(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.PutValue(ctx, "A32NX_EMPTY", nil))
	v, err := s.GetValue(ctx, "A32NX_EMPTY")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestBitcaskStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	ctx := context.Background()

	s, err := NewBitcaskStore(path)
	require.NoError(t, err)
	require.NoError(t, s.PutValue(ctx, "A32NX_CONFIG_SIMBRIDGE_PORT", []byte("9000")))
	require.NoError(t, s.Close())

	s, err = NewBitcaskStore(path)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.GetValue(ctx, "A32NX_CONFIG_SIMBRIDGE_PORT")
	require.NoError(t, err)
	assert.Equal(t, "9000", string(v))
}

func redisAvailable(t *testing.T) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis is not available for testing:", err)
	}
}

func TestRedisStore(t *testing.T) {
	redisAvailable(t)

	s, err := NewRedisStore(context.Background(), RedisConfig{
		Addr:      "localhost:6379",
		DB:        15,
		KeyPrefix: fmt.Sprintf("test:simbridgefs:%d:", time.Now().UnixNano()),
	})
	require.NoError(t, err)
	defer s.Close()
	testStoreContract(t, s)
}

func TestNewRedisStoreRequiresAddr(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisConfig{})
	assert.Error(t, err)
}
