package store_test

import (
	"context"
	"math/rand/v2"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/setanarut/wavemark"
	"github.com/setanarut/wavemark/config"
	"github.com/setanarut/wavemark/store"
)

func tinyModel(t *testing.T, seed uint64) *wavemark.Model {
	t.Helper()
	opt := wavemark.DefaultOptions()
	opt.Height, opt.Width = 16, 16
	opt.WatermarkBits = 4
	opt.GridSize = 2
	opt.HiddenUnits = 3
	m, err := wavemark.NewModel(opt, rand.New(rand.NewPCG(seed, seed)))
	require.NoError(t, err)
	return m
}

func TestKey(t *testing.T) {
	arch := wavemark.DefaultOptions().Architecture()
	key := store.Key(arch)
	require.True(t, strings.HasPrefix(key, "wavemark:params:"))
	require.True(t, strings.HasSuffix(key, arch.Fingerprint()))
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := store.NewFileStore(dir)
	require.NoError(t, err)

	_, err = s.Load(ctx, "wavemark:params:none")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Save(ctx, "wavemark:params:abc", []byte("first")))
	require.NoError(t, s.Save(ctx, "wavemark:params:abc", []byte("second")))
	got, err := s.Load(ctx, "wavemark:params:abc")
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "wavemark_params_abc.json", entries[0].Name())
}

func TestSaveLoadModel(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	src := tinyModel(t, 1)
	dst := tinyModel(t, 2)
	require.ErrorIs(t, store.LoadModel(ctx, s, dst), store.ErrNotFound)

	require.NoError(t, store.SaveModel(ctx, s, src))
	require.NoError(t, store.LoadModel(ctx, s, dst))

	want, err := src.MarshalBinary()
	require.NoError(t, err)
	got, err := dst.MarshalBinary()
	require.NoError(t, err)
	require.JSONEq(t, string(want), string(got))
}

func TestRedisStore(t *testing.T) {
	cfg := config.Default().Redis
	cfg.TTL = time.Minute
	s := store.NewRedisStore(&cfg)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		t.Skipf("redis not available at %s: %v", cfg.Addr, err)
	}

	ctx = context.Background()
	_, err := s.Load(ctx, "wavemark:params:test-missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	src := tinyModel(t, 3)
	dst := tinyModel(t, 4)
	require.NoError(t, store.SaveModel(ctx, s, src))
	require.NoError(t, store.LoadModel(ctx, s, dst))
	want, _ := src.MarshalBinary()
	got, _ := dst.MarshalBinary()
	require.JSONEq(t, string(want), string(got))
}
