package main

import (
	"context"
	"encoding/binary"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper function to encode a weight shard with zero weights and
// given bias values
func shardBytes(in int, bias []float64) []byte {
	units := len(bias)
	data := make([]byte, (in+1)*units*4)
	for j, b := range bias {
		off := (in*units + j) * 4
		binary.LittleEndian.PutUint32(data[off:], math.Float32bits(float32(b)))
	}
	return data
}

const topologyJSON = `{
	"name": "artlens",
	"version": "1.0.0",
	"input_shape": [2, 2, 3],
	"layers": [
		{"units": 4, "activation": "softmax", "shard": "group1-shard1of1.bin"}
	]
}`

// artifactServer serves a topology descriptor plus one weight shard
// and counts artifact fetches
type artifactServer struct {
	fetches    int64
	emptyShard int32 // serve an empty weights file while non-zero
}

func (s *artifactServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/models/model.json", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&s.fetches, 1)
		w.Write([]byte(topologyJSON))
	})
	mux.HandleFunc("/models/group1-shard1of1.bin", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&s.fetches, 1)
		if atomic.LoadInt32(&s.emptyShard) != 0 {
			return
		}
		w.Write(shardBytes(12, []float64{0, 0, 1, 0}))
	})
	return mux
}

func TestRegistryModel(t *testing.T) {
	t.Run("loads and caches the model", func(t *testing.T) {
		srv := &artifactServer{}
		ts := httptest.NewServer(srv.handler())
		defer ts.Close()

		r := NewRegistry(ts.URL+"/models/model.json", time.Second)
		model, err := r.Model(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "artlens", model.Name)
		assert.Equal(t, []int{2, 2, 3}, model.InputShape)
		assert.Equal(t, 4, model.NumClasses())

		// second call returns the cached instance without re-fetching
		again, err := r.Model(context.Background())
		require.NoError(t, err)
		assert.Same(t, model, again)
		assert.Equal(t, int64(2), atomic.LoadInt64(&srv.fetches))
	})

	t.Run("concurrent first calls coalesce into one load", func(t *testing.T) {
		srv := &artifactServer{}
		ts := httptest.NewServer(srv.handler())
		defer ts.Close()

		r := NewRegistry(ts.URL+"/models/model.json", time.Second)
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := r.Model(context.Background())
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		// one topology fetch plus one shard fetch
		assert.Equal(t, int64(2), atomic.LoadInt64(&srv.fetches))
	})

	t.Run("empty shard fails and a later call retries", func(t *testing.T) {
		srv := &artifactServer{emptyShard: 1}
		ts := httptest.NewServer(srv.handler())
		defer ts.Close()

		r := NewRegistry(ts.URL+"/models/model.json", time.Second)
		_, err := r.Model(context.Background())
		require.Error(t, err)
		assert.Equal(t, ModelLoadError, errorCode(err))

		// artifact becomes available, no process restart required
		atomic.StoreInt32(&srv.emptyShard, 0)
		model, err := r.Model(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 4, model.NumClasses())
	})

	t.Run("missing artifact fails with model load error", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		defer ts.Close()
		r := NewRegistry(ts.URL+"/models/model.json", time.Second)
		_, err := r.Model(context.Background())
		require.Error(t, err)
		assert.Equal(t, ModelLoadError, errorCode(err))
	})

	t.Run("invalidate drops the cached model", func(t *testing.T) {
		srv := &artifactServer{}
		ts := httptest.NewServer(srv.handler())
		defer ts.Close()

		r := NewRegistry(ts.URL+"/models/model.json", time.Second)
		_, err := r.Model(context.Background())
		require.NoError(t, err)
		r.Invalidate()
		_, err = r.Model(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(4), atomic.LoadInt64(&srv.fetches))
	})
}

func TestParseShard(t *testing.T) {
	t.Run("rejects truncated shard", func(t *testing.T) {
		_, _, err := parseShard([]byte{1, 2, 3}, 12, 4)
		require.Error(t, err)
	})

	t.Run("decodes weights and bias", func(t *testing.T) {
		weights, bias, err := parseShard(shardBytes(2, []float64{0.5, 1.5}), 2, 2)
		require.NoError(t, err)
		r, c := weights.Dims()
		assert.Equal(t, 2, r)
		assert.Equal(t, 2, c)
		assert.InDelta(t, 0.5, bias[0], 1e-6)
		assert.InDelta(t, 1.5, bias[1], 1e-6)
	})
}
