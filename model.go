package main

// model module provides the model registry, it loads and caches the
// versioned classifier artifact fetched from a configured source
//

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gonum.org/v1/gonum/mat"
)

// supported dense layer activations
var activations = []string{"linear", "relu", "softmax"}

// Topology describes the classifier artifact, one descriptor plus
// one weight shard file per dense layer
type Topology struct {
	Name       string      `json:"name"`        // model name
	Version    string      `json:"version"`     // model version
	InputShape []int       `json:"input_shape"` // input dimensions without batch, e.g. [224, 224, 3]
	Layers     []LayerSpec `json:"layers"`      // dense layer specs in forward order
}

// LayerSpec describes one dense layer of the model topology
type LayerSpec struct {
	Units      int    `json:"units"`      // number of output units
	Activation string `json:"activation"` // layer activation
	Shard      string `json:"shard"`      // weight shard file name
}

// denseLayer holds loaded parameters of one dense layer
type denseLayer struct {
	weights    *mat.Dense // in x units weight matrix
	bias       []float64
	activation string
}

// Model represents a loaded classifier, read-only after construction
// and therefore safe for unsynchronized concurrent use
type Model struct {
	Name       string
	Version    string
	InputShape []int // input dimensions without batch
	layers     []denseLayer
}

// NumClasses returns size of the model output vector
func (m *Model) NumClasses() int {
	if len(m.layers) == 0 {
		return 0
	}
	return len(m.layers[len(m.layers)-1].bias)
}

// inputSize returns flattened size of the model input
func (m *Model) inputSize() int {
	size := 1
	for _, d := range m.InputShape {
		size *= d
	}
	return size
}

// forward runs one forward pass over flattened input values
func (m *Model) forward(x []float64) []float64 {
	v := mat.NewDense(1, len(x), x)
	for _, layer := range m.layers {
		_, units := layer.weights.Dims()
		out := mat.NewDense(1, units, nil)
		out.Mul(v, layer.weights)
		for j := 0; j < units; j++ {
			out.Set(0, j, out.At(0, j)+layer.bias[j])
		}
		applyActivation(out, layer.activation)
		v = out
	}
	return v.RawRowView(0)
}

// applyActivation applies given activation to a 1xN matrix in place
func applyActivation(v *mat.Dense, activation string) {
	_, n := v.Dims()
	switch activation {
	case "relu":
		for j := 0; j < n; j++ {
			if v.At(0, j) < 0 {
				v.Set(0, j, 0)
			}
		}
	case "softmax":
		max := v.At(0, 0)
		for j := 1; j < n; j++ {
			if v.At(0, j) > max {
				max = v.At(0, j)
			}
		}
		var sum float64
		for j := 0; j < n; j++ {
			e := math.Exp(v.At(0, j) - max)
			v.Set(0, j, e)
			sum += e
		}
		for j := 0; j < n; j++ {
			v.Set(0, j, v.At(0, j)/sum)
		}
	}
}

// Registry loads and caches the classifier artifact, concurrent first
// calls coalesce into a single in-flight load and a failed load does
// not poison the cache
type Registry struct {
	URL    string
	client *http.Client
	group  singleflight.Group
	mu     sync.RWMutex
	model  *Model
}

// NewRegistry creates model registry for given topology URL
func NewRegistry(murl string, timeout time.Duration) *Registry {
	return &Registry{
		URL:    murl,
		client: &http.Client{Timeout: timeout},
	}
}

// Model returns the cached classifier, loading it on first use
func (r *Registry) Model(ctx context.Context) (*Model, error) {
	r.mu.RLock()
	m := r.model
	r.mu.RUnlock()
	if m != nil {
		return m, nil
	}
	v, err, _ := r.group.Do("load", func() (any, error) {
		m, err := r.load(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.model = m
		r.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Model), nil
}

// Invalidate drops the cached model, the next call loads it again
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.model = nil
	r.mu.Unlock()
}

// load fetches the topology descriptor and all weight shards, then
// constructs the in-memory model, a partial artifact set is a load
// failure rather than a degraded model
func (r *Registry) load(ctx context.Context) (*Model, error) {
	data, err := r.fetchArtifact(ctx, r.URL)
	if err != nil {
		return nil, err
	}
	var topo Topology
	if err := json.Unmarshal(data, &topo); err != nil {
		return nil, stageError("model", ModelLoadError, fmt.Errorf("unable to parse topology: %w", err))
	}
	if len(topo.InputShape) == 0 || len(topo.Layers) == 0 {
		return nil, stageError("model", ModelLoadError, fmt.Errorf("topology %s has no input shape or layers", r.URL))
	}

	// fetch all weight shards before any load proceeds
	shards := make([][]byte, len(topo.Layers))
	for i, layer := range topo.Layers {
		if !InList(layer.Activation, activations) {
			return nil, stageError("model", ModelLoadError, fmt.Errorf("unsupported activation %q", layer.Activation))
		}
		surl, err := shardURL(r.URL, layer.Shard)
		if err != nil {
			return nil, stageError("model", ModelLoadError, err)
		}
		shards[i], err = r.fetchArtifact(ctx, surl)
		if err != nil {
			return nil, err
		}
	}

	model := &Model{Name: topo.Name, Version: topo.Version, InputShape: topo.InputShape}
	in := model.inputSize()
	for i, layer := range topo.Layers {
		weights, bias, err := parseShard(shards[i], in, layer.Units)
		if err != nil {
			return nil, stageError("model", ModelLoadError, fmt.Errorf("shard %s: %w", layer.Shard, err))
		}
		model.layers = append(model.layers, denseLayer{
			weights:    weights,
			bias:       bias,
			activation: layer.Activation,
		})
		in = layer.Units
	}
	return model, nil
}

// fetchArtifact retrieves one artifact and validates it is non-empty
func (r *Registry) fetchArtifact(ctx context.Context, aurl string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, aurl, nil)
	if err != nil {
		return nil, stageError("model", ModelLoadError, err)
	}
	rsp, err := r.client.Do(req)
	if err != nil {
		return nil, stageError("model", ModelLoadError, err)
	}
	defer rsp.Body.Close()
	if rsp.StatusCode != http.StatusOK {
		return nil, stageError("model", ModelLoadError, fmt.Errorf("artifact %s returned status %s", aurl, rsp.Status))
	}
	data, err := io.ReadAll(rsp.Body)
	if err != nil {
		return nil, stageError("model", ModelLoadError, err)
	}
	if len(data) == 0 {
		return nil, stageError("model", ModelLoadError, fmt.Errorf("artifact %s is empty", aurl))
	}
	return data, nil
}

// shardURL resolves a weight shard file name against the topology URL
func shardURL(topoURL, shard string) (string, error) {
	u, err := url.Parse(topoURL)
	if err != nil {
		return "", err
	}
	u.Path = path.Join(path.Dir(u.Path), shard)
	return u.String(), nil
}

// parseShard decodes one weight shard, layout is in*units float32
// little-endian weights in row-major order followed by units biases
func parseShard(data []byte, in, units int) (*mat.Dense, []float64, error) {
	want := (in + 1) * units * 4
	if len(data) != want {
		return nil, nil, fmt.Errorf("got %d bytes, want %d for %dx%d layer", len(data), want, in, units)
	}
	values := make([]float64, (in+1)*units)
	for i := range values {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		values[i] = float64(math.Float32frombits(bits))
	}
	weights := mat.NewDense(in, units, values[:in*units])
	bias := values[in*units:]
	return weights, bias, nil
}
