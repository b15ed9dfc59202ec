package main

// pipeline module provides the upload orchestrator which drives the
// blob write, preprocessing, inference, resolution and ledger append
// for one uploaded image
//

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/panjf2000/ants/v2"
)

// Pipeline owns the end-to-end upload-to-inference flow, the loaded
// model cache inside the registry is the only state shared between
// concurrent runs
type Pipeline struct {
	Store    ObjectStore
	Registry *Registry
	Catalog  Catalog
	History  HistoryStore
	Labels   []string   // class label table
	Height   int        // model input height
	Width    int        // model input width
	MaxBytes int64      // upload payload limit
	client   *http.Client
	pool     *ants.Pool // bounds concurrent inference work
}

// NewPipeline creates the upload orchestrator with a worker pool of
// given size bounding simultaneous inference runs
func NewPipeline(store ObjectStore, registry *Registry, catalog Catalog, history HistoryStore, labels []string, height, width int, maxBytes int64, workers int, timeout time.Duration) (*Pipeline, error) {
	if store == nil {
		return nil, errors.New("pipeline requires an object store")
	}
	if registry == nil {
		return nil, errors.New("pipeline requires a model registry")
	}
	if catalog == nil {
		return nil, errors.New("pipeline requires an artist catalog")
	}
	if history == nil {
		return nil, errors.New("pipeline requires a history store")
	}
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Store:    store,
		Registry: registry,
		Catalog:  catalog,
		History:  history,
		Labels:   labels,
		Height:   height,
		Width:    width,
		MaxBytes: maxBytes,
		client:   &http.Client{Timeout: timeout},
		pool:     pool,
	}, nil
}

// Release tears down the inference worker pool
func (p *Pipeline) Release() {
	p.pool.Release()
}

// HandleUpload runs one pipeline run for given upload stream, each
// step is gated on the previous succeeding, a blob written before a
// later stage failure is not rolled back and its key is logged so
// operators can reap orphaned artifacts
func (p *Pipeline) HandleUpload(ctx context.Context, r io.Reader, filename, contentType string) (*PipelineResult, error) {
	if r == nil {
		return nil, userError("upload", BadRequest, errors.New("no upload stream provided"))
	}
	data, err := io.ReadAll(io.LimitReader(r, p.MaxBytes+1))
	if err != nil {
		return nil, userError("upload", BadRequest, fmt.Errorf("unable to read upload stream: %w", err))
	}
	if len(data) == 0 {
		return nil, userError("upload", BadRequest, errors.New("empty upload stream"))
	}
	if int64(len(data)) > p.MaxBytes {
		return nil, userError("upload", BadRequest, fmt.Errorf("upload exceeds %d bytes", p.MaxBytes))
	}

	key := storageKey(filename)
	addr, err := p.Store.Write(key, data, contentType)
	if err != nil {
		return nil, stageError("store", StorageError, err)
	}

	// run the inference stages on the bounded worker pool
	var result *PipelineResult
	var runErr error
	done := make(chan struct{})
	if err := p.pool.Submit(func() {
		defer close(done)
		result, runErr = p.infer(ctx, addr, key)
	}); err != nil {
		return nil, stageError("pipeline", GenericError, err)
	}
	<-done
	return result, runErr
}

// infer drives model load, preprocessing, classification, resolution
// and ledger append for an already stored upload, the image is fetched
// back by its public address which decouples preprocessing from the
// upload transport
func (p *Pipeline) infer(ctx context.Context, addr, key string) (*PipelineResult, error) {
	model, err := p.Registry.Model(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := FetchImage(ctx, addr, p.client)
	if err != nil {
		return nil, err
	}
	tensor, err := Prepare(raw, p.Height, p.Width)
	if err != nil {
		return nil, err
	}
	pred, err := Predict(model, tensor)
	if err != nil {
		return nil, err
	}
	if Config.Verbose > 0 {
		log.Printf("model %s/%s predicted class %d with confidence %.4f", model.Name, model.Version, pred.ClassIndex, pred.Confidence)
	}
	artist, err := Resolve(pred.ClassIndex, p.Labels, p.Catalog)
	if err != nil {
		return nil, err
	}
	rec, err := p.History.Append(HistoryRecord{
		ImageURL:  addr,
		Result:    artist.Nama,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		// the blob write already succeeded, there is no compensating
		// delete, see design notes
		log.Printf("ERROR: history append failed, blob %s is orphaned: %v", key, err)
		return nil, err
	}
	return &PipelineResult{URL: addr, History: rec, Artist: artist}, nil
}
