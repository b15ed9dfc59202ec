package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memLedger is an in-memory HistoryStore used in tests
type memLedger struct {
	records []HistoryRecord
	fail    bool
	seq     int
}

func (l *memLedger) Append(rec HistoryRecord) (HistoryRecord, error) {
	if l.fail {
		return HistoryRecord{}, stageError("history", PersistenceError, errors.New("ledger unavailable"))
	}
	l.seq++
	rec.ID = fmt.Sprintf("%08d", l.seq)
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	l.records = append(l.records, rec)
	return rec, nil
}

func (l *memLedger) ListAll() ([]HistoryRecord, error) {
	out := make([]HistoryRecord, len(l.records))
	copy(out, l.records)
	return out, nil
}

var testLabels = []string{
	"CORE", "Fuchi", "Kamepasta", "Re°", "Yohki",
	"Neg", "Kouki Haru", "Nine", "shigure ui", "sia",
}

// newTestPipeline builds a pipeline over a disk store served through
// an httptest server so uploads are re-fetched by public address, the
// registry is pre-seeded with a model whose bias always selects the
// favored class
func newTestPipeline(t *testing.T, catalog Catalog, ledger HistoryStore, favored int) (*Pipeline, func()) {
	t.Helper()
	dir := t.TempDir()
	ts := httptest.NewServer(http.StripPrefix("/files/", http.FileServer(http.Dir(dir))))

	bias := make([]float64, len(testLabels))
	bias[favored] = 1
	registry := &Registry{model: biasModel(2, 2, bias)}
	store := &FileStore{Root: dir, PublicURL: ts.URL}

	pipeline, err := NewPipeline(store, registry, catalog, ledger, testLabels, 2, 2, 10<<20, 2, time.Second)
	require.NoError(t, err)
	cleanup := func() {
		pipeline.Release()
		ts.Close()
	}
	return pipeline, cleanup
}

func TestHandleUpload(t *testing.T) {
	t.Run("uncataloged prediction yields placeholder and one history record", func(t *testing.T) {
		catalog := &memCatalog{artists: map[string]Artist{}}
		ledger := &memLedger{}
		pipeline, cleanup := newTestPipeline(t, catalog, ledger, 3)
		defer cleanup()

		payload := makeJPEG(t, 500, 500)
		result, err := pipeline.HandleUpload(context.Background(), bytes.NewReader(payload), "upload.jpg", "image/jpeg")
		require.NoError(t, err)

		assert.Equal(t, "Re°", result.Artist.Nama)
		assert.Contains(t, result.Artist.Message, notFoundNotice)
		assert.True(t, strings.HasSuffix(result.URL, ".jpg"))

		records, err := ledger.ListAll()
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, result.URL, records[0].ImageURL)
		assert.Equal(t, "Re°", records[0].Result)
		assert.Equal(t, records[0], result.History)
	})

	t.Run("cataloged prediction carries catalog metadata", func(t *testing.T) {
		catalog := &memCatalog{artists: map[string]Artist{
			"Fuchi": {Nama: "Fuchi", Pixiv: "https://pixiv.net/fuchi"},
		}}
		ledger := &memLedger{}
		pipeline, cleanup := newTestPipeline(t, catalog, ledger, 1)
		defer cleanup()

		result, err := pipeline.HandleUpload(context.Background(), bytes.NewReader(makeJPEG(t, 64, 48)), "a.jpg", "image/jpeg")
		require.NoError(t, err)
		assert.Equal(t, "Fuchi", result.Artist.Nama)
		assert.Equal(t, "https://pixiv.net/fuchi", result.Artist.Pixiv)
	})

	t.Run("non-image upload fails at decode and leaves the ledger untouched", func(t *testing.T) {
		ledger := &memLedger{}
		pipeline, cleanup := newTestPipeline(t, &memCatalog{artists: map[string]Artist{}}, ledger, 0)
		defer cleanup()

		_, err := pipeline.HandleUpload(context.Background(), strings.NewReader("plain text payload"), "notes.txt", "text/plain")
		require.Error(t, err)
		assert.Equal(t, ImageDecodeError, errorCode(err))
		assert.True(t, isUserFault(err))

		records, err := ledger.ListAll()
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("ledger failure surfaces persistence error, blob stays written", func(t *testing.T) {
		ledger := &memLedger{fail: true}
		pipeline, cleanup := newTestPipeline(t, &memCatalog{artists: map[string]Artist{}}, ledger, 0)
		defer cleanup()

		_, err := pipeline.HandleUpload(context.Background(), bytes.NewReader(makeJPEG(t, 10, 10)), "b.jpg", "image/jpeg")
		require.Error(t, err)
		assert.Equal(t, PersistenceError, errorCode(err))

		// the already-written blob is not rolled back
		files, err := os.ReadDir(pipeline.Store.(*FileStore).Root)
		require.NoError(t, err)
		assert.Len(t, files, 1)
	})

	t.Run("oversized upload is rejected before storage", func(t *testing.T) {
		ledger := &memLedger{}
		pipeline, cleanup := newTestPipeline(t, &memCatalog{artists: map[string]Artist{}}, ledger, 0)
		defer cleanup()
		pipeline.MaxBytes = 16

		_, err := pipeline.HandleUpload(context.Background(), bytes.NewReader(makeJPEG(t, 100, 100)), "big.jpg", "image/jpeg")
		require.Error(t, err)
		assert.Equal(t, BadRequest, errorCode(err))
		assert.True(t, isUserFault(err))

		files, rerr := os.ReadDir(pipeline.Store.(*FileStore).Root)
		require.NoError(t, rerr)
		assert.Empty(t, files)
	})

	t.Run("empty stream is rejected", func(t *testing.T) {
		pipeline, cleanup := newTestPipeline(t, &memCatalog{artists: map[string]Artist{}}, &memLedger{}, 0)
		defer cleanup()
		_, err := pipeline.HandleUpload(context.Background(), strings.NewReader(""), "x.jpg", "image/jpeg")
		require.Error(t, err)
		assert.Equal(t, BadRequest, errorCode(err))
	})
}

func TestListAllIdempotence(t *testing.T) {
	ledger := &memLedger{}
	_, err := ledger.Append(HistoryRecord{ImageURL: "http://host/files/a.jpg", Result: "sia"})
	require.NoError(t, err)
	_, err = ledger.Append(HistoryRecord{ImageURL: "http://host/files/b.jpg", Result: "Neg"})
	require.NoError(t, err)

	first, err := ledger.ListAll()
	require.NoError(t, err)
	second, err := ledger.ListAll()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
