package main

// handlers module holds all HTTP handlers functions
//

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/gomarkdown/markdown"
	mhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/uptrace/bunrouter"
)

// helper function to decode JSON request body into given value
func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(v)
}

// helper function to write JSON response with given HTTP code
func respondJSON(w http.ResponseWriter, httpCode int, v any) {
	data, err := json.MarshalIndent(v, "", "   ")
	if err != nil {
		httpCode = http.StatusInternalServerError
		data = []byte(fmt.Sprintf(`{"error": %q}`, err.Error()))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpCode)
	w.Write(data)
}

// helper function to map stage error to HTTP status code
func httpStatus(err error) int {
	code := errorCode(err)
	if code == SessionError {
		return http.StatusUnauthorized
	}
	if isUserFault(err) {
		return http.StatusBadRequest
	}
	switch code {
	case BadRequest:
		return http.StatusBadRequest
	case DownloadError, StorageError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// helper function to provide standard JSON error envelope, user-input
// faults map to 4xx codes and system faults to 5xx codes
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	if Config.Verbose > 0 || status >= http.StatusInternalServerError {
		log.Printf("ERROR: %s %s code=%d error=%v", r.Method, r.RequestURI, errorCode(err), err)
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

// PredictHandler handles image upload requests and drives one
// pipeline run, on success it replies {url, history, artist}
func PredictHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(Config.MaxUploadSize); err != nil {
		respondError(w, r, userError("upload", BadRequest, fmt.Errorf("unable to parse multipart form: %w", err)))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, r, userError("upload", BadRequest, errors.New("missing image form field")))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	result, err := pipeline.HandleUpload(r.Context(), file, header.Filename, contentType)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// HistoryHandler returns all persisted inference records
func HistoryHandler(w http.ResponseWriter, r *http.Request) {
	records, err := ledger.ListAll()
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// ArtistHandler returns catalog record for given artist name
func ArtistHandler(w http.ResponseWriter, r *http.Request) {
	params := bunrouter.ParamsFromContext(r.Context())
	name, ok := params.Map()["name"]
	if !ok || name == "" {
		respondError(w, r, userError("catalog", BadRequest, errors.New("no artist name is provided")))
		return
	}
	artist, found, err := catalog.FindArtist(name)
	if err != nil {
		respondError(w, r, stageError("catalog", DatabaseError, err))
		return
	}
	if !found {
		respondJSON(w, http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("artist %q not found", name),
		})
		return
	}
	respondJSON(w, http.StatusOK, artist)
}

// StatusHandler handles status of the server
func StatusHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"server": info(),
	})
}

// DocsHandler serves service documentation rendered from markdown
func DocsHandler(w http.ResponseWriter, r *http.Request) {
	fname := fmt.Sprintf("%s/md/docs.md", Config.StaticDir)
	content, err := mdToHTML(fname)
	if err != nil {
		respondError(w, r, stageError("docs", GenericError, err))
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(content))
}

// helper function to parse given markdown file and return HTML content
func mdToHTML(fname string) (string, error) {
	file, err := os.Open(fname)
	if err != nil {
		return "", err
	}
	defer file.Close()
	md, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}

	// create markdown parser with extensions
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse(md)

	// create HTML renderer with extensions
	htmlFlags := mhtml.CommonFlags | mhtml.HrefTargetBlank
	opts := mhtml.RendererOptions{Flags: htmlFlags}
	renderer := mhtml.NewRenderer(opts)
	content := markdown.Render(doc, renderer)
	return string(content), nil
}
