package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ignite/tabular-ingest/internal/parser"
	"github.com/ignite/tabular-ingest/internal/service/ingest"
)

// maxUploadBytes caps a single upload request. 32 MB of a multipart body
// stays in memory, the rest spills to disk.
const maxUploadBytes = 256 * 1024 * 1024

var (
	errUploadTooLarge = errors.New("upload exceeds size limit")
	errNoFilePart     = errors.New("multipart form has no \"file\" part")
	errNoFilename     = errors.New("filename query parameter is required for raw uploads")
	errReadUpload     = errors.New("failed to read upload body")
)

// HandleCreateImport accepts an upload and queues it for ingestion.
// Two request shapes are supported:
//
//   - multipart/form-data with a "file" part plus option fields
//     (delimiter, has_header, skip_rows, sheet_name, batch_size)
//   - a raw body with ?filename= and the same options as query params
//
// The default response is 202 with the job id; ?mode=sync blocks until
// the job reaches a terminal state and returns the final job document.
//
// POST /api/imports
func (h *Handlers) HandleCreateImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	in, err := readUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.svc.Submit(r.Context(), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if r.URL.Query().Get("mode") == "sync" {
		final, err := h.svc.Wait(r.Context(), job.ID)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, final)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// HandlePreviewImport parses the first rows of an upload without creating
// a job. Request shapes match HandleCreateImport; ?rows= caps the number
// of returned rows.
//
// POST /api/imports/preview
func (h *Handlers) HandlePreviewImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	in, err := readUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, _ := strconv.Atoi(r.URL.Query().Get("rows"))

	preview, err := h.svc.Preview(r.Context(), ingest.PreviewInput{
		FileName: in.FileName,
		Payload:  in.Payload,
		Options:  in.Options,
		Rows:     rows,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, preview)
}

// HandleFormats lists accepted file extensions and option defaults.
//
// GET /api/imports/formats
func (h *Handlers) HandleFormats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.SupportedFormats())
}

// readUpload extracts the file and parse options from either request
// shape. Multipart requests carry options as form fields, raw-body
// requests as query params.
func readUpload(r *http.Request) (ingest.SubmitInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return readMultipartUpload(r)
	}
	return readRawUpload(r)
}

func readMultipartUpload(r *http.Request) (ingest.SubmitInput, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return ingest.SubmitInput{}, errUploadTooLarge
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return ingest.SubmitInput{}, errNoFilePart
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		return ingest.SubmitInput{}, errReadUpload
	}

	return ingest.SubmitInput{
		FileName: header.Filename,
		Payload:  payload,
		Options:  parseOptions(formValues(r)),
	}, nil
}

func readRawUpload(r *http.Request) (ingest.SubmitInput, error) {
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		return ingest.SubmitInput{}, errNoFilename
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return ingest.SubmitInput{}, errReadUpload
	}

	return ingest.SubmitInput{
		FileName: filename,
		Payload:  payload,
		Options:  parseOptions(r.URL.Query()),
	}, nil
}

// parseOptions reads parse options from form fields or query params.
// Absent values stay zero; the parser applies its own defaults.
func parseOptions(values url.Values) parser.Options {
	var opts parser.Options

	if d := values.Get("delimiter"); d != "" {
		opts.Delimiter = []rune(d)[0]
	}
	if hh := values.Get("has_header"); hh != "" {
		opts.HasHeader, _ = strconv.ParseBool(hh)
	}
	if sr := values.Get("skip_rows"); sr != "" {
		opts.SkipRows, _ = strconv.Atoi(sr)
	}
	if bs := values.Get("batch_size"); bs != "" {
		opts.BatchSize, _ = strconv.Atoi(bs)
	}
	opts.SheetName = values.Get("sheet_name")

	return opts
}

// formValues merges multipart form fields into url.Values so multipart
// and raw-body requests share one option parser.
func formValues(r *http.Request) url.Values {
	if r.MultipartForm == nil {
		return url.Values{}
	}
	return url.Values(r.MultipartForm.Value)
}
