package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/gateway"
)

const (
	// formOverhead allows for multipart boundaries and small fields.
	formOverhead = 1 << 20
	maxLangBytes = 32
)

type geoJSONRequest struct {
	GeoJSON json.RawMessage `json:"geojson"`
	Lang    string          `json:"lang"`
}

type coverageResponse struct {
	GeoJSON json.RawMessage `json:"geojson"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// handleAnalyze streams the multipart "file" field into the gateway. The
// "lang" field must precede the file or be passed as a query parameter.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	mr, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, &gateway.Error{Status: http.StatusBadRequest, Message: "Expected multipart form data.", Err: err})
		return
	}

	lang := r.URL.Query().Get("lang")
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.writeError(w, bodyError(err))
			return
		}

		switch part.FormName() {
		case "lang":
			b, err := io.ReadAll(io.LimitReader(part, maxLangBytes))
			if err != nil {
				s.writeError(w, bodyError(err))
				return
			}
			lang = string(b)
		case "file":
			upload, err := gateway.NewUpload(part.FileName(), part, lang)
			if err != nil {
				s.writeError(w, err)
				return
			}
			resp, err := s.analyzer.Analyze(r.Context(), upload)
			if err != nil {
				s.writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, resp)
			return
		}
		part.Close()
	}
	s.writeError(w, &gateway.Error{Status: http.StatusBadRequest, Message: "No file uploaded."})
}

func (s *Server) handleAnalyzeGeoJSON(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	var req geoJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, bodyError(err))
		return
	}
	if len(req.GeoJSON) == 0 || req.GeoJSON[0] != '{' {
		s.writeError(w, &gateway.Error{Status: http.StatusUnprocessableEntity, Message: "geojson must be an object."})
		return
	}

	resp, err := s.analyzer.Analyze(r.Context(), &gateway.Drawn{GeoJSON: req.GeoJSON, Language: req.Lang})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCoverage(w http.ResponseWriter, _ *http.Request) {
	raw, err := s.analyzer.CoverageGeoJSON()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coverageResponse{GeoJSON: raw})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path, err := s.analyzer.Bundle(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_outputs.zip"`, id))
	http.ServeFile(w, r, path)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	path, err := s.analyzer.ResultFile(r.PathValue("id"), r.PathValue("file"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	http.ServeFile(w, r, path)
}

// bodyError classifies a failure to read the request body.
func bodyError(err error) *gateway.Error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return &gateway.Error{Status: http.StatusRequestEntityTooLarge, Message: "Upload too large.", Reason: "too_large", Err: err}
	}
	return &gateway.Error{Status: http.StatusBadRequest, Message: "Malformed request body.", Err: err}
}

// writeError renders err as {"detail": ...} with its status.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	gwErr := gateway.AsError(err)
	if gwErr.Status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", gwErr.Status, "error", err)
	}
	if gwErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(gwErr.RetryAfter.Seconds())))
	}
	writeJSON(w, gwErr.Status, errorResponse{Detail: gwErr.Message})
}
