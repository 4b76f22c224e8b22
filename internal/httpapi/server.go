// Package httpapi exposes the deal analysis pipeline over a narrow
// JSON HTTP surface.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/joelkehle/dealdesk/internal/dealextract"
	"github.com/joelkehle/dealdesk/internal/pipeline"
	"github.com/joelkehle/dealdesk/internal/universe"
)

type Server struct {
	pipe *pipeline.Pipeline
}

func NewServer(pipe *pipeline.Pipeline) http.Handler {
	s := &Server{pipe: pipe}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/deals/analyze", s.handleAnalyze)
	mux.HandleFunc("/v1/deals/extract", s.handleExtract)
	mux.HandleFunc("/v1/counterparties/search", s.handleSearch)
	mux.HandleFunc("/v1/health", s.handleHealth)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"ok": false,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return []byte("{}"), nil
	}
	blob, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		blob = []byte("{}")
	}
	return blob, nil
}

type analyzeRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}
	var req analyzeRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	res, err := s.pipe.Analyze(r.Context(), req.Text)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"result":    res,
		"tearSheet": pipeline.BuildTearSheet(res),
	})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}
	var req analyzeRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "text is required")
		return
	}
	deal := dealextract.FallbackExtract(req.Text)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deal": deal})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}
	params := r.URL.Query()
	q := universe.Query{
		Text:      strings.TrimSpace(params.Get("q")),
		Sector:    strings.TrimSpace(params.Get("sector")),
		Geography: strings.TrimSpace(params.Get("geography")),
		Type:      strings.TrimSpace(params.Get("type")),
		Tag:       strings.TrimSpace(params.Get("tag")),
		Limit:     20,
	}
	var err error
	if q.MinSize, err = parseSize(params.Get("minSize")); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "minSize must be a non-negative number")
		return
	}
	if q.MaxSize, err = parseSize(params.Get("maxSize")); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "maxSize must be a non-negative number")
		return
	}
	if q.Text == "" && q.Sector == "" && q.Geography == "" && q.Type == "" && q.Tag == "" && q.MinSize == 0 && q.MaxSize == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "at least one of q, sector, geography, type, tag, minSize, maxSize is required")
		return
	}
	if raw := params.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be an integer in [1,100]")
			return
		}
		q.Limit = n
	}
	hits := universe.Search(s.pipe.Universe(), q)
	if hits == nil {
		hits = []universe.Hit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "hits": hits})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"counterparties": len(s.pipe.Universe()),
	})
}

func parseSize(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, errInvalidSize
	}
	return v, nil
}

var errInvalidSize = errors.New("invalid size bound")

func decodeRequest(r *http.Request, dst any) error {
	blob, err := readBody(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(blob, dst)
}
