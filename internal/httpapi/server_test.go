package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joelkehle/dealdesk/internal/dealextract"
	"github.com/joelkehle/dealdesk/internal/llm"
	"github.com/joelkehle/dealdesk/internal/match"
	"github.com/joelkehle/dealdesk/internal/outreach"
	"github.com/joelkehle/dealdesk/internal/pipeline"
	"github.com/joelkehle/dealdesk/internal/universe"
)

type queueCaller struct {
	responses []string
	calls     int
}

func (q *queueCaller) GenerateJSON(_ context.Context, _ llm.Request) (string, error) {
	i := q.calls
	q.calls++
	if i < len(q.responses) {
		return q.responses[i], nil
	}
	return "", nil
}

const claimPass = `{"supported":true,"unsupported_claims":[]}`

func testHandler(responses []string) http.Handler {
	caller := &queueCaller{responses: responses}
	cps := []universe.Counterparty{{
		ID: "cp-1", Name: "Summit Ridge Capital", Type: universe.TypePrivateEquity,
		Sectors: []string{dealextract.SectorSoftware}, Geographies: []string{"US"},
		MinEbitda: 1_000_000, MaxEbitda: 20_000_000,
		MinDealSize: 10_000_000, MaxDealSize: 200_000_000,
		DryPowder: 250_000_000, PastDeals: 12,
	}}
	pipe := pipeline.New(
		dealextract.NewExtractor(caller),
		match.NewRanker(match.HeuristicScorer{}),
		outreach.NewGenerator(caller),
		cps,
	)
	return NewServer(pipe)
}

func TestHandleAnalyze(t *testing.T) {
	h := testHandler([]string{
		`{"name":"Acme Co.","sector":"Software","geography":"US","revenue":18500000,"earnings":5000000,"transactionSize":60000000,"description":"US SaaS platform."}`,
		claimPass,
		`{"summary":"Acme Co. is a US software business.","drafts":[{"counterpartyId":"cp-1","subject":"Acquisition opportunity","body":"Revenue of $18.5M and EBITDA of $5M."}]}`,
		claimPass,
	})

	body := `{"text":"Acme Co. — US SaaS platform. Revenue: $18.5M. EBITDA: $5M. EV: $60M."}`
	req := httptest.NewRequest(http.MethodPost, "/v1/deals/analyze", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		OK        bool            `json:"ok"`
		Result    pipeline.Result `json:"result"`
		TearSheet string          `json:"tearSheet"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.OK || resp.Result.Deal.Name != "Acme Co." {
		t.Errorf("resp = %+v", resp)
	}
	if !strings.Contains(resp.TearSheet, "# Deal Tear Sheet: Acme Co.") {
		t.Errorf("tear sheet = %q", resp.TearSheet)
	}
}

func TestHandleAnalyzeShortText(t *testing.T) {
	h := testHandler(nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/deals/analyze", strings.NewReader(`{"text":"hi"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleAnalyzeMethod(t *testing.T) {
	h := testHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/deals/analyze", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
}

func TestHandleExtract(t *testing.T) {
	h := testHandler(nil)
	body := `{"text":"Acme Co. — US SaaS platform. Revenue: $18.5M. EBITDA: $5M. EV: $60M."}`
	req := httptest.NewRequest(http.MethodPost, "/v1/deals/extract", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		OK   bool             `json:"ok"`
		Deal dealextract.Deal `json:"deal"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Deal.Revenue != 18_500_000 || resp.Deal.Sector != dealextract.SectorSoftware {
		t.Errorf("deal = %+v", resp.Deal)
	}
}

func TestHandleExtractEmptyText(t *testing.T) {
	h := testHandler(nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/deals/extract", strings.NewReader(`{"text":""}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleSearch(t *testing.T) {
	h := testHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/counterparties/search?q=summit", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		OK   bool           `json:"ok"`
		Hits []universe.Hit `json:"hits"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Hits) != 1 || resp.Hits[0].Counterparty.ID != "cp-1" {
		t.Errorf("hits = %+v", resp.Hits)
	}
}

func TestHandleSearchFilters(t *testing.T) {
	h := testHandler(nil)
	cases := []struct {
		url  string
		hits int
	}{
		{url: "/v1/counterparties/search?sector=Software", hits: 1},
		{url: "/v1/counterparties/search?type=Strategic", hits: 0},
		{url: "/v1/counterparties/search?q=summit&geography=UK", hits: 0},
		{url: "/v1/counterparties/search?minSize=50000000&maxSize=100000000", hits: 1},
		{url: "/v1/counterparties/search?minSize=500000000", hits: 0},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, c.url, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d", c.url, w.Code)
			continue
		}
		var resp struct {
			Hits []universe.Hit `json:"hits"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: decode: %v", c.url, err)
		}
		if len(resp.Hits) != c.hits {
			t.Errorf("%s: hits = %d, want %d", c.url, len(resp.Hits), c.hits)
		}
	}
}

func TestHandleSearchValidation(t *testing.T) {
	h := testHandler(nil)
	for _, url := range []string{
		"/v1/counterparties/search",
		"/v1/counterparties/search?q=summit&limit=0",
		"/v1/counterparties/search?q=summit&limit=abc",
		"/v1/counterparties/search?q=summit&minSize=abc",
		"/v1/counterparties/search?q=summit&maxSize=-5",
	} {
		req := httptest.NewRequest(http.MethodGet, url, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", url, w.Code)
		}
	}
}

func TestHandleSearchNoHits(t *testing.T) {
	h := testHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/counterparties/search?q=zzzz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"hits":[]`) {
		t.Errorf("body = %s, want empty hits array", w.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	h := testHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"counterparties":1`) {
		t.Errorf("body = %s", w.Body.String())
	}
}
