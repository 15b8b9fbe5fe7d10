package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hazyhaar/combine-registry/pkg/engine"
	"github.com/hazyhaar/combine-registry/pkg/feedback"
	"github.com/hazyhaar/combine-registry/pkg/refdata/refdatatest"
)

func testEngine(t *testing.T) (*engine.Engine, *feedback.MemoryAppender) {
	t.Helper()
	app := &feedback.MemoryAppender{}
	return engine.New(refdatatest.Snapshot(t), engine.Options{Appender: app}), app
}

func testRouter(t *testing.T) (http.Handler, *engine.Engine, *feedback.MemoryAppender) {
	t.Helper()
	eng, app := testEngine(t)
	return NewRouter(eng, RouterOptions{Metrics: true}), eng, app
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	return rec
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	return rec
}

func TestNormalize(t *testing.T) {
	h, _, _ := testRouter(t)
	rec := get(t, h, "/v1/normalize/"+url.PathEscape("jd s790"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp struct {
		Input     string `json:"input"`
		Canonical string `json:"canonical_input"`
		Results   []struct {
			ID         string  `json:"canonical_id"`
			Confidence float64 `json:"confidence"`
			Kind       string  `json:"match_kind"`
		} `json:"results"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Canonical != "jd s790" || len(resp.Results) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if r := resp.Results[0]; r.ID != "john_deere_s790" || r.Confidence < 0.95 || r.Kind != "brand_alias" {
		t.Errorf("result = %+v", r)
	}
}

func TestNormalize_YearParam(t *testing.T) {
	h, _, _ := testRouter(t)
	if rec := get(t, h, "/v1/normalize/s790?year=abc"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad year status = %d, want 400", rec.Code)
	}
	if rec := get(t, h, "/v1/normalize/s790?year=2022&region=fr"); rec.Code != http.StatusOK {
		t.Errorf("status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestNormalize_Errors(t *testing.T) {
	h, _, _ := testRouter(t)

	rec := get(t, h, "/v1/normalize/"+url.PathEscape("zzz99 unknown tractor"))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var body errorBody
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Kind != "normalization failed" || len(body.Hints) == 0 {
		t.Errorf("error body = %+v", body)
	}

	rec = get(t, h, "/v1/normalize/"+url.PathEscape("!!!"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid input status = %d, want 400", rec.Code)
	}
}

func TestBatch(t *testing.T) {
	h, _, _ := testRouter(t)
	rec := post(t, h, "/v1/normalize/batch", `{"inputs":["jd s790","zzz99 unknown tractor","x9 1100"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp batchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(resp.Results))
	}
	if resp.Results[0].Results[0].ID != "john_deere_s790" {
		t.Errorf("first = %+v", resp.Results[0])
	}
	if resp.Results[1].Error == nil || len(resp.Results[1].Error.Hints) == 0 {
		t.Errorf("second should fail with hints: %+v", resp.Results[1])
	}
	if n := len(resp.Results[2].Results); n != 2 {
		t.Errorf("third has %d candidates, want 2", n)
	}
}

func TestBatch_Limits(t *testing.T) {
	h, _, _ := testRouter(t)
	if rec := post(t, h, "/v1/normalize/batch", `{"inputs":[]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty batch status = %d, want 400", rec.Code)
	}

	inputs := make([]string, MaxBatch+1)
	for i := range inputs {
		inputs[i] = fmt.Sprintf("s%d", 700+i)
	}
	body, _ := json.Marshal(map[string]any{"inputs": inputs})
	if rec := post(t, h, "/v1/normalize/batch", string(body)); rec.Code != http.StatusBadRequest {
		t.Errorf("oversized batch status = %d, want 400", rec.Code)
	}

	if rec := post(t, h, "/v1/normalize/batch", `{`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d, want 400", rec.Code)
	}
	if rec := get(t, h, "/v1/normalize/batch"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET batch status = %d, want 405", rec.Code)
	}
}

func TestCorrection(t *testing.T) {
	h, eng, app := testRouter(t)
	rec := post(t, h, "/v1/corrections",
		`{"original_input":"x9 1100","rejected_canonical":"john_deere_x9_1000","accepted_canonical":"john_deere_x9_1100","region":"fr"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var got feedback.Record
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	eng.Wait()
	records := app.Records()
	if len(records) != 1 || records[0].ID != got.ID || got.Accepted != "john_deere_x9_1100" {
		t.Errorf("response %+v, appended %+v", got, records)
	}

	if rec := post(t, h, "/v1/corrections", `{"original_input":"x9 1100"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing accepted status = %d, want 400", rec.Code)
	}
}

func TestReferenceAndHealth(t *testing.T) {
	h, _, _ := testRouter(t)

	rec := get(t, h, "/v1/reference")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var ref struct {
		Reference struct {
			Models int `json:"models"`
		} `json:"reference"`
		Brands []string `json:"brands"`
	}
	json.NewDecoder(rec.Body).Decode(&ref)
	if ref.Reference.Models != 9 || len(ref.Brands) != 5 {
		t.Errorf("reference = %+v", ref)
	}

	rec = get(t, h, "/v1/health")
	var health healthResponse
	json.NewDecoder(rec.Body).Decode(&health)
	if health.Status != "ok" || health.Models != 9 || health.Version != "test" {
		t.Errorf("health = %+v", health)
	}
}

func TestMetricsAndCORS(t *testing.T) {
	h, _, _ := testRouter(t)
	if rec := get(t, h, "/metrics"); rec.Code != http.StatusOK {
		t.Errorf("/metrics status = %d", rec.Code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/v1/normalize/batch", nil))
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight = %d %v", rec.Code, rec.Header())
	}

	req := httptest.NewRequest("GET", "/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") != "abc" {
		t.Error("request id not echoed")
	}
}

func TestMCPTools(t *testing.T) {
	eng, _ := testEngine(t)
	srv := NewMCPServer(eng, "test", nil)

	call := func(name string, args map[string]any) string {
		t.Helper()
		msg, _ := json.Marshal(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"method":  "tools/call",
			"params":  map[string]any{"name": name, "arguments": args},
		})
		resp := srv.HandleMessage(context.Background(), msg)
		data, err := json.Marshal(resp)
		if err != nil {
			t.Fatalf("marshal response: %v", err)
		}
		return string(data)
	}

	out := call("normalize_identifier", map[string]any{"input": "class 8900 lexion", "year": 2022})
	if !strings.Contains(out, "claas_lexion_8900") {
		t.Errorf("normalize_identifier = %s", out)
	}

	out = call("normalize_identifier", map[string]any{"input": "zzz99 unknown tractor"})
	if !strings.Contains(out, `"isError":true`) || !strings.Contains(out, "normalization failed") {
		t.Errorf("failed normalize = %s", out)
	}

	out = call("record_correction", map[string]any{
		"original_input":     "x9 1100",
		"accepted_canonical": "john_deere_x9_1100",
	})
	if !strings.Contains(out, "john_deere_x9_1100") {
		t.Errorf("record_correction = %s", out)
	}
	eng.Wait()

	out = call("reference_stats", nil)
	if !strings.Contains(out, `\"models\":9`) {
		t.Errorf("reference_stats = %s", out)
	}
}
