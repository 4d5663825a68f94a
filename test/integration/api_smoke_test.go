package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/ivankudzin/forummod/internal/app/apiapp"
	"github.com/ivankudzin/forummod/internal/config"
	authsvc "github.com/ivankudzin/forummod/internal/services/auth"
)

func TestHealthz(t *testing.T) {
	ts, _ := newSmokeServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", resp.StatusCode, http.StatusOK)
	}

	var payload struct {
		Status  string `json:"status"`
		Storage string `json:"storage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "ok" || payload.Storage != config.StorageDriverMemory {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestModerationRoundTrip(t *testing.T) {
	ts, cfg := newSmokeServer(t)

	tokens := authsvc.NewJWTManager(cfg.Auth.JWTSecret, time.Minute)
	adminToken, _, err := tokens.GenerateAccessToken("admin-1", "sid-1", "moderator")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var item struct {
		ID      string `json:"id"`
		Version int64  `json:"version"`
		Verdict *struct {
			Score float64  `json:"score"`
			Tags  []string `json:"tags"`
		} `json:"verdict"`
	}
	resp := send(t, ts, http.MethodPost, "/internal/content", `{"author_id":"author-1","body":"cheap pills at http://a.example http://b.example"}`, map[string]string{
		"X-Service-Token": cfg.Auth.ServiceToken,
	})
	decodeInto(t, resp, http.StatusCreated, &item)
	if item.Verdict == nil || item.Verdict.Score <= 0 {
		t.Fatalf("expected a spam verdict for the submitted item, got %+v", item.Verdict)
	}

	auth := map[string]string{"Authorization": "Bearer " + adminToken}

	var page struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	decodeInto(t, send(t, ts, http.MethodGet, "/admin/moderation/queue", "", auth), http.StatusOK, &page)
	if len(page.Items) != 1 || page.Items[0].ID != item.ID {
		t.Fatalf("unexpected queue page: %+v", page)
	}

	body := fmt.Sprintf(`{"status":"rejected","expected_version":%d,"rationale":"spam links"}`, item.Version)
	resp = send(t, ts, http.MethodPost, "/admin/moderation/items/"+item.ID+"/decision", body, auth)
	decodeInto(t, resp, http.StatusOK, &item)
	if item.Version != 2 {
		t.Fatalf("unexpected version after decision: %d", item.Version)
	}

	var summary struct {
		Counts map[string]int `json:"counts"`
	}
	decodeInto(t, send(t, ts, http.MethodGet, "/admin/moderation/summary", "", auth), http.StatusOK, &summary)
	if summary.Counts["rejected"] != 1 || summary.Counts["pending"] != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func newSmokeServer(t *testing.T) (*httptest.Server, config.Config) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg := config.Default()
	cfg.HTTP.Addr = ":0"
	cfg.Redis.Addr = mr.Addr()

	app, err := apiapp.New(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = app.Shutdown(ctx)
	})

	ts := httptest.NewServer(app.Handler())
	t.Cleanup(ts.Close)
	return ts, cfg
}

func send(t *testing.T, ts *httptest.Server, method, path, body string, headers map[string]string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, ts.URL+path, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, status int, target any) {
	t.Helper()
	defer resp.Body.Close()

	if resp.StatusCode != status {
		t.Fatalf("unexpected status: got %d want %d", resp.StatusCode, status)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
