package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/shellvisr/internal/manager"
)

func newTestRouter(t *testing.T, apiKey string) (*Router, http.Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m, err := manager.New(manager.Config{
		BaseDir:     t.TempDir(),
		SandboxRoot: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	t.Cleanup(m.Close)
	rt := NewRouter(m, "/api", apiKey)
	return rt, rt.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var out map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, out
}

func spawnSleep(t *testing.T, h http.Handler) string {
	t.Helper()
	w, out := doJSON(t, h, http.MethodPost, "/api/shells",
		map[string]any{"command": []string{"sleep", "30"}}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("spawn status = %d body %s", w.Code, w.Body.String())
	}
	sh := out["shell"].(map[string]any)
	return sh["id"].(string)
}

func TestSpawnGetRemoveFlow(t *testing.T) {
	_, h := newTestRouter(t, "")
	id := spawnSleep(t, h)

	w, out := doJSON(t, h, http.MethodGet, "/api/shells/"+id, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	sh := out["shell"].(map[string]any)
	if sh["status"] != "running" {
		t.Fatalf("status = %v", sh["status"])
	}
	if _, leaked := sh["env_overrides"]; leaked {
		t.Fatal("payload carries env_overrides")
	}

	w, out = doJSON(t, h, http.MethodGet, "/api/shells", nil, nil)
	if w.Code != http.StatusOK || len(out["shells"].([]any)) != 1 {
		t.Fatalf("list status=%d body=%s", w.Code, w.Body.String())
	}

	w, _ = doJSON(t, h, http.MethodDelete, "/api/shells/"+id+"?force=true", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove status = %d", w.Code)
	}
	w, _ = doJSON(t, h, http.MethodGet, "/api/shells/"+id, nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after remove status = %d, want 404", w.Code)
	}
}

func TestActionRoutes(t *testing.T) {
	_, h := newTestRouter(t, "")
	id := spawnSleep(t, h)

	w, out := doJSON(t, h, http.MethodPost, "/api/shells/"+id+"/action",
		map[string]any{"action": "restart"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("restart status = %d body %s", w.Code, w.Body.String())
	}
	if sh := out["shell"].(map[string]any); sh["status"] != "running" {
		t.Fatalf("status after restart = %v", sh["status"])
	}

	w, out = doJSON(t, h, http.MethodPost, "/api/shells/"+id+"/action",
		map[string]any{"action": "kill"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("kill status = %d", w.Code)
	}
	if sh := out["shell"].(map[string]any); sh["status"] != "exited" {
		t.Fatalf("status after kill = %v", sh["status"])
	}

	w, _ = doJSON(t, h, http.MethodPost, "/api/shells/"+id+"/action",
		map[string]any{"action": "defenestrate"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown action status = %d, want 400", w.Code)
	}
}

func TestErrorKindMapping(t *testing.T) {
	_, h := newTestRouter(t, "")

	cases := []struct {
		name string
		run  func() *httptest.ResponseRecorder
		want int
		kind string
	}{
		{"invalid argument", func() *httptest.ResponseRecorder {
			w, _ := doJSON(t, h, http.MethodPost, "/api/shells", map[string]any{"command": []string{}}, nil)
			return w
		}, http.StatusBadRequest, "invalid_argument"},
		{"sandbox violation", func() *httptest.ResponseRecorder {
			w, _ := doJSON(t, h, http.MethodPost, "/api/shells",
				map[string]any{"command": []string{"sleep", "1"}, "cwd": "../../../escape"}, nil)
			return w
		}, http.StatusForbidden, "sandbox_violation"},
		{"not found", func() *httptest.ResponseRecorder {
			w, _ := doJSON(t, h, http.MethodGet, "/api/shells/fs_0_missing", nil, nil)
			return w
		}, http.StatusNotFound, "not_found"},
		{"launch failed", func() *httptest.ResponseRecorder {
			w, _ := doJSON(t, h, http.MethodPost, "/api/shells",
				map[string]any{"command": []string{"/no/such/binary"}}, nil)
			return w
		}, http.StatusInternalServerError, "launch_failed"},
	}
	for _, tc := range cases {
		w := tc.run()
		if w.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d (%s)", tc.name, w.Code, tc.want, w.Body.String())
		}
		var out map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s: decode: %v", tc.name, err)
		}
		if out["ok"] != false {
			t.Fatalf("%s: ok = %v", tc.name, out["ok"])
		}
		if e := out["error"].(map[string]any); e["kind"] != tc.kind {
			t.Fatalf("%s: kind = %v, want %s", tc.name, e["kind"], tc.kind)
		}
	}
}

func TestCapacityMapsToConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, err := manager.New(manager.Config{
		BaseDir:     t.TempDir(),
		SandboxRoot: t.TempDir(),
		MaxShells:   1,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	t.Cleanup(m.Close)
	h := NewRouter(m, "/api", "").Handler()

	spawnSleep(t, h)
	w, _ := doJSON(t, h, http.MethodPost, "/api/shells",
		map[string]any{"command": []string{"sleep", "30"}}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestAuthKeyGatesMutations(t *testing.T) {
	_, h := newTestRouter(t, "sesame")

	// Reads stay open.
	w, _ := doJSON(t, h, http.MethodGet, "/api/shells", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unauthenticated list status = %d", w.Code)
	}

	w, _ = doJSON(t, h, http.MethodPost, "/api/shells",
		map[string]any{"command": []string{"sleep", "1"}}, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("unauthenticated spawn status = %d, want 403", w.Code)
	}

	hdr := map[string]string{AuthHeader: "sesame"}
	w, out := doJSON(t, h, http.MethodPost, "/api/shells",
		map[string]any{"command": []string{"sleep", "30"}}, hdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("authenticated spawn status = %d", w.Code)
	}
	id := out["shell"].(map[string]any)["id"].(string)
	w, _ = doJSON(t, h, http.MethodDelete,
		fmt.Sprintf("/api/shells/%s?force=true", id), nil, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("authenticated remove status = %d", w.Code)
	}
}

func TestStatsAndRunRoutes(t *testing.T) {
	rt, h := newTestRouter(t, "")

	w, out := doJSON(t, h, http.MethodGet, "/api/stats", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d", w.Code)
	}
	stats := out["stats"].(map[string]any)
	if stats["run_id"] != rt.mgr.RunID() {
		t.Fatalf("stats run_id = %v", stats["run_id"])
	}

	w, out = doJSON(t, h, http.MethodGet, "/api/run", nil, nil)
	if w.Code != http.StatusOK || out["run_id"] != rt.mgr.RunID() {
		t.Fatalf("run route: status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestGetWithLogs(t *testing.T) {
	_, h := newTestRouter(t, "")
	w, out := doJSON(t, h, http.MethodPost, "/api/shells",
		map[string]any{"command": []string{"sh", "-c", "echo visible-line; sleep 30"}}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("spawn status = %d", w.Code)
	}
	id := out["shell"].(map[string]any)["id"].(string)

	deadline := time.Now().Add(5 * time.Second)
	for {
		w, out = doJSON(t, h, http.MethodGet, "/api/shells/"+id+"?logs=true&tail_lines=5", nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("get status = %d", w.Code)
		}
		logs, ok := out["shell"].(map[string]any)["logs"].(map[string]any)
		if ok && logs["stdout_tail"] == "visible-line" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("stdout tail never showed the line: %s", w.Body.String())
		}
		time.Sleep(50 * time.Millisecond)
	}
}
