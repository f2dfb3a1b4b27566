package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"holonet/core"
	"holonet/pkg/config"
)

func TestHandleHealthReportsInstanceCount(t *testing.T) {
	c := &conductor{instances: map[string]*core.Instance{"chat": nil}, log: zap.NewNop()}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	c.router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
	if body["instances"].(float64) != 1 {
		t.Fatalf("expected instances=1, got %v", body["instances"])
	}
}

func TestHandleCallUnknownInstanceReturns404(t *testing.T) {
	c := &conductor{instances: map[string]*core.Instance{}, log: zap.NewNop()}
	req := httptest.NewRequest(http.MethodPost, "/instances/nonexistent/call", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	c.router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleCallMalformedBodyReturns400(t *testing.T) {
	ks, err := core.NewInMemoryKeystore()
	if err != nil {
		t.Fatalf("new keystore: %v", err)
	}
	dna := &core.DNA{
		Name: "chat",
		Zomes: map[string]core.ZomeDef{
			"posts": {Code: core.ZomeCode{Code: []byte{0}}},
		},
	}
	inst, err := core.NewInstance(dna, ks, core.InstanceConfig{})
	if err != nil {
		t.Fatalf("new instance: %v", err)
	}
	c := &conductor{instances: map[string]*core.Instance{"chat": inst}, log: zap.NewNop()}

	req := httptest.NewRequest(http.MethodPost, "/instances/chat/call", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()

	c.router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestNewConductorWiresOneInstancePerConfigEntry(t *testing.T) {
	dna := core.DNA{
		Name: "chat",
		Zomes: map[string]core.ZomeDef{
			"posts": {Code: core.ZomeCode{Code: []byte{0}}},
		},
	}
	raw, err := json.Marshal(dna)
	if err != nil {
		t.Fatalf("marshal dna: %v", err)
	}
	dir := t.TempDir()
	dnaPath := filepath.Join(dir, "chat.json")
	if err := os.WriteFile(dnaPath, raw, 0o600); err != nil {
		t.Fatalf("write dna file: %v", err)
	}

	cfg := &config.Config{
		Instances: []config.InstanceEntry{{Handle: "chat", DnaPath: dnaPath}},
	}

	cond, err := newConductor(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new conductor: %v", err)
	}
	if len(cond.instances) != 1 {
		t.Fatalf("expected one wired instance, got %d", len(cond.instances))
	}
	if _, ok := cond.instances["chat"]; !ok {
		t.Fatal("expected the chat handle to be wired")
	}
}

func TestNewConductorErrorsOnMissingDnaFile(t *testing.T) {
	cfg := &config.Config{
		Instances: []config.InstanceEntry{{Handle: "chat", DnaPath: filepath.Join(t.TempDir(), "missing.json")}},
	}
	if _, err := newConductor(cfg, zap.NewNop()); err == nil {
		t.Fatal("expected an error for a missing DNA file")
	}
}
