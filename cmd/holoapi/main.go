// Command holoapi is the conductor's admin/JSON-RPC HTTP surface: it
// loads a conductor config naming one or more DNAs, runs each as its own
// core.Instance, and exposes zome calls and admin operations over HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"holonet/core"
	"holonet/pkg/config"
)

// conductor holds the running instances this process serves, keyed by
// their configured handle.
type conductor struct {
	instances map[string]*core.Instance
	log       *zap.Logger
}

func main() {
	cfgPath := flag.String("config", "", "path to the conductor YAML config")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		log = zap.NewNop()
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	cond, err := newConductor(cfg, log)
	if err != nil {
		log.Fatal("start conductor", zap.Error(err))
	}

	addr := cfg.API.Addr
	if addr == "" {
		addr = ":8080"
	}
	log.Info("holoapi listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, cond.router()); err != nil {
		log.Fatal("serve", zap.Error(err))
	}
}

func newConductor(cfg *config.Config, log *zap.Logger) (*conductor, error) {
	c := &conductor{instances: make(map[string]*core.Instance), log: log}
	for _, entry := range cfg.Instances {
		raw, err := os.ReadFile(entry.DnaPath)
		if err != nil {
			return nil, fmt.Errorf("instance %s: read dna: %w", entry.Handle, err)
		}
		var dna core.DNA
		if err := json.Unmarshal(raw, &dna); err != nil {
			return nil, fmt.Errorf("instance %s: parse dna: %w", entry.Handle, err)
		}
		ks, err := core.NewInMemoryKeystore()
		if err != nil {
			return nil, fmt.Errorf("instance %s: keystore: %w", entry.Handle, err)
		}
		inst, err := core.NewInstance(&dna, ks, core.InstanceConfig{
			NodeID:     cfg.Network.NodeID,
			StorageDir: entry.StorageDir,
			Log:        log,
		})
		if err != nil {
			return nil, fmt.Errorf("instance %s: new: %w", entry.Handle, err)
		}
		if err := inst.Genesis(context.Background()); err != nil {
			return nil, fmt.Errorf("instance %s: genesis: %w", entry.Handle, err)
		}
		c.instances[entry.Handle] = inst
	}
	return c, nil
}

func (c *conductor) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", c.handleHealth)
	r.Route("/instances/{handle}", func(r chi.Router) {
		r.Post("/call", c.handleCall)
	})
	return r
}

func (c *conductor) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "instances": len(c.instances)})
}

func (c *conductor) handleCall(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	inst, ok := c.instances[handle]
	if !ok {
		http.Error(w, "unknown instance", http.StatusNotFound)
		return
	}

	var call core.ZomeFnCall
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	out, err := inst.Call(r.Context(), call)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}
