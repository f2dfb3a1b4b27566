package main

import (
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"holonet/core"
)

func writeFile(t *testing.T, dir, name string, contents []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, contents, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestLoadDNAParsesManifest(t *testing.T) {
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
	path := writeFile(t, t.TempDir(), "dna.json", raw)

	loaded, err := loadDNA(path)
	if err != nil {
		t.Fatalf("load dna: %v", err)
	}
	if loaded.Name != "chat" {
		t.Fatalf("expected name chat, got %s", loaded.Name)
	}
}

func TestLoadDNAMissingFileReturnsError(t *testing.T) {
	if _, err := loadDNA(filepath.Join(t.TempDir(), "nonexistent.json")); err == nil {
		t.Fatal("expected an error for a missing DNA file")
	}
}

func TestLoadKeystoreEmptyPathGeneratesEphemeralKey(t *testing.T) {
	ks, err := loadKeystore("")
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	if len(ks.PublicKey()) != ed25519.PublicKeySize {
		t.Fatalf("expected a valid ed25519 public key, got %d bytes", len(ks.PublicKey()))
	}
}

func TestLoadKeystoreFromSeedFileIsDeterministic(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	path := writeFile(t, t.TempDir(), "agent.key", seed)

	ks1, err := loadKeystore(path)
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	ks2, err := loadKeystore(path)
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	if string(ks1.PublicKey()) != string(ks2.PublicKey()) {
		t.Fatal("expected loading the same seed file twice to derive the same public key")
	}
}

func TestLoadKeystoreRejectsWrongLengthSeedFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.key", []byte("too short"))
	if _, err := loadKeystore(path); err == nil {
		t.Fatal("expected an error for a malformed seed file")
	}
}

func TestBuildInstanceRequiresDnaFlag(t *testing.T) {
	origDNAPath, origStorageDir, origKeyPath := dnaPath, storageDir, keyPath
	defer func() { dnaPath, storageDir, keyPath = origDNAPath, origStorageDir, origKeyPath }()

	dnaPath, storageDir, keyPath = "", "", ""
	if _, _, err := buildInstance(); err == nil {
		t.Fatal("expected an error when --dna is not set")
	}
}

func TestBuildInstanceSucceedsWithValidDNA(t *testing.T) {
	origDNAPath, origStorageDir, origKeyPath := dnaPath, storageDir, keyPath
	defer func() { dnaPath, storageDir, keyPath = origDNAPath, origStorageDir, origKeyPath }()

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
	dnaPath = writeFile(t, t.TempDir(), "dna.json", raw)
	storageDir = ""
	keyPath = ""

	inst, log, err := buildInstance()
	if err != nil {
		t.Fatalf("build instance: %v", err)
	}
	if inst == nil || log == nil {
		t.Fatal("expected a non-nil instance and logger")
	}
}
