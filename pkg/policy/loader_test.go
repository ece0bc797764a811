package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestLoader() *Loader {
	return NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func loadOne(t *testing.T, loader *Loader, path string) Policy {
	t.Helper()
	policies, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("Expected 1 policy, got %d", len(policies))
	}
	return policies[0]
}

func TestLoadFromFile_Rego(t *testing.T) {
	loader := newTestLoader()

	policyFile := filepath.Join(t.TempDir(), "test-policy.rego")
	regoContent := `# Blocks transfers to a known sink
package test.policy

import rego.v1

deny contains "sink" if {
	input.destination == "11111111111111111111111111111111"
}`
	writeFile(t, policyFile, regoContent)

	policy := loadOne(t, loader, policyFile)

	if policy.Name != "test-policy" {
		t.Errorf("Expected name 'test-policy', got '%s'", policy.Name)
	}
	if policy.Rego != regoContent {
		t.Error("Rego content doesn't match")
	}
	if policy.Description != "Blocks transfers to a known sink" {
		t.Errorf("Unexpected description %q", policy.Description)
	}
	if !policy.Enabled {
		t.Error("Policy should be enabled by default")
	}
	if policy.Severity != SeverityWarning {
		t.Errorf("Expected warning severity, got %s", policy.Severity)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := newTestLoader()

	policyFile := filepath.Join(t.TempDir(), "test-policy.json")
	writeFile(t, policyFile, `{
		"name": "json-policy",
		"description": "from json",
		"rego": "package json.policy\n",
		"severity": "error",
		"enabled": true
	}`)

	policy := loadOne(t, loader, policyFile)
	if policy.Name != "json-policy" || policy.Severity != SeverityError {
		t.Errorf("Unexpected policy %+v", policy)
	}
	if policy.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt default")
	}
	if policy.Metadata["source"] != policyFile {
		t.Errorf("Expected source metadata, got %v", policy.Metadata)
	}
}

func TestLoadFromFile_JSONEnabledDefault(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    []bool
	}{
		{"absent", `{"name": "p", "rego": "package p\n"}`, []bool{true}},
		{"explicit false", `{"name": "p", "rego": "package p\n", "enabled": false}`, []bool{false}},
		{"bundle", `{"name": "ops", "policies": [
			{"name": "a", "rego": "package a\n"},
			{"name": "b", "rego": "package b\n", "enabled": false}
		]}`, []bool{true, false}},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, fmt.Sprintf("p%d.json", i))
			writeFile(t, path, tt.content)

			policies, err := loader.LoadFromPaths(context.Background(), []string{path})
			if err != nil {
				t.Fatalf("Failed to load: %v", err)
			}
			if len(policies) != len(tt.want) {
				t.Fatalf("Expected %d policies, got %d", len(tt.want), len(policies))
			}
			for j, want := range tt.want {
				if policies[j].Enabled != want {
					t.Errorf("%s: enabled = %v, want %v", policies[j].Name, policies[j].Enabled, want)
				}
			}
		})
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unsupported type", "policy.txt", "hello"},
		{"invalid json", "bad.json", "{"},
		{"json without name", "anon.json", `{"rego": "package x"}`},
		{"bundle entry without name", "bundle.json", `{"name": "ops", "policies": [{"rego": "package x"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			writeFile(t, path, tt.content)
			if _, err := loader.LoadFromPaths(context.Background(), []string{path}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadFromDirectory_Recursive(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "a.rego"), "package a\n")
	writeFile(t, filepath.Join(dir, "nested", "b.rego"), "package b\n")
	writeFile(t, filepath.Join(dir, "nested", "notes.md"), "ignored")
	writeFile(t, filepath.Join(dir, "broken.json"), "{")

	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	// broken.json is skipped with a warning.
	if len(policies) != 2 {
		t.Errorf("Expected 2 policies, got %d", len(policies))
	}
}

func TestLoadFromPath_NonExistent(t *testing.T) {
	loader := newTestLoader()

	_, err := loader.LoadFromPaths(context.Background(), []string{"/nonexistent/policies"})
	if err == nil {
		t.Error("Expected error for missing path")
	}
}

func TestLoadBundle(t *testing.T) {
	loader := newTestLoader()
	path := filepath.Join(t.TempDir(), "bundle.json")
	writeFile(t, path, `{
		"name": "ops",
		"version": "1.0.0",
		"policies": [
			{"name": "one", "rego": "package one\n", "enabled": true},
			{"name": "two", "rego": "package two\n", "enabled": true, "severity": "critical"}
		]
	}`)

	policies, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Failed to load bundle: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(policies))
	}
	if policies[0].Severity != SeverityWarning || policies[1].Severity != SeverityCritical {
		t.Errorf("Unexpected severities %s, %s", policies[0].Severity, policies[1].Severity)
	}
	for _, p := range policies {
		if p.Metadata["bundle"] != "ops" || p.Metadata["bundle_version"] != "1.0.0" {
			t.Errorf("Expected bundle metadata on %s, got %v", p.Name, p.Metadata)
		}
	}
}

func TestLoadCachesUnchangedFiles(t *testing.T) {
	loader := newTestLoader()
	path := filepath.Join(t.TempDir(), "p.rego")
	writeFile(t, path, "package first\n")

	first := loadOne(t, loader, path)
	if first.Rego != "package first\n" {
		t.Fatalf("Unexpected content %q", first.Rego)
	}
	if _, ok := loader.cache[path]; !ok {
		t.Fatal("Expected the parsed file to be cached")
	}

	writeFile(t, path, "package second, longer\n")
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("Failed to touch file: %v", err)
	}

	fresh := loadOne(t, loader, path)
	if fresh.Rego != "package second, longer\n" {
		t.Errorf("Expected fresh content after the file changed, got %q", fresh.Rego)
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.rego"), "package a\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan int, 4)
	err := loader.Watch(ctx, []string{dir}, func(policies []Policy) error {
		reloaded <- len(policies)
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to watch: %v", err)
	}

	writeFile(t, filepath.Join(dir, "b.rego"), "package b\n")

	select {
	case n := <-reloaded:
		if n != 2 {
			t.Errorf("Expected 2 policies after reload, got %d", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}
