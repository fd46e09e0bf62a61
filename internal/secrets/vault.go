// Package secrets fetches provider credentials from a secrets manager.
// The vault CLI is invoked as an opaque process; its JSON output is the
// only contract consumed here.
package secrets

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hysun/tfbot/internal/toolexec"
)

// Store supplies credential key/value pairs for a pipeline run.
type Store interface {
	Fetch(path string) (map[string]string, error)
}

// VaultCLI reads kv-v2 secrets through the vault binary. Address and
// token come from the standard VAULT_ADDR / VAULT_TOKEN environment the
// service is deployed with.
type VaultCLI struct {
	runner toolexec.Runner
	binary string
}

// NewVaultCLI creates a vault-backed store.
func NewVaultCLI() *VaultCLI {
	return NewVaultCLIWith(&toolexec.RealRunner{}, "vault")
}

// NewVaultCLIWith creates a store with a custom runner and binary.
func NewVaultCLIWith(runner toolexec.Runner, binary string) *VaultCLI {
	if binary == "" {
		binary = "vault"
	}
	return &VaultCLI{runner: runner, binary: binary}
}

// Fetch reads every key under a kv-v2 path.
func (v *VaultCLI) Fetch(path string) (map[string]string, error) {
	out, err := v.runner.Run(v.binary, "kv", "get", "-format=json", path)
	if err != nil {
		return nil, fmt.Errorf("vault kv get %s failed: %w\nOutput: %s", path, err, string(out))
	}

	var payload struct {
		Data struct {
			Data map[string]string `json:"data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse vault output for %s: %w", path, err)
	}
	if payload.Data.Data == nil {
		return nil, fmt.Errorf("no secret data at %s", path)
	}

	return payload.Data.Data, nil
}

// NopStore satisfies Store when no secrets path is configured.
type NopStore struct{}

// Fetch returns an empty credential set.
func (NopStore) Fetch(string) (map[string]string, error) {
	return map[string]string{}, nil
}

// EnvVars converts a credential map into KEY=VALUE pairs in stable order.
func EnvVars(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}
