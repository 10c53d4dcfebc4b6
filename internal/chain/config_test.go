package chain

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadChainDefinitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	content := `chains:
  sepolia:
    type: evm
    rpc_url: https://rpc.sepolia.example
    contract_address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
    description: testnet delegation contract
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	defs, err := LoadChainDefinitions(path)
	if err != nil {
		t.Fatalf("load definitions: %v", err)
	}
	def, ok := defs.Chains["sepolia"]
	if !ok {
		t.Fatalf("sepolia definition missing: %+v", defs)
	}
	if def.Type != "evm" || def.ContractAddress == "" {
		t.Fatalf("unexpected definition: %+v", def)
	}
}

func TestLoadChainDefinitionsEmptyPath(t *testing.T) {
	defs, err := LoadChainDefinitions("  ")
	if err != nil {
		t.Fatalf("empty path must not fail: %v", err)
	}
	if defs.Chains == nil {
		t.Fatalf("expected empty map, got nil")
	}
}

func TestLoadChainDefinitionsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	if err := os.WriteFile(path, []byte("chains: ["), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadChainDefinitions(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
