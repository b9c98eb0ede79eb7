package ledger

import (
	"testing"
)

func testTransaction(t *testing.T, txType string, data interface{}) Transaction {
	t.Helper()
	tx, err := NewTransaction(txType, data)
	if err != nil {
		t.Fatalf("NewTransaction failed: %v", err)
	}
	return tx
}

func TestPushGenesis(t *testing.T) {
	chain := NewChain(1)

	tx := testTransaction(t, "organization", map[string]interface{}{"id": "org-1"})
	genesis, err := chain.PushGenesis([]Transaction{tx}, RootMarker)
	if err != nil {
		t.Fatalf("PushGenesis failed: %v", err)
	}

	if genesis.Index != 0 {
		t.Errorf("Expected genesis index 0, got %d", genesis.Index)
	}
	if genesis.PrevHash != RootMarker {
		t.Errorf("Expected genesis prev_hash %q, got %q", RootMarker, genesis.PrevHash)
	}

	if _, err := chain.PushGenesis([]Transaction{tx}, RootMarker); err == nil {
		t.Error("Second PushGenesis should fail")
	}
}

func TestAppendLinksBlocks(t *testing.T) {
	chain := NewChain(1)

	if _, err := chain.Append(nil); err == nil {
		t.Error("Append before genesis should fail")
	}

	tx := testTransaction(t, "organization", map[string]interface{}{"id": "org-1"})
	if _, err := chain.PushGenesis([]Transaction{tx}, RootMarker); err != nil {
		t.Fatalf("PushGenesis failed: %v", err)
	}

	update := testTransaction(t, "update", map[string]interface{}{"name": "renamed"})
	block, err := chain.Append([]Transaction{update})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if block.Index != 1 {
		t.Errorf("Expected index 1, got %d", block.Index)
	}
	if block.PrevHash != chain.Genesis().Hash {
		t.Error("Appended block should link to genesis hash")
	}
	if chain.Latest() != block {
		t.Error("Latest should return the appended block")
	}
}

func TestVerify(t *testing.T) {
	chain := NewChain(2)

	tx := testTransaction(t, "organization", map[string]interface{}{"id": "org-1"})
	if _, err := chain.PushGenesis([]Transaction{tx}, RootMarker); err != nil {
		t.Fatalf("PushGenesis failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		update := testTransaction(t, "update", map[string]interface{}{"seq": i})
		if _, err := chain.Append([]Transaction{update}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	if err := chain.Verify(); err != nil {
		t.Errorf("Verify should pass on untouched chain: %v", err)
	}
}

func TestVerifyEmptyChain(t *testing.T) {
	chain := NewChain(1)

	err := chain.Verify()
	if err == nil {
		t.Fatal("Verify should fail on empty chain")
	}
	if ie := AsIntegrityError(err); ie == nil {
		t.Errorf("Expected IntegrityError, got %T", err)
	}
}

func TestVerifyDetectsTamperedPayload(t *testing.T) {
	chain := NewChain(1)

	tx := testTransaction(t, "organization", map[string]interface{}{"id": "org-1"})
	if _, err := chain.PushGenesis([]Transaction{tx}, RootMarker); err != nil {
		t.Fatalf("PushGenesis failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		update := testTransaction(t, "update", map[string]interface{}{"seq": i})
		if _, err := chain.Append([]Transaction{update}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	// Mutate block 1's payload in place without remining.
	chain.Blocks[1].Transactions[0].Data = []byte(`{"seq":99}`)

	err := chain.Verify()
	if err == nil {
		t.Fatal("Verify should fail after tampering")
	}

	ie := AsIntegrityError(err)
	if ie == nil {
		t.Fatalf("Expected IntegrityError, got %T", err)
	}
	if ie.Index != 1 {
		t.Errorf("Expected failure at block 1, got %d", ie.Index)
	}
}

func TestVerifyDetectsBrokenLink(t *testing.T) {
	chain := NewChain(1)

	tx := testTransaction(t, "organization", map[string]interface{}{"id": "org-1"})
	if _, err := chain.PushGenesis([]Transaction{tx}, RootMarker); err != nil {
		t.Fatalf("PushGenesis failed: %v", err)
	}
	update := testTransaction(t, "update", map[string]interface{}{"seq": 1})
	if _, err := chain.Append([]Transaction{update}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// Re-mine block 1 against a forged predecessor hash. The block itself is
	// internally valid but the link is broken.
	chain.Blocks[1].PrevHash = "forged"
	chain.Blocks[1].Mine(chain.Difficulty)

	err := chain.Verify()
	if err == nil {
		t.Fatal("Verify should fail on broken link")
	}
	ie := AsIntegrityError(err)
	if ie == nil || ie.Index != 1 {
		t.Errorf("Expected link failure at block 1, got %v", err)
	}
}

func TestVerifyDetectsWrongDifficulty(t *testing.T) {
	chain := NewChain(0)

	tx := testTransaction(t, "organization", map[string]interface{}{"id": "org-1"})
	if _, err := chain.PushGenesis([]Transaction{tx}, RootMarker); err != nil {
		t.Fatalf("PushGenesis failed: %v", err)
	}

	// Raise the target after mining; existing blocks will not meet it unless
	// they happened to by chance, so retry construction until one misses.
	chain.Difficulty = 4
	if chain.Genesis().MeetsDifficulty(4) {
		t.Skip("genesis met raised difficulty by chance")
	}

	err := chain.Verify()
	if err == nil {
		t.Fatal("Verify should fail against raised difficulty")
	}
}
