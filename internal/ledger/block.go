package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RootMarker is the prev_hash of a root chain's genesis block.
const RootMarker = "0"

// Transaction is a single payload entry inside a block. Data is kept as raw
// JSON so the bytes that were hashed are the bytes that get persisted and
// reloaded.
type Transaction struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// NewTransaction marshals data and stamps the entry with the current time.
func NewTransaction(txType string, data interface{}) (Transaction, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to marshal transaction data: %w", err)
	}
	return Transaction{
		Type:      txType,
		Data:      raw,
		Timestamp: Now(),
	}, nil
}

// Now returns the timestamp format used throughout the ledger.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Block is one immutable unit of a chain.
type Block struct {
	Index        uint64        `json:"index"`
	Timestamp    string        `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
	PrevHash     string        `json:"prev_hash"`
	Nonce        uint64        `json:"nonce"`
	Hash         string        `json:"hash"`
}

// NewBlock constructs an unmined block. The caller is expected to Mine it
// before the block becomes part of a chain.
func NewBlock(index uint64, transactions []Transaction, prevHash string) *Block {
	return &Block{
		Index:        index,
		Timestamp:    Now(),
		Transactions: transactions,
		PrevHash:     prevHash,
	}
}

// ComputeHash hashes index ++ prev_hash ++ timestamp ++ transactions ++ nonce.
func (b *Block) ComputeHash() string {
	txData, _ := json.Marshal(b.Transactions)
	input := fmt.Sprintf("%d%s%s%s%d", b.Index, b.PrevHash, b.Timestamp, txData, b.Nonce)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Mine increments the nonce until the hash meets the difficulty target.
// Callers must keep difficulty in a sane range (<= 6); there is no bound on
// attempts.
func (b *Block) Mine(difficulty int) {
	target := strings.Repeat("0", difficulty)
	b.Hash = b.ComputeHash()
	for !strings.HasPrefix(b.Hash, target) {
		b.Nonce++
		b.Hash = b.ComputeHash()
	}
}

// IsValid recomputes the hash from the block's current fields and compares it
// against the stored hash.
func (b *Block) IsValid() bool {
	return b.Hash == b.ComputeHash()
}

// MeetsDifficulty reports whether the stored hash satisfies the proof-of-work
// target.
func (b *Block) MeetsDifficulty(difficulty int) bool {
	return strings.HasPrefix(b.Hash, strings.Repeat("0", difficulty))
}
