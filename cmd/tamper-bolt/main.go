package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/chainkeep/chainkeep/internal/storage"
)

func bucketFor(name string) ([]byte, error) {
	switch name {
	case "organizations":
		return storage.OrganizationsBucket, nil
	case "groups":
		return storage.GroupsBucket, nil
	case "members":
		return storage.MembersBucket, nil
	}
	return nil, fmt.Errorf("unknown bucket %q (want organizations, groups, or members)", name)
}

func main() {
	if len(os.Args) != 4 {
		fmt.Fprintf(os.Stderr, "Usage: %s <bolt-path> <bucket> <entity-id>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Corrupts the genesis block payload of the given chain so that\n")
		fmt.Fprintf(os.Stderr, "'chainkeep validate' demonstrably detects the tampering.\n")
		fmt.Fprintf(os.Stderr, "Buckets: organizations, groups, members\n")
		os.Exit(1)
	}

	dbPath := os.Args[1]
	entityID := os.Args[3]

	bucket, err := bucketFor(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Opening bolt database: %s\n", dbPath)
	fmt.Printf("Target: %s/%s\n", bucket, entityID)

	store, err := storage.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	doc, err := store.GetDocument(bucket, entityID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(doc.Chain) == 0 || len(doc.Chain[0].Transactions) == 0 {
		fmt.Fprintln(os.Stderr, "Error: chain has no genesis payload to corrupt")
		os.Exit(1)
	}

	fmt.Printf("Found chain with %d blocks\n", len(doc.Chain))
	fmt.Printf("  Genesis hash: %s...\n", doc.Chain[0].Hash[:16])

	// Replace the genesis payload without remining. The stored hash no longer
	// matches the block contents.
	doc.Chain[0].Transactions[0].Data = json.RawMessage(`{"forged":true}`)

	if err := store.SaveDocument(bucket, doc); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save corrupted document: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Successfully corrupted genesis payload")
	fmt.Println("Tampering completed; run 'chainkeep validate' to see it detected")
}
