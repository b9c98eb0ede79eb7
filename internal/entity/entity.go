package entity

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chainkeep/chainkeep/internal/ledger"
)

// Kind identifies the hierarchy level an entity chain belongs to. It doubles
// as the transaction type label of the chain's create transaction.
type Kind string

const (
	KindOrganization Kind = "organization"
	KindGroup        Kind = "group"
	KindMember       Kind = "member"
)

// Transaction type labels for appended blocks.
const (
	TxUpdate     = "update"
	TxDelete     = "delete"
	TxAttendance = "attendance"
)

const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

var (
	ErrEmptyPatch    = errors.New("update patch is empty")
	ErrReservedField = errors.New("patch modifies a reserved field")
	ErrNotMember     = errors.New("attendance is only recorded on member chains")
	ErrInvalidEntry  = errors.New("invalid attendance entry")
	ErrDuplicateDate = errors.New("attendance already recorded for date")
)

// Entity wraps one chain with identity and hierarchy binding. ParentLink is
// the parent's latest block hash captured once at creation time; it is empty
// for organizations. Entities are not safe for concurrent mutation; the
// registry serializes writers per entity.
type Entity struct {
	ID         string
	Name       string
	Kind       Kind
	ParentID   string
	ParentLink string
	Chain      *ledger.Chain
}

// New constructs and initializes an entity chain, mining its genesis block.
// For organizations parentID and parentLink must be empty; for groups and
// members parentLink carries the parent chain's latest hash handed over by
// the registry — an entity never looks up its own parent.
func New(kind Kind, id, name, parentID, parentLink string, fields map[string]interface{}, difficulty int) (*Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("entity id is required")
	}
	if name == "" {
		return nil, fmt.Errorf("entity display name is required")
	}

	genesisLink := ledger.RootMarker
	if kind != KindOrganization {
		if parentLink == "" {
			return nil, fmt.Errorf("%s %s requires a parent link hash", kind, id)
		}
		genesisLink = parentLink
	}

	e := &Entity{
		ID:         id,
		Name:       name,
		Kind:       kind,
		ParentID:   parentID,
		ParentLink: parentLink,
		Chain:      ledger.NewChain(difficulty),
	}

	snapshot := make(map[string]interface{}, len(fields)+3)
	for k, v := range fields {
		snapshot[k] = v
	}
	snapshot["id"] = id
	snapshot["display_name"] = name
	snapshot["status"] = StatusActive

	tx, err := ledger.NewTransaction(string(kind), snapshot)
	if err != nil {
		return nil, err
	}
	if _, err := e.Chain.PushGenesis([]ledger.Transaction{tx}, genesisLink); err != nil {
		return nil, fmt.Errorf("failed to initialize %s %s: %w", kind, id, err)
	}

	return e, nil
}

// Rehydrate rebuilds an entity around an already-mined chain loaded from
// storage. No mining happens here.
func Rehydrate(kind Kind, id, name, parentID, parentLink string, chain *ledger.Chain) *Entity {
	return &Entity{
		ID:         id,
		Name:       name,
		Kind:       kind,
		ParentID:   parentID,
		ParentLink: parentLink,
		Chain:      chain,
	}
}

// AppendUpdate mines a block carrying a field patch. The patch is merged over
// the accumulated state during replay.
func (e *Entity) AppendUpdate(patch map[string]interface{}) error {
	if len(patch) == 0 {
		return ErrEmptyPatch
	}
	if _, ok := patch["id"]; ok {
		return fmt.Errorf("%w: id", ErrReservedField)
	}

	tx, err := ledger.NewTransaction(TxUpdate, patch)
	if err != nil {
		return err
	}
	if _, err := e.Chain.Append([]ledger.Transaction{tx}); err != nil {
		return fmt.Errorf("failed to append update to %s: %w", e.ID, err)
	}

	if name, ok := patch["display_name"].(string); ok && name != "" {
		e.Name = name
	}
	return nil
}

// AppendDelete mines a soft-delete block. Deleting an already-deleted entity
// appends another marker and is not an error; replay stays at deleted.
func (e *Entity) AppendDelete() error {
	tx, err := ledger.NewTransaction(TxDelete, map[string]interface{}{"status": StatusDeleted})
	if err != nil {
		return err
	}
	if _, err := e.Chain.Append([]ledger.Transaction{tx}); err != nil {
		return fmt.Errorf("failed to append delete to %s: %w", e.ID, err)
	}
	return nil
}

// CurrentState folds the chain in order: the create snapshot is the base,
// update patches merge over it, and a delete pins status to deleted for good.
// Attendance transactions never touch state.
func (e *Entity) CurrentState() (map[string]interface{}, error) {
	state := make(map[string]interface{})
	deleted := false

	for _, block := range e.Chain.Blocks {
		for _, tx := range block.Transactions {
			switch tx.Type {
			case TxAttendance:
				continue
			case TxDelete:
				deleted = true
			case TxUpdate:
				var patch map[string]interface{}
				if err := json.Unmarshal(tx.Data, &patch); err != nil {
					return nil, fmt.Errorf("corrupt update payload at block %d: %w", block.Index, err)
				}
				for k, v := range patch {
					state[k] = v
				}
			default:
				// Create snapshot.
				var snapshot map[string]interface{}
				if err := json.Unmarshal(tx.Data, &snapshot); err != nil {
					return nil, fmt.Errorf("corrupt create payload at block %d: %w", block.Index, err)
				}
				for k, v := range snapshot {
					state[k] = v
				}
			}
		}
	}

	if deleted {
		state["status"] = StatusDeleted
	}
	return state, nil
}

// Deleted reports whether the replayed state carries the deleted status.
func (e *Entity) Deleted() (bool, error) {
	state, err := e.CurrentState()
	if err != nil {
		return false, err
	}
	return state["status"] == StatusDeleted, nil
}

// ParentLinkIntact checks the immutable binding recorded at creation: the
// genesis prev_hash must equal the stored parent link. Organizations bind to
// the root marker instead.
func (e *Entity) ParentLinkIntact() bool {
	genesis := e.Chain.Genesis()
	if genesis == nil {
		return false
	}
	if e.Kind == KindOrganization {
		return genesis.PrevHash == ledger.RootMarker
	}
	return genesis.PrevHash == e.ParentLink
}

// ParentGrownSince reports whether the parent chain has grown past the hash
// captured at creation. This is informational only; a growing parent never
// invalidates an existing child.
func (e *Entity) ParentGrownSince(currentParentHash string) bool {
	if e.Kind == KindOrganization {
		return false
	}
	return currentParentHash != e.ParentLink
}
