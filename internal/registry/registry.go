package registry

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/chainkeep/chainkeep/internal/entity"
	"github.com/chainkeep/chainkeep/internal/ledger"
	"github.com/chainkeep/chainkeep/internal/storage"
)

// Registry is the single writer over every entity chain. It owns the creation
// protocol that hands a parent's latest hash to a new child, serializes
// mutations per chain, and persists each mutated chain before the mutation
// returns.
type Registry struct {
	mu      sync.RWMutex
	orgs    map[string]*entity.Entity
	groups  map[string]*entity.Entity
	members map[string]*entity.Entity
	locks   map[string]*sync.Mutex

	store      *storage.Store
	difficulty int
	miners     chan struct{}
	logger     hclog.Logger
}

// New builds a registry with one mining difficulty applied to all chains it
// creates. workers bounds the number of concurrently mining goroutines.
func New(store *storage.Store, difficulty, workers int, logger hclog.Logger) *Registry {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Registry{
		orgs:       make(map[string]*entity.Entity),
		groups:     make(map[string]*entity.Entity),
		members:    make(map[string]*entity.Entity),
		locks:      make(map[string]*sync.Mutex),
		store:      store,
		difficulty: difficulty,
		miners:     make(chan struct{}, workers),
		logger:     logger.Named("registry"),
	}
}

// Load rebuilds every chain from the store. No mining happens; blocks come
// back exactly as they were sealed.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	levels := []struct {
		bucket []byte
		kind   entity.Kind
		target map[string]*entity.Entity
	}{
		{storage.OrganizationsBucket, entity.KindOrganization, r.orgs},
		{storage.GroupsBucket, entity.KindGroup, r.groups},
		{storage.MembersBucket, entity.KindMember, r.members},
	}

	for _, level := range levels {
		docs, err := r.store.LoadLevel(level.bucket)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", level.bucket, err)
		}
		for _, doc := range docs {
			chain := &ledger.Chain{Blocks: doc.Chain, Difficulty: doc.Difficulty}
			level.target[doc.ID] = entity.Rehydrate(level.kind, doc.ID, doc.DisplayName, doc.ParentID, doc.ParentLink, chain)
		}
	}

	r.logger.Info("registry loaded",
		"organizations", len(r.orgs), "groups", len(r.groups), "members", len(r.members))

	if err := r.store.SetMetadata("difficulty", strconv.Itoa(r.difficulty)); err != nil {
		return fmt.Errorf("failed to record difficulty: %w", err)
	}
	return nil
}

func (r *Registry) Difficulty() int {
	return r.difficulty
}

// Counts returns the number of chains per level.
func (r *Registry) Counts() (orgs, groups, members int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orgs), len(r.groups), len(r.members)
}

func (r *Registry) level(kind entity.Kind) (map[string]*entity.Entity, []byte) {
	switch kind {
	case entity.KindOrganization:
		return r.orgs, storage.OrganizationsBucket
	case entity.KindGroup:
		return r.groups, storage.GroupsBucket
	default:
		return r.members, storage.MembersBucket
	}
}

func (r *Registry) lookup(kind entity.Kind, id string) (*entity.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	level, _ := r.level(kind)
	e, ok := level[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return e, nil
}

// lockFor returns the mutex serializing mutations of one entity id.
func (r *Registry) lockFor(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[id] = lock
	}
	return lock
}

// View runs fn with the entity's chain lock held, so readers never observe a
// half-appended chain.
func (r *Registry) View(kind entity.Kind, id string, fn func(*entity.Entity) error) error {
	e, err := r.lookup(kind, id)
	if err != nil {
		return err
	}

	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return fn(e)
}

// persist writes one entity's document. It must be called with the entity's
// chain lock held so the write is the last step of the mutation's critical
// section.
func (r *Registry) persist(e *entity.Entity) error {
	_, bucket := r.level(e.Kind)
	doc := &storage.Document{
		ID:          e.ID,
		DisplayName: e.Name,
		ParentID:    e.ParentID,
		ParentLink:  e.ParentLink,
		Difficulty:  e.Chain.Difficulty,
		Chain:       e.Chain.Blocks,
	}
	if err := r.store.SaveDocument(bucket, doc); err != nil {
		return fmt.Errorf("failed to persist %s %s: %w", e.Kind, e.ID, err)
	}
	return nil
}

// mine serializes CPU-bound work through the bounded miner pool.
func (r *Registry) mine(level string, fn func() error) error {
	r.miners <- struct{}{}
	defer func() { <-r.miners }()

	start := nowFunc()
	err := fn()
	if err == nil {
		observeMining(level, start)
	}
	return err
}

// latestHash captures a parent's latest committed hash under the parent's
// chain lock. This is the only cross-chain read in the system.
func (r *Registry) latestHash(parent *entity.Entity) string {
	lock := r.lockFor(parent.ID)
	lock.Lock()
	defer lock.Unlock()
	latest := parent.Chain.Latest()
	if latest == nil {
		return ""
	}
	return latest.Hash
}

// Info is a read-model snapshot of one entity chain.
type Info struct {
	ID          string                 `json:"id"`
	DisplayName string                 `json:"display_name"`
	Kind        string                 `json:"kind"`
	ParentID    string                 `json:"parent_id,omitempty"`
	ParentLink  string                 `json:"parent_link_hash,omitempty"`
	ChainLength int                    `json:"chain_length"`
	LatestHash  string                 `json:"latest_hash"`
	State       map[string]interface{} `json:"state"`
}

func (r *Registry) info(e *entity.Entity) (*Info, error) {
	state, err := e.CurrentState()
	if err != nil {
		return nil, err
	}
	info := &Info{
		ID:          e.ID,
		DisplayName: e.Name,
		Kind:        string(e.Kind),
		ParentID:    e.ParentID,
		ParentLink:  e.ParentLink,
		ChainLength: e.Chain.Length(),
		State:       state,
	}
	// A tampered document can come back with no blocks at all; the read model
	// must survive that so validation gets to report it.
	if latest := e.Chain.Latest(); latest != nil {
		info.LatestHash = latest.Hash
	}
	return info, nil
}

// Get returns a snapshot of one entity.
func (r *Registry) Get(kind entity.Kind, id string) (*Info, error) {
	var info *Info
	err := r.View(kind, id, func(e *entity.Entity) error {
		var err error
		info, err = r.info(e)
		return err
	})
	return info, err
}

// List returns snapshots of every entity of one level, ordered by id.
func (r *Registry) List(kind entity.Kind) ([]*Info, error) {
	r.mu.RLock()
	level, _ := r.level(kind)
	ids := make([]string, 0, len(level))
	for id := range level {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)

	infos := make([]*Info, 0, len(ids))
	for _, id := range ids {
		info, err := r.Get(kind, id)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// ListByParent returns snapshots of every child chain bound to the given
// parent id. The parent must exist.
func (r *Registry) ListByParent(kind entity.Kind, parentID string) ([]*Info, error) {
	parentKind := entity.KindOrganization
	if kind == entity.KindMember {
		parentKind = entity.KindGroup
	}
	if _, err := r.lookup(parentKind, parentID); err != nil {
		return nil, err
	}

	all, err := r.List(kind)
	if err != nil {
		return nil, err
	}

	infos := make([]*Info, 0)
	for _, info := range all {
		if info.ParentID == parentID {
			infos = append(infos, info)
		}
	}
	return infos, nil
}
