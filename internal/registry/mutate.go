package registry

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/chainkeep/chainkeep/internal/entity"
)

// CreateOrganization mines a new root chain. A blank id gets a generated
// UUID; a duplicate id is a conflict.
func (r *Registry) CreateOrganization(id, name string, fields map[string]interface{}) (*Info, error) {
	return r.create(entity.KindOrganization, id, name, "", fields)
}

// CreateGroup mines a new chain whose genesis binds to the organization's
// latest hash at this moment.
func (r *Registry) CreateGroup(id, name, organizationID string, fields map[string]interface{}) (*Info, error) {
	return r.create(entity.KindGroup, id, name, organizationID, fields)
}

// CreateMember mines a new leaf chain bound to its group's latest hash.
func (r *Registry) CreateMember(id, name, groupID string, fields map[string]interface{}) (*Info, error) {
	return r.create(entity.KindMember, id, name, groupID, fields)
}

func (r *Registry) create(kind entity.Kind, id, name, parentID string, fields map[string]interface{}) (*Info, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if name == "" {
		return nil, fmt.Errorf("%w: display name is required", ErrInput)
	}

	level, _ := r.level(kind)
	r.mu.RLock()
	_, exists := level[id]
	r.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("%w: %s %s already exists", ErrConflict, kind, id)
	}

	// Resolve the parent and capture its latest committed hash. The binding
	// is a snapshot; the parent growing afterward does not touch this child.
	var parentLink string
	if kind != entity.KindOrganization {
		parentKind := entity.KindOrganization
		if kind == entity.KindMember {
			parentKind = entity.KindGroup
		}
		parent, err := r.lookup(parentKind, parentID)
		if err != nil {
			return nil, err
		}
		parentLink = r.latestHash(parent)
	}

	var e *entity.Entity
	err := r.mine(string(kind), func() error {
		var err error
		e, err = entity.New(kind, id, name, parentID, parentLink, fields, r.difficulty)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, exists := level[id]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s %s already exists", ErrConflict, kind, id)
	}
	level[id] = e
	r.mu.Unlock()

	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	if err := r.persist(e); err != nil {
		return nil, err
	}

	entitiesCreated.WithLabelValues(string(kind)).Inc()
	r.logger.Info("chain created", "kind", kind, "id", id, "genesis", e.Chain.Genesis().Hash)
	return r.info(e)
}

// mutateChain runs fn under the entity's chain lock and the miner pool, then
// persists the chain as the last step of the critical section.
func (r *Registry) mutateChain(kind entity.Kind, id string, fn func(*entity.Entity) error) error {
	e, err := r.lookup(kind, id)
	if err != nil {
		return err
	}

	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if err := r.mine(string(kind), func() error { return fn(e) }); err != nil {
		return translate(err)
	}
	return r.persist(e)
}

// translate maps entity-level rejections onto the registry error taxonomy.
func translate(err error) error {
	switch {
	case errors.Is(err, entity.ErrDuplicateDate):
		return fmt.Errorf("%w: %s", ErrConflict, err)
	case errors.Is(err, entity.ErrEmptyPatch),
		errors.Is(err, entity.ErrReservedField),
		errors.Is(err, entity.ErrInvalidEntry),
		errors.Is(err, entity.ErrNotMember):
		return fmt.Errorf("%w: %s", ErrInput, err)
	}
	return err
}

// UpdateOrganization appends a field patch block to the organization chain.
func (r *Registry) UpdateOrganization(id string, patch map[string]interface{}) error {
	return r.mutateChain(entity.KindOrganization, id, func(e *entity.Entity) error {
		return e.AppendUpdate(patch)
	})
}

func (r *Registry) UpdateGroup(id string, patch map[string]interface{}) error {
	return r.mutateChain(entity.KindGroup, id, func(e *entity.Entity) error {
		return e.AppendUpdate(patch)
	})
}

func (r *Registry) UpdateMember(id string, patch map[string]interface{}) error {
	return r.mutateChain(entity.KindMember, id, func(e *entity.Entity) error {
		return e.AppendUpdate(patch)
	})
}

// DeleteOrganization appends a soft-delete block. The chain stays.
func (r *Registry) DeleteOrganization(id string) error {
	return r.mutateChain(entity.KindOrganization, id, func(e *entity.Entity) error {
		return e.AppendDelete()
	})
}

func (r *Registry) DeleteGroup(id string) error {
	return r.mutateChain(entity.KindGroup, id, func(e *entity.Entity) error {
		return e.AppendDelete()
	})
}

func (r *Registry) DeleteMember(id string) error {
	return r.mutateChain(entity.KindMember, id, func(e *entity.Entity) error {
		return e.AppendDelete()
	})
}

// AppendAttendance mines one attendance block onto a member chain.
func (r *Registry) AppendAttendance(memberID string, e entity.AttendanceEntry) error {
	return r.mutateChain(entity.KindMember, memberID, func(m *entity.Entity) error {
		return m.AppendAttendance(e)
	})
}

// AttendanceByDate returns the member's record for one logical date.
func (r *Registry) AttendanceByDate(memberID, date string) (*entity.AttendanceRecord, error) {
	var record *entity.AttendanceRecord
	err := r.View(entity.KindMember, memberID, func(m *entity.Entity) error {
		var err error
		record, err = m.AttendanceByDate(date)
		return err
	})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: no attendance for %s on %s", ErrNotFound, memberID, date)
	}
	return record, nil
}

// AttendanceHistory returns the member's full record history in chain order.
func (r *Registry) AttendanceHistory(memberID string) ([]entity.AttendanceRecord, error) {
	var records []entity.AttendanceRecord
	err := r.View(entity.KindMember, memberID, func(m *entity.Entity) error {
		var err error
		records, err = m.Attendance()
		return err
	})
	return records, err
}

// AttendanceStats aggregates the member's history per status.
func (r *Registry) AttendanceStats(memberID string) (*entity.AttendanceStats, error) {
	var stats *entity.AttendanceStats
	err := r.View(entity.KindMember, memberID, func(m *entity.Entity) error {
		var err error
		stats, err = m.AttendanceSummary()
		return err
	})
	return stats, err
}
