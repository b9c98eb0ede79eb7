package validate

import (
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/chainkeep/chainkeep/internal/alert"
	"github.com/chainkeep/chainkeep/internal/entity"
	"github.com/chainkeep/chainkeep/internal/ledger"
	"github.com/chainkeep/chainkeep/internal/registry"
)

// Service proves or disproves integrity across the hierarchy. It never
// mutates a chain: a detected integrity failure is diagnostic output, not
// something to repair.
type Service struct {
	registry *registry.Registry
	alerts   *alert.Manager
	logger   hclog.Logger
}

func New(reg *registry.Registry, logger hclog.Logger) *Service {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Service{
		registry: reg,
		logger:   logger.Named("validate"),
	}
}

func (s *Service) SetAlertManager(am *alert.Manager) {
	s.alerts = am
}

// ValidateOrganization checks a root chain: non-empty, genesis bound to the
// root marker, every block hashed, linked, and sealed at the chain's own
// difficulty.
func (s *Service) ValidateOrganization(id string) (*Report, error) {
	rep, err := s.validateOrganization(id)
	if err != nil {
		return nil, err
	}
	s.maybeAlert(rep)
	return rep, nil
}

// ValidateGroup checks a group chain and cascades: an internally consistent
// group is still invalid when its organization chain is not.
func (s *Service) ValidateGroup(id string) (*Report, error) {
	rep, err := s.validateGroup(id)
	if err != nil {
		return nil, err
	}
	s.maybeAlert(rep)
	return rep, nil
}

// ValidateMember checks a leaf chain, cascading through its group and
// organization.
func (s *Service) ValidateMember(id string) (*Report, error) {
	rep, err := s.validateMember(id)
	if err != nil {
		return nil, err
	}
	s.maybeAlert(rep)
	return rep, nil
}

// ValidateSystem walks every chain at every level. System validity is the
// conjunction of all individual verdicts.
func (s *Service) ValidateSystem() (*SystemReport, error) {
	system := &SystemReport{Reports: []*Report{}}

	type level struct {
		kind     entity.Kind
		summary  *LevelSummary
		validate func(string) (*Report, error)
	}
	levels := []level{
		{entity.KindOrganization, &system.Organizations, s.validateOrganization},
		{entity.KindGroup, &system.Groups, s.validateGroup},
		{entity.KindMember, &system.Members, s.validateMember},
	}

	for _, l := range levels {
		infos, err := s.registry.List(l.kind)
		if err != nil {
			return nil, fmt.Errorf("failed to list %ss: %w", l.kind, err)
		}
		for _, info := range infos {
			rep, err := l.validate(info.ID)
			if err != nil {
				return nil, err
			}
			l.summary.add(rep)
			system.Reports = append(system.Reports, rep)
		}
	}

	system.Valid = system.Organizations.Invalid == 0 &&
		system.Groups.Invalid == 0 &&
		system.Members.Invalid == 0

	if !system.Valid && s.alerts != nil {
		total := system.Organizations.Invalid + system.Groups.Invalid + system.Members.Invalid
		_ = s.alerts.SendSystemAlert("ledger validation failed",
			fmt.Sprintf("%d chain(s) failed integrity validation", total), "danger")
	}

	s.logger.Info("system validation finished", "valid", system.Valid,
		"organizations", system.Organizations.Total,
		"groups", system.Groups.Total,
		"members", system.Members.Total)

	return system, nil
}

func (s *Service) validateOrganization(id string) (*Report, error) {
	rep := newReport(string(entity.KindOrganization), id)

	err := s.registry.View(entity.KindOrganization, id, func(e *entity.Entity) error {
		s.checkChain(e, rep)
		s.checkGenesisBinding(e, rep)
		rep.Status = StatusParentLinkChecked
		return nil
	})
	if err != nil {
		return nil, err
	}

	return rep.finalize(), nil
}

func (s *Service) validateGroup(id string) (*Report, error) {
	rep := newReport(string(entity.KindGroup), id)

	err := s.registry.View(entity.KindGroup, id, func(e *entity.Entity) error {
		s.checkChain(e, rep)
		s.checkGenesisBinding(e, rep)
		rep.ParentID = e.ParentID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cascade(rep, entity.KindOrganization, rep.ParentID, s.validateOrganization)
	rep.Status = StatusParentLinkChecked
	return rep.finalize(), nil
}

func (s *Service) validateMember(id string) (*Report, error) {
	rep := newReport(string(entity.KindMember), id)

	err := s.registry.View(entity.KindMember, id, func(e *entity.Entity) error {
		s.checkChain(e, rep)
		s.checkGenesisBinding(e, rep)
		rep.ParentID = e.ParentID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cascade(rep, entity.KindGroup, rep.ParentID, s.validateGroup)
	rep.Status = StatusParentLinkChecked
	return rep.finalize(), nil
}

// checkChain recomputes every block hash, checks predecessor links, and
// checks proof-of-work against the chain's own stored difficulty.
func (s *Service) checkChain(e *entity.Entity, rep *Report) {
	chain := e.Chain

	if chain.Length() == 0 {
		rep.fail("chain is empty")
		return
	}

	rep.ChainIntegrity = true
	rep.ProofOfWork = true

	for i, block := range chain.Blocks {
		if block.Index != uint64(i) {
			rep.ChainIntegrity = false
			rep.fail(fmt.Sprintf("block %d carries index %d", i, block.Index))
		}
		if !block.IsValid() {
			rep.ChainIntegrity = false
			rep.fail(fmt.Sprintf("block %d: stored hash does not match recomputed hash", block.Index))
		}
		if !block.MeetsDifficulty(chain.Difficulty) {
			rep.ProofOfWork = false
			rep.fail(fmt.Sprintf("block %d: hash does not meet difficulty %d", block.Index, chain.Difficulty))
		}
		if i > 0 && block.PrevHash != chain.Blocks[i-1].Hash {
			rep.ChainIntegrity = false
			rep.fail(fmt.Sprintf("block %d: prev_hash does not match predecessor", block.Index))
		}
	}

	rep.Status = StatusChainChecked
}

// checkGenesisBinding checks the immutable binding the genesis block records:
// the root marker for organizations, the captured parent hash otherwise.
func (s *Service) checkGenesisBinding(e *entity.Entity, rep *Report) {
	genesis := e.Chain.Genesis()
	if genesis == nil {
		return
	}

	if e.Kind == entity.KindOrganization {
		rep.GenesisValid = genesis.PrevHash == ledger.RootMarker
		rep.ParentLink = true
		if !rep.GenesisValid {
			rep.fail(fmt.Sprintf("genesis prev_hash is %q, want root marker %q", genesis.PrevHash, ledger.RootMarker))
		}
		return
	}

	rep.GenesisValid = genesis.PrevHash == e.ParentLink
	rep.ParentLink = rep.GenesisValid
	if !rep.GenesisValid {
		rep.fail("genesis prev_hash does not match recorded parent link")
	}
}

// cascade folds the parent's verdict into the child's: a child cannot be
// valid on top of an invalid ancestor. A parent that has merely grown since
// the child's creation yields a warning, never an error.
func (s *Service) cascade(rep *Report, parentKind entity.Kind, parentID string, validateParent func(string) (*Report, error)) {
	var currentParentHash string
	err := s.registry.View(parentKind, parentID, func(p *entity.Entity) error {
		if latest := p.Chain.Latest(); latest != nil {
			currentParentHash = latest.Hash
		}
		return nil
	})
	if err != nil {
		rep.ParentLink = false
		rep.fail(fmt.Sprintf("parent %s %s not found", parentKind, parentID))
		return
	}

	parentRep, err := validateParent(parentID)
	if err != nil {
		rep.fail(fmt.Sprintf("failed to validate parent %s %s", parentKind, parentID))
		return
	}
	if !parentRep.Valid {
		rep.fail(fmt.Sprintf("parent chain invalid: %s %s", parentKind, parentID))
	}

	// Growth since creation is informational only.
	grown := false
	_ = s.registry.View(entity.Kind(rep.Kind), rep.ID, func(e *entity.Entity) error {
		grown = e.ParentGrownSince(currentParentHash)
		return nil
	})
	if grown {
		rep.warn(fmt.Sprintf("parent %s %s has grown since this chain was created", parentKind, parentID))
	}
}

func (s *Service) maybeAlert(rep *Report) {
	if rep.Valid || s.alerts == nil {
		return
	}
	if !rep.ParentLink {
		_ = s.alerts.SendParentLinkAlert(rep.Kind, rep.ID, rep.ParentID, "genesis parent binding failed validation")
	}
	_ = s.alerts.SendChainBrokenAlert(rep.Kind, rep.ID, rep.Errors)
	s.logger.Warn("chain failed validation", "kind", rep.Kind, "id", rep.ID, "errors", len(rep.Errors))
}
