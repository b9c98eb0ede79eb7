package validate

// Status tracks how far a chain got through validation before the verdict.
type Status string

const (
	StatusUnchecked         Status = "unchecked"
	StatusChainChecked      Status = "chain_checked"
	StatusParentLinkChecked Status = "parent_link_checked"
	StatusValid             Status = "valid"
	StatusInvalid           Status = "invalid"
)

// Report is the structured verdict for one entity chain.
type Report struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	ParentID string `json:"parent_id,omitempty"`
	Status   Status `json:"status"`

	GenesisValid   bool `json:"genesis_valid"`
	ChainIntegrity bool `json:"chain_integrity"`
	ProofOfWork    bool `json:"proof_of_work"`
	ParentLink     bool `json:"parent_link"`

	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func newReport(kind, id string) *Report {
	return &Report{
		ID:       id,
		Kind:     kind,
		Status:   StatusUnchecked,
		Errors:   []string{},
		Warnings: []string{},
	}
}

func (r *Report) fail(reason string) {
	r.Errors = append(r.Errors, reason)
}

func (r *Report) warn(reason string) {
	r.Warnings = append(r.Warnings, reason)
}

// finalize settles the verdict: valid only when every detail flag passed and
// no errors accumulated.
func (r *Report) finalize() *Report {
	r.Valid = r.GenesisValid && r.ChainIntegrity && r.ProofOfWork && r.ParentLink && len(r.Errors) == 0
	if r.Valid {
		r.Status = StatusValid
	} else {
		r.Status = StatusInvalid
	}
	return r
}

// LevelSummary aggregates one hierarchy level inside a system report.
type LevelSummary struct {
	Total      int      `json:"total"`
	Valid      int      `json:"valid"`
	Invalid    int      `json:"invalid"`
	FailingIDs []string `json:"failing_ids"`
}

func (s *LevelSummary) add(r *Report) {
	s.Total++
	if r.Valid {
		s.Valid++
	} else {
		s.Invalid++
		s.FailingIDs = append(s.FailingIDs, r.ID)
	}
}

// SystemReport is the verdict over every chain in the registry. The system is
// valid only when every individual chain is.
type SystemReport struct {
	Valid         bool         `json:"valid"`
	Organizations LevelSummary `json:"organizations"`
	Groups        LevelSummary `json:"groups"`
	Members       LevelSummary `json:"members"`
	Reports       []*Report    `json:"reports"`
}
