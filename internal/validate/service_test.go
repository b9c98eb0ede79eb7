package validate

import (
	"io"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/chainkeep/chainkeep/internal/alert"
	"github.com/chainkeep/chainkeep/internal/entity"
	"github.com/chainkeep/chainkeep/internal/registry"
	"github.com/chainkeep/chainkeep/internal/storage"
)

type mockHTTPClient struct {
	bodies []string
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	body, _ := io.ReadAll(req.Body)
	m.bodies = append(m.bodies, string(body))
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
}

func newTestService(t *testing.T, difficulty int) (*Service, *registry.Registry) {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "chainkeep-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	tmpfile.Close()
	t.Cleanup(func() { os.Remove(tmpfile.Name()) })

	store, err := storage.New(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reg := registry.New(store, difficulty, 2, nil)
	if err := reg.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return New(reg, nil), reg
}

func seedHierarchy(t *testing.T, reg *registry.Registry) {
	t.Helper()
	if _, err := reg.CreateOrganization("dept-1", "Engineering", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.CreateGroup("class-1", "Class 1", "dept-1", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.CreateMember("student-1", "Ada", "class-1", nil); err != nil {
		t.Fatal(err)
	}
}

func corruptGenesisPayload(t *testing.T, reg *registry.Registry, kind entity.Kind, id string) {
	t.Helper()
	err := reg.View(kind, id, func(e *entity.Entity) error {
		e.Chain.Genesis().Transactions[0].Data = []byte(`{"forged":true}`)
		return nil
	})
	if err != nil {
		t.Fatalf("corrupt failed: %v", err)
	}
}

func TestValidateOrganization(t *testing.T) {
	svc, reg := newTestService(t, 1)
	seedHierarchy(t, reg)

	rep, err := svc.ValidateOrganization("dept-1")
	if err != nil {
		t.Fatalf("ValidateOrganization failed: %v", err)
	}

	if !rep.Valid {
		t.Errorf("Expected valid report, got errors: %v", rep.Errors)
	}
	if rep.Status != StatusValid {
		t.Errorf("Expected status valid, got %s", rep.Status)
	}
	if !rep.GenesisValid || !rep.ChainIntegrity || !rep.ProofOfWork || !rep.ParentLink {
		t.Errorf("Expected all detail flags set: %+v", rep)
	}
}

func TestValidateMissingChain(t *testing.T) {
	svc, _ := newTestService(t, 1)

	if _, err := svc.ValidateOrganization("nope"); err == nil {
		t.Error("Expected error for missing chain")
	}
}

func TestValidateDetectsTampering(t *testing.T) {
	svc, reg := newTestService(t, 1)
	seedHierarchy(t, reg)

	corruptGenesisPayload(t, reg, entity.KindOrganization, "dept-1")

	rep, err := svc.ValidateOrganization("dept-1")
	if err != nil {
		t.Fatalf("ValidateOrganization failed: %v", err)
	}

	if rep.Valid {
		t.Error("Tampered chain should be invalid")
	}
	if rep.ChainIntegrity {
		t.Error("ChainIntegrity flag should be false")
	}
	if rep.Status != StatusInvalid {
		t.Errorf("Expected status invalid, got %s", rep.Status)
	}
	if len(rep.Errors) == 0 {
		t.Error("Expected error reasons")
	}
}

func TestCascadingInvalidation(t *testing.T) {
	svc, reg := newTestService(t, 1)
	seedHierarchy(t, reg)

	// Corrupt the organization only; the group's own chain stays consistent.
	corruptGenesisPayload(t, reg, entity.KindOrganization, "dept-1")

	err := reg.View(entity.KindGroup, "class-1", func(e *entity.Entity) error {
		return e.Chain.Verify()
	})
	if err != nil {
		t.Fatalf("Group chain should still verify on its own: %v", err)
	}

	rep, err := svc.ValidateGroup("class-1")
	if err != nil {
		t.Fatalf("ValidateGroup failed: %v", err)
	}

	if rep.Valid {
		t.Error("Group must be invalid when its parent chain is invalid")
	}
	if !rep.ChainIntegrity {
		t.Error("Group's own chain integrity should still pass")
	}

	found := false
	for _, reason := range rep.Errors {
		if strings.Contains(reason, "parent chain invalid") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a parent-referencing reason, got %v", rep.Errors)
	}

	// The member cascades through two levels.
	memberRep, err := svc.ValidateMember("student-1")
	if err != nil {
		t.Fatalf("ValidateMember failed: %v", err)
	}
	if memberRep.Valid {
		t.Error("Member must be invalid when an ancestor chain is invalid")
	}
}

func TestParentGrowthIsWarningNotError(t *testing.T) {
	svc, reg := newTestService(t, 1)
	seedHierarchy(t, reg)

	if err := reg.UpdateOrganization("dept-1", map[string]interface{}{"head": "alice"}); err != nil {
		t.Fatalf("UpdateOrganization failed: %v", err)
	}

	rep, err := svc.ValidateGroup("class-1")
	if err != nil {
		t.Fatalf("ValidateGroup failed: %v", err)
	}

	if !rep.Valid {
		t.Errorf("Parent growth must not invalidate the child: %v", rep.Errors)
	}
	if len(rep.Warnings) == 0 {
		t.Error("Expected a parent-growth warning")
	}
}

func TestValidateSystem(t *testing.T) {
	svc, reg := newTestService(t, 1)
	seedHierarchy(t, reg)

	system, err := svc.ValidateSystem()
	if err != nil {
		t.Fatalf("ValidateSystem failed: %v", err)
	}

	if !system.Valid {
		t.Error("Untouched system should be valid")
	}
	if system.Organizations.Total != 1 || system.Groups.Total != 1 || system.Members.Total != 1 {
		t.Errorf("Expected 1/1/1 chains, got %d/%d/%d",
			system.Organizations.Total, system.Groups.Total, system.Members.Total)
	}

	corruptGenesisPayload(t, reg, entity.KindOrganization, "dept-1")

	system, err = svc.ValidateSystem()
	if err != nil {
		t.Fatalf("ValidateSystem failed: %v", err)
	}

	if system.Valid {
		t.Error("System with a tampered chain should be invalid")
	}
	if system.Organizations.Invalid != 1 {
		t.Errorf("Expected 1 invalid organization, got %d", system.Organizations.Invalid)
	}
	if len(system.Organizations.FailingIDs) != 1 || system.Organizations.FailingIDs[0] != "dept-1" {
		t.Errorf("Expected dept-1 in failing ids, got %v", system.Organizations.FailingIDs)
	}
	// The cascade drags the whole lineage down.
	if system.Groups.Invalid != 1 || system.Members.Invalid != 1 {
		t.Errorf("Expected cascade to groups and members, got %d/%d",
			system.Groups.Invalid, system.Members.Invalid)
	}
}

func TestValidateSystemReportsEmptyChain(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "chainkeep-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	tmpfile.Close()
	defer os.Remove(tmpfile.Name())

	store, err := storage.New(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	// A document tampered down to zero blocks must surface as an invalid
	// chain, not crash the system walk.
	doc := &storage.Document{ID: "dept-1", DisplayName: "Engineering", Difficulty: 1}
	if err := store.SaveDocument(storage.OrganizationsBucket, doc); err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}

	reg := registry.New(store, 1, 2, nil)
	if err := reg.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	svc := New(reg, nil)

	system, err := svc.ValidateSystem()
	if err != nil {
		t.Fatalf("ValidateSystem failed: %v", err)
	}

	if system.Valid {
		t.Error("System with an empty chain should be invalid")
	}
	if system.Organizations.Invalid != 1 {
		t.Errorf("Expected 1 invalid organization, got %d", system.Organizations.Invalid)
	}

	rep, err := svc.ValidateOrganization("dept-1")
	if err != nil {
		t.Fatalf("ValidateOrganization failed: %v", err)
	}
	found := false
	for _, reason := range rep.Errors {
		if strings.Contains(reason, "chain is empty") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected an empty-chain reason, got %v", rep.Errors)
	}
}

func TestParentLinkAlertNamesParent(t *testing.T) {
	svc, reg := newTestService(t, 1)
	seedHierarchy(t, reg)

	mock := &mockHTTPClient{}
	svc.SetAlertManager(alert.NewManagerWithClient(true, "https://hooks.slack.com/test", mock))

	// Forge the group's genesis parent pointer; the recorded binding no
	// longer holds.
	err := reg.View(entity.KindGroup, "class-1", func(e *entity.Entity) error {
		e.Chain.Genesis().PrevHash = "forged"
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}

	rep, err := svc.ValidateGroup("class-1")
	if err != nil {
		t.Fatalf("ValidateGroup failed: %v", err)
	}

	if rep.Valid {
		t.Error("Group with forged genesis binding should be invalid")
	}
	if rep.ParentID != "dept-1" {
		t.Errorf("Report should carry the parent id, got %q", rep.ParentID)
	}

	if len(mock.bodies) == 0 {
		t.Fatal("Expected alerts to be sent")
	}
	if !strings.Contains(strings.Join(mock.bodies, "\n"), "dept-1") {
		t.Error("Parent link alert should name the parent chain")
	}
}

func TestEndToEndScenario(t *testing.T) {
	svc, reg := newTestService(t, 2)

	org, err := reg.CreateOrganization("dept-1", "Engineering", nil)
	if err != nil {
		t.Fatalf("CreateOrganization failed: %v", err)
	}
	if !strings.HasPrefix(org.LatestHash, "00") {
		t.Errorf("Expected difficulty-2 hash, got %s", org.LatestHash)
	}

	group, err := reg.CreateGroup("class-1", "Class 1", "dept-1", nil)
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if group.ParentLink != org.LatestHash {
		t.Error("Group genesis should bind to dept-1's genesis hash")
	}

	if _, err := reg.CreateMember("student-1", "Ada", "class-1", nil); err != nil {
		t.Fatalf("CreateMember failed: %v", err)
	}

	entry := entity.AttendanceEntry{Date: "2024-11-16", Status: entity.AttendancePresent}
	if err := reg.AppendAttendance("student-1", entry); err != nil {
		t.Fatalf("AppendAttendance failed: %v", err)
	}

	member, err := reg.Get(entity.KindMember, "student-1")
	if err != nil {
		t.Fatal(err)
	}
	if member.ChainLength != 2 {
		t.Errorf("Expected leaf chain length 2, got %d", member.ChainLength)
	}

	record, err := reg.AttendanceByDate("student-1", "2024-11-16")
	if err != nil {
		t.Fatalf("AttendanceByDate failed: %v", err)
	}
	if record.Status != entity.AttendancePresent {
		t.Errorf("Expected Present, got %s", record.Status)
	}

	if err := reg.AppendAttendance("student-1", entry); err == nil {
		t.Error("Second append for the same date should be rejected")
	}

	rep, err := svc.ValidateMember("student-1")
	if err != nil {
		t.Fatalf("ValidateMember failed: %v", err)
	}
	if !rep.Valid {
		t.Errorf("Expected valid member with cascading checks, got %v", rep.Errors)
	}
	if !rep.GenesisValid || !rep.ChainIntegrity || !rep.ProofOfWork || !rep.ParentLink {
		t.Errorf("Expected all cascading parent checks true: %+v", rep)
	}
}
