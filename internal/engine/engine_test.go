package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"veritrace/internal/db"
	"veritrace/internal/domain"
	"veritrace/internal/migrate"
	"veritrace/internal/repo"
)

func newTestEngine(t *testing.T) Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := New(conn, nil)
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	tick := 0
	e.Now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return e
}

func seedApprovedRequirement(t *testing.T, e Engine, projectID string) domain.Requirement {
	t.Helper()
	q, err := e.CreateRequirement(context.Background(), RequirementCreateOptions{
		ProjectID:          projectID,
		Title:              "Audit trail capture",
		Description:        "The system shall record all data modifications in an audit trail.",
		AcceptanceCriteria: "Every record change is captured with user and timestamp.",
		GxPImpact:          true,
		ActorID:            "author",
	})
	if err != nil {
		t.Fatalf("create requirement: %v", err)
	}
	q, err = e.ApproveRequirement(context.Background(), q.ID, "qa")
	if err != nil {
		t.Fatalf("approve requirement: %v", err)
	}
	return q
}

func seedApprovedSpec(t *testing.T, e Engine, requirementID string) domain.FunctionalSpec {
	t.Helper()
	fs, err := e.CreateFunctionalSpec(context.Background(), SpecCreateOptions{
		RequirementID: requirementID,
		Title:         "Audit trail module",
		Description:   "Capture inserts, updates and deletes.",
		Approach:      "Database triggers write to a dedicated table.",
		ActorID:       "author",
	})
	if err != nil {
		t.Fatalf("create spec: %v", err)
	}
	fs, err = e.ApproveFunctionalSpec(context.Background(), fs.ID, "qa")
	if err != nil {
		t.Fatalf("approve spec: %v", err)
	}
	return fs
}

func TestProjectAndRequirementLifecycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	p, err := e.CreateProject(ctx, "", "LIMS Upgrade", "GxP", "Lab system replacement", "lead")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if p.ID == "" || p.Status != "active" {
		t.Fatalf("unexpected project %+v", p)
	}
	cfg, err := e.Repo.GetProjectConfig(ctx, p.ID)
	if err != nil {
		t.Fatalf("project config: %v", err)
	}
	if cfg.Project.Name != "LIMS Upgrade" {
		t.Fatalf("config not seeded from project: %+v", cfg.Project)
	}

	q, err := e.CreateRequirement(ctx, RequirementCreateOptions{
		ProjectID:   p.ID,
		Title:       "Electronic signatures",
		Description: "The system shall require electronic signature on batch record approval.",
		GxPImpact:   true,
		ActorID:     "author",
	})
	if err != nil {
		t.Fatalf("create requirement: %v", err)
	}
	if q.Status != domain.ReqDraft || q.Version != "1.0" {
		t.Fatalf("unexpected requirement %+v", q)
	}
	if q.OverallRisk == "" {
		t.Fatal("risk not derived at creation")
	}
	if q.AmbiguityScore == nil {
		t.Fatal("ambiguity not derived at creation")
	}

	if _, err := e.ApproveRequirement(ctx, q.ID, "author"); err == nil {
		t.Fatal("author self-approval accepted")
	}
	approved, err := e.ApproveRequirement(ctx, q.ID, "qa")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.ReqApproved || approved.ApprovedBy == nil || *approved.ApprovedBy != "qa" {
		t.Fatalf("unexpected approval %+v", approved)
	}
	if _, err := e.SetRequirementStatus(ctx, q.ID, domain.ReqDraft, "qa"); err == nil {
		t.Fatal("Approved -> Draft accepted")
	}
	if _, err := e.SetRequirementStatus(ctx, q.ID, domain.ReqObsolete, "qa"); err != nil {
		t.Fatalf("obsolete: %v", err)
	}
}

func TestSpecRequiresApprovedRequirement(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	p, err := e.CreateProject(ctx, "", "MES", "", "", "lead")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	q, err := e.CreateRequirement(ctx, RequirementCreateOptions{
		ProjectID: p.ID,
		Title:     "Recipe management",
		ActorID:   "author",
	})
	if err != nil {
		t.Fatalf("create requirement: %v", err)
	}
	_, err = e.CreateFunctionalSpec(ctx, SpecCreateOptions{
		RequirementID: q.ID,
		Title:         "Recipe editor",
		ActorID:       "author",
	})
	if err == nil || !strings.Contains(err.Error(), "must be Approved") {
		t.Fatalf("expected approval gate, got %v", err)
	}
}

func TestTestCaseInheritsRequirementLink(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	p, _ := e.CreateProject(ctx, "", "LIMS", "", "", "lead")
	q := seedApprovedRequirement(t, e, p.ID)
	fs := seedApprovedSpec(t, e, q.ID)

	tc, err := e.CreateTestCase(ctx, TestCaseCreateOptions{
		FunctionalSpecID: fs.ID,
		Title:            "Verify audit entry on update",
		Steps:            "1. Update a record\n2. Open the audit view",
		ExpectedResult:   "Entry lists user, timestamp and change",
		ActorID:          "tester",
	})
	if err != nil {
		t.Fatalf("create test case: %v", err)
	}
	if tc.RequirementID != q.ID || tc.ProjectID != p.ID {
		t.Fatalf("links not inherited: %+v", tc)
	}
	if tc.TestType != "Functional" || tc.Priority != "Medium" {
		t.Fatalf("defaults not applied: %+v", tc)
	}
	if _, err := e.CreateTestCase(ctx, TestCaseCreateOptions{
		FunctionalSpecID: fs.ID,
		Title:            "Bad type",
		TestType:         "Smoke",
		ActorID:          "tester",
	}); err == nil {
		t.Fatal("unknown test type accepted")
	}
}

func TestExecutionCyclesIncrement(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	p, _ := e.CreateProject(ctx, "", "LIMS", "", "", "lead")
	q := seedApprovedRequirement(t, e, p.ID)
	fs := seedApprovedSpec(t, e, q.ID)
	tc, err := e.CreateTestCase(ctx, TestCaseCreateOptions{FunctionalSpecID: fs.ID, Title: "Run", ActorID: "tester"})
	if err != nil {
		t.Fatalf("create test case: %v", err)
	}

	first, err := e.RecordExecution(ctx, ExecutionRecordOptions{TestCaseID: tc.ID, Result: domain.ResultFail, ActualResult: "No entry written", ActorID: "tester"})
	if err != nil {
		t.Fatalf("record execution: %v", err)
	}
	second, err := e.RecordExecution(ctx, ExecutionRecordOptions{TestCaseID: tc.ID, Result: domain.ResultPass, ActorID: "tester"})
	if err != nil {
		t.Fatalf("record execution: %v", err)
	}
	if first.Cycle != 1 || second.Cycle != 2 {
		t.Fatalf("cycles %d, %d", first.Cycle, second.Cycle)
	}
	if _, err := e.RecordExecution(ctx, ExecutionRecordOptions{TestCaseID: tc.ID, Result: "Skipped", ActorID: "tester"}); err == nil {
		t.Fatal("unknown result accepted")
	}
}

func TestDeviationWorkflow(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	p, _ := e.CreateProject(ctx, "", "LIMS", "", "", "lead")
	q := seedApprovedRequirement(t, e, p.ID)
	fs := seedApprovedSpec(t, e, q.ID)
	tc, _ := e.CreateTestCase(ctx, TestCaseCreateOptions{FunctionalSpecID: fs.ID, Title: "Run", ActorID: "tester"})

	passed, _ := e.RecordExecution(ctx, ExecutionRecordOptions{TestCaseID: tc.ID, Result: domain.ResultPass, ActorID: "tester"})
	if _, err := e.CreateDeviation(ctx, DeviationCreateOptions{
		TestExecutionID: passed.ID, Title: "Spurious", ActorID: "tester",
	}); err == nil {
		t.Fatal("deviation opened against a passing execution")
	}

	failed, _ := e.RecordExecution(ctx, ExecutionRecordOptions{TestCaseID: tc.ID, Result: domain.ResultFail, ActualResult: "Calculation off by 10x", ActorID: "tester"})
	d, err := e.CreateDeviation(ctx, DeviationCreateOptions{
		TestExecutionID: failed.ID,
		Severity:        domain.RiskHigh,
		Title:           "Wrong potency result",
		Description:     "Calculated potency differs from manual calculation.",
		ActorID:         "tester",
	})
	if err != nil {
		t.Fatalf("create deviation: %v", err)
	}
	if d.Status != domain.DevOpen {
		t.Fatalf("status %s", d.Status)
	}
	ex, err := e.Repo.GetExecution(ctx, failed.ID)
	if err != nil {
		t.Fatalf("get execution: %v", err)
	}
	if ex.DeviationID == nil || *ex.DeviationID != d.ID {
		t.Fatal("execution not linked to deviation")
	}

	if _, err := e.CloseDeviation(ctx, d.ID, "qa"); err == nil {
		t.Fatal("Open -> Closed accepted")
	}
	d, err = e.InvestigateDeviation(ctx, d.ID, "Formula used wrong dilution factor", "Process", "qa")
	if err != nil {
		t.Fatalf("investigate: %v", err)
	}
	d, err = e.AssignCAPA(ctx, d.ID, "Correct the formula", "Add formula review to release checklist", "dev-1", "qa")
	if err != nil {
		t.Fatalf("assign capa: %v", err)
	}
	if d.AssignedTo == nil || *d.AssignedTo != "dev-1" {
		t.Fatalf("assignee missing: %+v", d)
	}
	d, err = e.VerifyCAPA(ctx, d.ID, "qa")
	if err != nil {
		t.Fatalf("verify capa: %v", err)
	}
	d, err = e.CloseDeviation(ctx, d.ID, "qa")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if d.Status != domain.DevClosed || d.ClosedBy == nil || *d.ClosedBy != "qa" {
		t.Fatalf("unexpected closed deviation %+v", d)
	}
}

func TestChangeRequestImpact(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	p, _ := e.CreateProject(ctx, "", "LIMS", "", "", "lead")
	q := seedApprovedRequirement(t, e, p.ID)
	fs := seedApprovedSpec(t, e, q.ID)
	tc, _ := e.CreateTestCase(ctx, TestCaseCreateOptions{FunctionalSpecID: fs.ID, Title: "Run", ActorID: "tester"})

	c, err := e.CreateChangeRequest(ctx, ChangeCreateOptions{
		ProjectID:     p.ID,
		Title:         "Extend audit retention",
		Description:   "Extend the audit trail retention period to ten years.",
		Justification: "Regulatory request",
		ActorID:       "lead",
	})
	if err != nil {
		t.Fatalf("create change: %v", err)
	}
	if c.Status != domain.ChangeRequested {
		t.Fatalf("status %s", c.Status)
	}

	if _, err := e.ApproveChange(ctx, c.ID, "qa"); err == nil {
		t.Fatal("approval accepted before impact analysis")
	}

	c, impact, err := e.AnalyzeChange(ctx, c.ID, "qa")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if c.Status != domain.ChangeImpactAnalysis {
		t.Fatalf("status %s", c.Status)
	}
	if len(impact.AffectedRequirements) != 1 || impact.AffectedRequirements[0] != q.ID {
		t.Fatalf("affected requirements %v", impact.AffectedRequirements)
	}
	if len(impact.AffectedTestCases) != 1 || impact.AffectedTestCases[0] != tc.ID {
		t.Fatalf("affected test cases %v", impact.AffectedTestCases)
	}
	if !c.RevalidationRequired || c.RiskLevel != domain.RiskMedium {
		t.Fatalf("revalidation=%v risk=%s", c.RevalidationRequired, c.RiskLevel)
	}

	if _, err := e.ApproveChange(ctx, c.ID, "lead"); err == nil {
		t.Fatal("requester self-approval accepted")
	}
	c, err = e.ApproveChange(ctx, c.ID, "qa")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	c, err = e.SetChangeStatus(ctx, c.ID, domain.ChangeImplementing, "lead")
	if err != nil {
		t.Fatalf("implementing: %v", err)
	}
	c, err = e.SetChangeStatus(ctx, c.ID, domain.ChangeCompleted, "lead")
	if err != nil {
		t.Fatalf("completed: %v", err)
	}
	if _, err := e.SetChangeStatus(ctx, c.ID, domain.ChangeRejected, "lead"); err == nil {
		t.Fatal("Completed -> Rejected accepted")
	}
}

func TestAuditTrailRecordsMutations(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	p, _ := e.CreateProject(ctx, "", "LIMS", "", "", "lead")
	q := seedApprovedRequirement(t, e, p.ID)

	entries, err := e.Repo.ListAudit(ctx, repo.AuditFilters{ProjectID: p.ID})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	actions := map[string]bool{}
	for _, entry := range entries {
		actions[entry.Action] = true
	}
	for _, want := range []string{"project.created", "requirement.created", "requirement.approved"} {
		if !actions[want] {
			t.Fatalf("missing audit action %s in %v", want, entries)
		}
	}
	byEntity, err := e.Repo.ListAudit(ctx, repo.AuditFilters{EntityID: q.ID})
	if err != nil {
		t.Fatalf("list audit by entity: %v", err)
	}
	if len(byEntity) != 2 {
		t.Fatalf("expected 2 entries for requirement, got %d", len(byEntity))
	}
	// Newest first.
	if byEntity[0].Action != "requirement.approved" {
		t.Fatalf("order: %s first", byEntity[0].Action)
	}
}

func TestDeterministicIDs(t *testing.T) {
	e := newTestEngine(t)
	if e.newID("p1", "title", "2025-03-10T09:00:00Z") != e.newID("p1", "title", "2025-03-10T09:00:00Z") {
		t.Fatal("same seed produced different ids")
	}
	if e.newID("p1", "title", "a") == e.newID("p1", "title", "b") {
		t.Fatal("different seeds collided")
	}
}
