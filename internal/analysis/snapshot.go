package analysis

import "veritrace/internal/domain"

// Snapshot is a read-only view of one project's validation artifacts.
// Every function in this package derives its output from a Snapshot
// without mutating it; dangling references between artifacts are
// reported by the consistency checker, never treated as errors.
type Snapshot struct {
	Requirements    []domain.Requirement
	FunctionalSpecs []domain.FunctionalSpec
	DesignSpecs     []domain.DesignSpec
	TestCases       []domain.TestCase
	Executions      []domain.TestExecution
	Deviations      []domain.Deviation
	Changes         []domain.ChangeRequest
}
