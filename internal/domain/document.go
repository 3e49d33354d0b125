package domain

// CandidateFile is a local file eligible for upload. Name is the base
// filename and doubles as the remote display name.
type CandidateFile struct {
	Path    string
	RelPath string
	Name    string
}

// Submission pairs a file with the import operation started for it.
type Submission struct {
	File      CandidateFile
	Operation Operation
}

// OutcomeStatus is the terminal state of one document in a run.
type OutcomeStatus string

const (
	StatusSucceeded OutcomeStatus = "succeeded"
	StatusFailed    OutcomeStatus = "failed"
	StatusDuplicate OutcomeStatus = "duplicate"
)

// FailureKind tells where a document failed.
type FailureKind string

const (
	FailureSubmit   FailureKind = "submit"
	FailureImport   FailureKind = "import"
	FailurePoll     FailureKind = "poll"
	FailureTimeout  FailureKind = "timeout"
	FailureCanceled FailureKind = "canceled"
)

// Outcome is the per-document result of a sync run.
type Outcome struct {
	DisplayName   string
	Path          string
	OperationName string
	Status        OutcomeStatus
	Kind          FailureKind
	Reason        string
}

// Failed reports whether the outcome counts as a failure.
func (o Outcome) Failed() bool { return o.Status == StatusFailed }
