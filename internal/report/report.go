// Package report aggregates the outcome of a sync run.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"docqa/internal/domain"
)

// Report summarizes one run against one store.
type Report struct {
	StoreName        string
	StoreDisplayName string
	DryRun           bool

	Existing   int
	Candidates int
	Skipped    int
	Duplicates int
	Submitted  int
	Succeeded  int
	Failed     int
	// SubmitFailed counts files whose upload was rejected before an
	// operation existed. They are part of Failed but not of Submitted.
	SubmitFailed int

	// TotalInStore is the number of documents the store holds after the run.
	TotalInStore int

	// Outcomes holds every terminal per-document result, failures included.
	Outcomes []domain.Outcome
}

// Input is everything Build aggregates.
type Input struct {
	Store      domain.IndexStore
	DryRun     bool
	Existing   int
	Candidates int
	Skipped    int
	// Planned is the number of files that would be uploaded in a dry run.
	Planned        int
	Duplicates     []domain.Outcome
	SubmitFailures []domain.Outcome
	Tracked        []domain.Outcome
}

// Build aggregates counts. It has no side effects.
func Build(in Input) Report {
	r := Report{
		StoreName:        in.Store.Name,
		StoreDisplayName: in.Store.DisplayName,
		DryRun:           in.DryRun,
		Existing:         in.Existing,
		Candidates:       in.Candidates,
		Skipped:          in.Skipped,
		Duplicates:       len(in.Duplicates),
		Submitted:        len(in.Tracked),
	}
	if in.DryRun {
		r.Submitted = in.Planned
	}
	for _, o := range in.Tracked {
		if o.Failed() {
			r.Failed++
		} else {
			r.Succeeded++
		}
	}
	r.SubmitFailed = len(in.SubmitFailures)
	r.Failed += r.SubmitFailed
	r.TotalInStore = r.Existing + r.Succeeded

	r.Outcomes = make([]domain.Outcome, 0, len(in.SubmitFailures)+len(in.Tracked)+len(in.Duplicates))
	r.Outcomes = append(r.Outcomes, in.SubmitFailures...)
	r.Outcomes = append(r.Outcomes, in.Tracked...)
	r.Outcomes = append(r.Outcomes, in.Duplicates...)
	return r
}

// Failures returns the failed outcomes.
func (r Report) Failures() []domain.Outcome {
	var out []domain.Outcome
	for _, o := range r.Outcomes {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}

// Attempted is the number of files an upload was tried for.
func (r Report) Attempted() int { return r.Submitted + r.SubmitFailed }

// HasFailures reports whether any document failed.
func (r Report) HasFailures() bool { return r.Failed > 0 }

func (r Report) rows() [][2]string {
	newLabel := "New documents uploaded"
	if r.DryRun {
		newLabel = "Documents to upload"
	}
	rows := [][2]string{
		{"Store", r.StoreName},
		{"Display name", r.StoreDisplayName},
		{"Already present", fmt.Sprint(r.Existing)},
		{"Local candidates", fmt.Sprint(r.Candidates)},
		{"Skipped", fmt.Sprint(r.Skipped)},
		{"Name collisions", fmt.Sprint(r.Duplicates)},
		{newLabel, fmt.Sprint(r.Submitted)},
	}
	if !r.DryRun {
		rows = append(rows,
			[2]string{"Succeeded", fmt.Sprint(r.Succeeded)},
			[2]string{"Failed", fmt.Sprint(r.Failed)},
			[2]string{"Total in store", fmt.Sprint(r.TotalInStore)},
		)
	}
	return rows
}

// WriteText renders the report as plain text.
func (r Report) WriteText(w io.Writer) error {
	var b strings.Builder
	b.WriteString("Sync summary")
	if r.DryRun {
		b.WriteString(" (dry run)")
	}
	b.WriteString("\n")
	for _, row := range r.rows() {
		fmt.Fprintf(&b, "  %-24s %s\n", row[0]+":", row[1])
	}
	if failures := r.Failures(); len(failures) > 0 {
		b.WriteString("Failures:\n")
		for _, f := range failures {
			fmt.Fprintf(&b, "  - %s [%s] %s\n", f.DisplayName, f.Kind, f.Reason)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

var (
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	titleStyle   = lipgloss.NewStyle().Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(24)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Styled renders the report as a bordered block for terminals.
func (r Report) Styled() string {
	title := "Sync summary"
	if r.DryRun {
		title += " (dry run)"
	}
	lines := []string{titleStyle.Render(title)}
	for _, row := range r.rows() {
		value := row[1]
		switch {
		case row[0] == "Failed" && r.Failed > 0:
			value = failStyle.Render(value)
		case row[0] == "Succeeded" || row[0] == "Total in store":
			value = okStyle.Render(value)
		}
		lines = append(lines, labelStyle.Render(row[0])+value)
	}
	for _, f := range r.Failures() {
		lines = append(lines, failureStyle.Render(fmt.Sprintf("x %s [%s] %s", f.DisplayName, f.Kind, f.Reason)))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}
