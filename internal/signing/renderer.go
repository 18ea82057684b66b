package signing

import (
	"bytes"
	"context"
	"fmt"

	"curia/pkg/domain"
	dErrors "curia/pkg/domain-errors"
)

// RenderInput carries everything a rendered decision document shows. Only
// the judge's pseudonym appears; the real identity never reaches the
// artifact.
type RenderInput struct {
	DecisionID     domain.DecisionID
	CaseID         domain.CaseID
	Type           string
	Title          string
	Body           string
	JudgePseudonym string
	Version        int
	CourtUnit      string
}

// TextRenderer produces a canonical plain-text artifact. Rendering the same
// input always yields the same bytes, so the stored content digest can be
// recomputed for integrity checks.
type TextRenderer struct{}

func NewTextRenderer() *TextRenderer {
	return &TextRenderer{}
}

func (r *TextRenderer) Render(_ context.Context, in RenderInput) ([]byte, error) {
	if in.JudgePseudonym == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "rendering requires a judge pseudonym")
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "COURT DECISION\n")
	fmt.Fprintf(&buf, "Decision: %s\n", in.DecisionID)
	fmt.Fprintf(&buf, "Case: %s\n", in.CaseID)
	fmt.Fprintf(&buf, "Court unit: %s\n", in.CourtUnit)
	fmt.Fprintf(&buf, "Type: %s\n", in.Type)
	fmt.Fprintf(&buf, "Version: %d\n", in.Version)
	fmt.Fprintf(&buf, "Presiding: %s\n", in.JudgePseudonym)
	fmt.Fprintf(&buf, "\n%s\n\n%s\n", in.Title, in.Body)
	return buf.Bytes(), nil
}
