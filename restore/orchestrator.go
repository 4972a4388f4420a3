package restore

import (
	"context"
	"fmt"

	"github.com/freightdesk/shipledger/ledger"
	"github.com/freightdesk/shipledger/validation"
)

// MetadataKeyRestoredFrom is set on every restore event and records the
// version number the snapshot was copied from.
const MetadataKeyRestoredFrom = "restored_from_version"

// Ledger is the slice of the version ledger the orchestrator needs.
type Ledger interface {
	GetVersion(ctx context.Context, entityID string, versionNo int) (ledger.VersionRecord, error)
	Append(ctx context.Context, event ledger.Event) (int, error)
}

// Orchestrator performs restores against a version ledger.
type Orchestrator struct {
	ledger         Ledger
	validator      *validation.Validator
	validationMode validation.Mode
}

// Option defines a functional option for configuring the Orchestrator.
type Option func(*Orchestrator)

// WithValidationMode sets the mode used when re-validating the restored
// snapshot against the current business rules.
func WithValidationMode(mode validation.Mode) Option {
	return func(o *Orchestrator) {
		o.validationMode = mode
	}
}

// NewOrchestrator creates an Orchestrator over the given ledger. The
// restored snapshot is re-validated in CollectAll mode by default, so a
// version written under older rules cannot silently re-enter as current
// state.
func NewOrchestrator(l Ledger, options ...Option) *Orchestrator {
	o := &Orchestrator{
		ledger:         l,
		validationMode: validation.CollectAll,
	}

	for _, option := range options {
		option(o)
	}

	o.validator = validation.NewValidator(o.validationMode)

	return o
}

// Restore appends a new version whose snapshot is a copy of the source
// version's snapshot and returns the assigned version number.
//
// It fails with ledger.ErrNotFound when the source version does not
// exist and with a *ledger.ValidationError when the input is invalid or
// the historical snapshot no longer passes the business rules.
func (o *Orchestrator) Restore(
	ctx context.Context,
	entityID string,
	sourceVersionNo int,
	actorID string,
	actorName string,
	reason string,
) (int, error) {

	if violations := restoreInputViolations(entityID, sourceVersionNo, actorID, actorName); len(violations) > 0 {
		return 0, ledger.NewValidationError(violations...)
	}

	source, err := o.ledger.GetVersion(ctx, entityID, sourceVersionNo)
	if err != nil {
		return 0, err
	}

	if violations := o.validator.Validate(source.Snapshot); len(violations) > 0 {
		return 0, ledger.NewValidationError(violations...)
	}

	if reason == "" {
		reason = fmt.Sprintf("restored to version %d", sourceVersionNo)
	}

	event := ledger.BuildEvent(
		entityID,
		ledger.EventTypeRestored,
		actorID,
		actorName,
		source.Snapshot.Clone(),
		ledger.WithReason(reason),
		ledger.WithMetadata(ledger.Metadata{MetadataKeyRestoredFrom: sourceVersionNo}),
	)

	return o.ledger.Append(ctx, event)
}

func restoreInputViolations(entityID string, sourceVersionNo int, actorID, actorName string) []ledger.Violation {
	var violations []ledger.Violation

	if entityID == "" {
		violations = append(violations, ledger.Violation{
			Field:   "entity_id",
			Rule:    "required",
			Message: "entity_id is required",
		})
	}

	if sourceVersionNo < 1 {
		violations = append(violations, ledger.Violation{
			Field:   "version_no",
			Rule:    "range",
			Message: "version_no must be at least 1",
		})
	}

	if actorID == "" {
		violations = append(violations, ledger.Violation{
			Field:   "actor_id",
			Rule:    "required",
			Message: "actor_id is required",
		})
	}

	if actorName == "" {
		violations = append(violations, ledger.Violation{
			Field:   "actor_name",
			Rule:    "required",
			Message: "actor_name is required and cannot be empty",
		})
	}

	return violations
}
