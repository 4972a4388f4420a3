package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/freightdesk/shipledger/ledger"
)

// Mode controls whether a validation run reports every violation or
// stops at the first one.
type Mode int

const (
	// CollectAll gathers every violation before reporting.
	CollectAll Mode = iota
	// FailFast stops at the first violation.
	FailFast
)

// Snapshot field names recognized by the validator. Fields not listed
// here pass through unchecked.
const (
	FieldStatus          = "status"
	FieldTransportMode   = "transportMode"
	FieldContainerNumber = "container_number"
	FieldHouseBOLNumber  = "house_bol_number"
	FieldMasterBOLNumber = "master_bol_number"
	FieldPortOfLoading   = "port_of_loading"
	FieldPortOfDischarge = "port_of_discharge"
	FieldGrossWeightKgs  = "gross_weight_kgs"
	FieldVesselName      = "vessel_name"
	FieldVoyageNumber    = "voyage_number"
	FieldFlightNumber    = "flight_number"
	FieldConsigneeName   = "consignee_name"
	FieldShipperName     = "shipper_name"
)

// Rule identifiers attached to violations.
const (
	RuleFormat = "format"
	RuleLength = "length"
	RuleRange  = "range"
	RuleEnum   = "enum"
	RuleType   = "type"
)

const maxGrossWeightKgs = 1_000_000

var (
	containerNumberPattern = regexp.MustCompile(`^[A-Z]{4}\d{7}$`)
	bolNumberPattern       = regexp.MustCompile(`^[A-Z0-9-]{4,20}$`)
	voyageNumberPattern    = regexp.MustCompile(`^[A-Za-z0-9]{2,20}$`)
	flightNumberPattern    = regexp.MustCompile(`^[A-Z]{2,3}\d{1,4}$`)
)

var validStatuses = map[string]struct{}{
	"new":         {},
	"pending":     {},
	"in_progress": {},
	"completed":   {},
	"cancelled":   {},
	"archived":    {},
}

var validTransportModes = map[string]struct{}{
	"ocean": {},
	"air":   {},
	"land":  {},
	"rail":  {},
}

// weightUnitSuffixes are trimmed from weight values before parsing, so
// "12500 kg" and "12500" validate the same.
var weightUnitSuffixes = []string{"kgs", "kg", "lbs", "lb", "t"}

// Validator checks shipment snapshots against the field-level business
// rules. The zero value validates in CollectAll mode.
type Validator struct {
	mode Mode
}

// NewValidator creates a Validator running in the given mode.
func NewValidator(mode Mode) *Validator {
	return &Validator{mode: mode}
}

// Validate implements ledger.SnapshotValidator. It inspects the
// recognized shipment fields present in the snapshot and returns the
// violations found, honoring the configured mode.
func (v *Validator) Validate(snapshot ledger.Snapshot) []ledger.Violation {
	var violations []ledger.Violation

	for _, field := range []string{
		FieldStatus,
		FieldTransportMode,
		FieldContainerNumber,
		FieldHouseBOLNumber,
		FieldMasterBOLNumber,
		FieldPortOfLoading,
		FieldPortOfDischarge,
		FieldGrossWeightKgs,
		FieldVesselName,
		FieldVoyageNumber,
		FieldFlightNumber,
		FieldConsigneeName,
		FieldShipperName,
	} {
		value, present := snapshot[field]
		if !present || value == nil {
			continue
		}

		if violation := validateField(field, value); violation != nil {
			violations = append(violations, *violation)

			if v.mode == FailFast {
				return violations
			}
		}
	}

	return violations
}

// ValidateSnapshot runs the full rule set over a snapshot and returns a
// *ledger.ValidationError when anything fails, nil otherwise.
func ValidateSnapshot(snapshot ledger.Snapshot, mode Mode) error {
	violations := NewValidator(mode).Validate(snapshot)
	if len(violations) > 0 {
		return ledger.NewValidationError(violations...)
	}

	return nil
}

func validateField(field string, value any) *ledger.Violation {
	switch field {
	case FieldStatus:
		return validateEnum(field, value, validStatuses, "new, pending, in_progress, completed, cancelled, archived")
	case FieldTransportMode:
		return validateEnum(field, value, validTransportModes, "ocean, air, land, rail")
	case FieldContainerNumber:
		return validatePattern(field, value, containerNumberPattern,
			"must be 4 uppercase letters followed by 7 digits, e.g. MSCU1234567")
	case FieldHouseBOLNumber, FieldMasterBOLNumber:
		return validatePattern(field, value, bolNumberPattern,
			"must be 4 to 20 characters of uppercase letters, digits, or hyphens")
	case FieldPortOfLoading, FieldPortOfDischarge, FieldVesselName:
		return validateLength(field, value, 2, 100)
	case FieldConsigneeName, FieldShipperName:
		return validateLength(field, value, 2, 200)
	case FieldVoyageNumber:
		return validateVoyageNumber(field, value)
	case FieldFlightNumber:
		return validatePattern(field, value, flightNumberPattern,
			"must be a 2 or 3 letter airline code followed by 1 to 4 digits, e.g. CX880")
	case FieldGrossWeightKgs:
		return validateGrossWeight(field, value)
	}

	return nil
}

func validateEnum(field string, value any, allowed map[string]struct{}, allowedList string) *ledger.Violation {
	text, violation := asString(field, value)
	if violation != nil {
		return violation
	}

	if _, ok := allowed[strings.ToLower(strings.TrimSpace(text))]; !ok {
		return &ledger.Violation{
			Field:   field,
			Rule:    RuleEnum,
			Message: fmt.Sprintf("%s %q is not one of: %s", field, text, allowedList),
		}
	}

	return nil
}

func validatePattern(field string, value any, pattern *regexp.Regexp, hint string) *ledger.Violation {
	text, violation := asString(field, value)
	if violation != nil {
		return violation
	}

	if !pattern.MatchString(strings.TrimSpace(text)) {
		return &ledger.Violation{
			Field:   field,
			Rule:    RuleFormat,
			Message: fmt.Sprintf("%s %q is invalid: %s", field, text, hint),
		}
	}

	return nil
}

func validateLength(field string, value any, minLen, maxLen int) *ledger.Violation {
	text, violation := asString(field, value)
	if violation != nil {
		return violation
	}

	length := len([]rune(strings.TrimSpace(text)))
	if length < minLen || length > maxLen {
		return &ledger.Violation{
			Field:   field,
			Rule:    RuleLength,
			Message: fmt.Sprintf("%s must be between %d and %d characters, got %d", field, minLen, maxLen, length),
		}
	}

	return nil
}

// validateVoyageNumber strips the separators carriers embed in voyage
// codes (e.g. "045-W") before applying the alphanumeric rule.
func validateVoyageNumber(field string, value any) *ledger.Violation {
	text, violation := asString(field, value)
	if violation != nil {
		return violation
	}

	stripped := strings.NewReplacer("-", "", "/", "", "_", "").Replace(strings.TrimSpace(text))
	if !voyageNumberPattern.MatchString(stripped) {
		return &ledger.Violation{
			Field:   field,
			Rule:    RuleFormat,
			Message: fmt.Sprintf("%s %q is invalid: must be 2 to 20 alphanumeric characters, separators aside", field, text),
		}
	}

	return nil
}

func validateGrossWeight(field string, value any) *ledger.Violation {
	weight, violation := asWeight(field, value)
	if violation != nil {
		return violation
	}

	if weight <= 0 || weight > maxGrossWeightKgs {
		return &ledger.Violation{
			Field:   field,
			Rule:    RuleRange,
			Message: fmt.Sprintf("%s must be greater than 0 and at most %d, got %v", field, maxGrossWeightKgs, weight),
		}
	}

	return nil
}

func asString(field string, value any) (string, *ledger.Violation) {
	text, ok := value.(string)
	if !ok {
		return "", &ledger.Violation{
			Field:   field,
			Rule:    RuleType,
			Message: fmt.Sprintf("%s must be a string, got %T", field, value),
		}
	}

	return text, nil
}

func asWeight(field string, value any) (float64, *ledger.Violation) {
	switch typed := value.(type) {
	case float64:
		return typed, nil
	case int:
		return float64(typed), nil
	case string:
		text := strings.ToLower(strings.TrimSpace(typed))
		for _, suffix := range weightUnitSuffixes {
			if trimmed, found := strings.CutSuffix(text, suffix); found {
				text = strings.TrimSpace(trimmed)
				break
			}
		}

		weight, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", ""), 64)
		if err != nil {
			return 0, &ledger.Violation{
				Field:   field,
				Rule:    RuleType,
				Message: fmt.Sprintf("%s %q is not a number", field, typed),
			}
		}

		return weight, nil
	default:
		return 0, &ledger.Violation{
			Field:   field,
			Rule:    RuleType,
			Message: fmt.Sprintf("%s must be a number, got %T", field, value),
		}
	}
}
