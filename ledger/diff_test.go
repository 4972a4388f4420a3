package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/freightdesk/shipledger/ledger"
)

//nolint:funlen
func Test_Diff_ComputesFieldLevelChanges(t *testing.T) {
	tests := []struct {
		name     string
		from     ledger.Snapshot
		to       ledger.Snapshot
		expected ledger.FieldChanges
	}{
		{
			name:     "identical snapshots produce no changes",
			from:     ledger.Snapshot{"id": "S-1", "title": "Hamburg to Shanghai", "status": "new"},
			to:       ledger.Snapshot{"id": "S-1", "title": "Hamburg to Shanghai", "status": "new"},
			expected: ledger.FieldChanges{},
		},
		{
			name: "modified field",
			from: ledger.Snapshot{"id": "S-1", "status": "new"},
			to:   ledger.Snapshot{"id": "S-1", "status": "in_progress"},
			expected: ledger.FieldChanges{
				"status": {From: "new", To: "in_progress"},
			},
		},
		{
			name: "added field has nil From",
			from: ledger.Snapshot{"id": "S-1"},
			to:   ledger.Snapshot{"id": "S-1", "vessel_name": "MSC Oscar"},
			expected: ledger.FieldChanges{
				"vessel_name": {From: nil, To: "MSC Oscar"},
			},
		},
		{
			name: "removed field has nil To",
			from: ledger.Snapshot{"id": "S-1", "vessel_name": "MSC Oscar"},
			to:   ledger.Snapshot{"id": "S-1"},
			expected: ledger.FieldChanges{
				"vessel_name": {From: "MSC Oscar", To: nil},
			},
		},
		{
			name: "multiple changes at once",
			from: ledger.Snapshot{"id": "S-1", "status": "new", "port_of_loading": "DEHAM"},
			to:   ledger.Snapshot{"id": "S-1", "status": "completed", "voyage_number": "045W"},
			expected: ledger.FieldChanges{
				"status":          {From: "new", To: "completed"},
				"port_of_loading": {From: "DEHAM", To: nil},
				"voyage_number":   {From: nil, To: "045W"},
			},
		},
		{
			name: "nested values compare structurally",
			from: ledger.Snapshot{"id": "S-1", "parties": map[string]any{"shipper": "ACME"}},
			to:   ledger.Snapshot{"id": "S-1", "parties": map[string]any{"shipper": "ACME"}},
			expected: ledger.FieldChanges{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := ledger.Diff(tt.from, tt.to)
			assert.Equal(t, tt.expected, changes)
		})
	}
}

func Test_Diff_TreatsJSONNumberRepresentationsAsEqual(t *testing.T) {
	// a snapshot written as int 42 decodes to float64 42 after a JSON round trip
	from := ledger.Snapshot{"id": "S-1", "gross_weight_kgs": 42}
	to := ledger.Snapshot{"id": "S-1", "gross_weight_kgs": float64(42)}

	changes := ledger.Diff(from, to)

	assert.Empty(t, changes)
}

func Test_Diff_IsSymmetricInReportedFields(t *testing.T) {
	from := ledger.Snapshot{"id": "S-1", "status": "new", "vessel_name": "MSC Oscar"}
	to := ledger.Snapshot{"id": "S-1", "status": "completed"}

	forward := ledger.Diff(from, to)
	backward := ledger.Diff(to, from)

	assert.ElementsMatch(t, forward.Fields(), backward.Fields())
}

func Test_FieldChanges_FieldsAreSorted(t *testing.T) {
	changes := ledger.FieldChanges{
		"vessel_name": {},
		"status":      {},
		"id":          {},
	}

	assert.Equal(t, []string{"id", "status", "vessel_name"}, changes.Fields())
}

func Test_FieldChanges_Contains(t *testing.T) {
	changes := ledger.Diff(
		ledger.Snapshot{"id": "S-1", "status": "new"},
		ledger.Snapshot{"id": "S-1", "status": "completed"},
	)

	assert.True(t, changes.Contains("status"))
	assert.False(t, changes.Contains("id"))
}
