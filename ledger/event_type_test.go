package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/freightdesk/shipledger/ledger"
)

func Test_EventType_IsValid(t *testing.T) {
	for _, eventType := range ledger.AllEventTypes() {
		assert.True(t, eventType.IsValid(), "expected %q to be valid", eventType)
	}

	assert.False(t, ledger.EventType("teleported").IsValid())
	assert.False(t, ledger.EventType("").IsValid())
	assert.False(t, ledger.EventType("CREATED").IsValid(), "event types are case sensitive")
}

func Test_AllEventTypes_IsSortedAndComplete(t *testing.T) {
	eventTypes := ledger.AllEventTypes()

	assert.Len(t, eventTypes, 8)
	for i := 1; i < len(eventTypes); i++ {
		assert.Less(t, eventTypes[i-1].String(), eventTypes[i].String())
	}
}
