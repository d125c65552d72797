package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentab/possync/internal/entity"
)

func TestDecodeMessage_OrderCreated(t *testing.T) {
	frame := []byte(`{
		"type": "order_created",
		"payload": {
			"id": "o-1",
			"status": "pending",
			"version": "v1",
			"consumer": {"id": "c-1", "name": "Sam"},
			"items": [{"id": "l-1", "name": "burger", "quantity": 2, "unitPrice": 750, "total": 1500}]
		}
	}`)

	ev, err := DecodeMessage(frame)
	require.NoError(t, err)
	assert.Equal(t, EventOrderCreated, ev.Kind)
	require.NotNil(t, ev.Order)
	assert.Equal(t, "o-1", ev.Order.ID)
	assert.Equal(t, entity.OrderPending, ev.Order.Status)
	require.Len(t, ev.Order.Items, 1)
	assert.Equal(t, entity.Money(1500), ev.Order.Items[0].Total)
}

func TestDecodeMessage_TransactionUpdated(t *testing.T) {
	frame := []byte(`{
		"type": "transaction_updated",
		"payload": {"id": "tx-1", "orderId": "o-1", "amount": 500, "status": "pending", "version": "tv1"}
	}`)

	ev, err := DecodeMessage(frame)
	require.NoError(t, err)
	assert.Equal(t, EventTransactionUpdated, ev.Kind)
	require.NotNil(t, ev.Transaction)
	assert.Equal(t, entity.Money(500), ev.Transaction.Amount)
	assert.Equal(t, entity.TxPending, ev.Transaction.Status)
}

func TestDecodeMessage_TableAllocationChanged(t *testing.T) {
	frame := []byte(`{
		"type": "table_allocation_changed",
		"payload": {"checkinId": "ci-1", "tableNames": ["T1", "T2"], "covers": 4}
	}`)

	ev, err := DecodeMessage(frame)
	require.NoError(t, err)
	require.NotNil(t, ev.Allocation)
	assert.Equal(t, []string{"T1", "T2"}, ev.Allocation.TableNames)
}

func TestDecodeMessage_BookingDeletedCarriesOnlyID(t *testing.T) {
	frame := []byte(`{"type": "booking_deleted", "payload": {"id": "b-9"}}`)

	ev, err := DecodeMessage(frame)
	require.NoError(t, err)
	assert.Equal(t, EventBookingDeleted, ev.Kind)
	assert.Equal(t, "b-9", ev.BookingID)
	assert.Nil(t, ev.Booking)
}

func TestDecodeMessage_UnknownTypeIsAnError(t *testing.T) {
	frame := []byte(`{"type": "venue_archived", "payload": {}}`)

	_, err := DecodeMessage(frame)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "venue_archived")
}

func TestDecodeMessage_MalformedJSON(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"type": "order_created", "payload`))
	assert.Error(t, err)
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "order_created", EventOrderCreated.String())
	assert.Equal(t, "checkout", EventCheckout.String())
	assert.Equal(t, "EventKind(99)", EventKind(99).String())
}
