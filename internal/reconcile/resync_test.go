package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentab/possync/internal/entity"
	"github.com/opentab/possync/internal/pos"
)

func TestResync_ReplaysUnlinkedPendingWithTransactions(t *testing.T) {
	gw := newFakeGateway()
	ad := newFakeAdapter()
	eng := newTestEngine(t, pos.CaptureRestaurant, gw, ad, allCaps(ad))

	o := pendingOrder("o-1", 1000)
	gw.unlinked = []entity.Order{o}
	gw.txs["o-1"] = []entity.Transaction{
		{ID: "tx-1", OrderID: "o-1", Amount: 1000, Status: entity.TxComplete},
	}

	require.NoError(t, eng.Resync(context.Background()))

	// The attached transaction covered the total, so the order was
	// confirmed straight onto the POS, no judgment.
	assert.Equal(t, 1, ad.confirms)
	assert.Equal(t, 0, ad.judges)
	assert.Equal(t, 1, gw.count("ResolveNewOrder:accepted"))
}

func TestResync_SkipsUnlinkedTerminalOrders(t *testing.T) {
	gw := newFakeGateway()
	ad := newFakeAdapter()
	eng := newTestEngine(t, pos.CaptureRestaurant, gw, ad, allCaps(ad))

	rejected := pendingOrder("o-1", 1000)
	rejected.Status = entity.OrderRejected
	gw.unlinked = []entity.Order{rejected}

	require.NoError(t, eng.Resync(context.Background()))
	assert.Equal(t, 0, ad.confirms)
	assert.Equal(t, 0, ad.judges)
}

func TestResync_IsIdempotent(t *testing.T) {
	gw := newFakeGateway()
	ad := newFakeAdapter()
	eng := newTestEngine(t, pos.CaptureRestaurant, gw, ad, allCaps(ad))

	o := pendingOrder("o-1", 1000)
	gw.unlinked = []entity.Order{o}
	gw.txs["o-1"] = []entity.Transaction{
		{ID: "tx-1", OrderID: "o-1", Amount: 1000, Status: entity.TxComplete},
	}
	gw.checkins["ci-1"] = entity.Checkin{
		ID: "ci-1", Consumer: &entity.Consumer{ID: "c-1"}, Covers: 2,
	}

	require.NoError(t, eng.Resync(context.Background()))
	confirms := ad.confirms
	resolves := gw.count("ResolveNewOrder")
	paymentsLen := len(ad.payments)
	checkinsLen := len(ad.recordedCheckins)

	// Second pass with no intervening platform change.
	require.NoError(t, eng.Resync(context.Background()))

	assert.Equal(t, confirms, ad.confirms, "no re-confirmation")
	assert.Equal(t, resolves, gw.count("ResolveNewOrder"), "no re-resolution")
	assert.Len(t, ad.payments, paymentsLen, "no duplicate capture")
	assert.Len(t, ad.recordedCheckins, checkinsLen, "no duplicate checkin")
}

func TestResync_CheckinDiffSynthesizesEvents(t *testing.T) {
	gw := newFakeGateway()
	ad := newFakeAdapter()
	eng := newTestEngine(t, pos.CaptureRestaurant, gw, ad, allCaps(ad))

	// Platform knows c-new; POS knows c-old. After the pass the POS
	// should have checked c-new in and c-old out.
	gw.checkins["ci-1"] = entity.Checkin{
		ID: "ci-1", Consumer: &entity.Consumer{ID: "c-new"}, Covers: 2,
	}
	ad.consumers = []string{"c-old"}

	require.NoError(t, eng.Resync(context.Background()))

	require.Len(t, ad.recordedCheckins, 1)
	assert.Equal(t, "ci-1", ad.recordedCheckins[0].ID)
	assert.Equal(t, []string{"c-old"}, ad.checkouts)
}

func TestResync_CheckinDiffSkipsCompletedCheckins(t *testing.T) {
	gw := newFakeGateway()
	ad := newFakeAdapter()
	eng := newTestEngine(t, pos.CaptureRestaurant, gw, ad, allCaps(ad))

	gw.checkins["ci-1"] = entity.Checkin{
		ID: "ci-1", Consumer: &entity.Consumer{ID: "c-1"}, Completed: true,
	}

	require.NoError(t, eng.Resync(context.Background()))
	assert.Empty(t, ad.recordedCheckins)
}

func TestResync_ConsumerListingUnsupportedSkipsCheckinPass(t *testing.T) {
	gw := newFakeGateway()
	ad := newFakeAdapter()
	ad.consumersErr = pos.ErrUnsupported
	eng := newTestEngine(t, pos.CaptureRestaurant, gw, ad, allCaps(ad))

	gw.checkins["ci-1"] = entity.Checkin{
		ID: "ci-1", Consumer: &entity.Consumer{ID: "c-1"},
	}

	require.NoError(t, eng.Resync(context.Background()))
	assert.Empty(t, ad.recordedCheckins)
}

func TestResync_LinkedOrdersReplayThroughStatusHandler(t *testing.T) {
	gw := newFakeGateway()
	ad := newFakeAdapter()
	eng := newTestEngine(t, pos.CaptureRestaurant, gw, ad, allCaps(ad))

	o := pendingOrder("o-1", 1000)
	o.Status = entity.OrderCancelled
	posID := ad.link(o)
	linked := o
	linked.PosID = posID
	gw.orders["o-1"] = linked

	require.NoError(t, eng.Resync(context.Background()))
	assert.Equal(t, []string{posID}, ad.cancels)
}

func TestResync_RepushesDivergedAllocation(t *testing.T) {
	gw := newFakeGateway()
	ad := newFakeAdapter()
	eng := newTestEngine(t, pos.CaptureRestaurant, gw, ad, allCaps(ad))

	o := pendingOrder("o-1", 1000)
	o.Status = entity.OrderPending
	o.Version = "v2"
	posID := ad.link(o)
	// POS allocated ci-5 during the outage; the platform copy has none.
	require.NoError(t, ad.RecordOrderCheckin(context.Background(), posID, "ci-5"))

	linked := o
	linked.PosID = posID
	linked.CheckinID = ""
	gw.orders["o-1"] = linked

	require.NoError(t, eng.Resync(context.Background()))

	assert.Equal(t, "ci-5", gw.orders["o-1"].CheckinID, "pos allocation re-pushed")
}

func TestResync_CollectsFailuresAndContinues(t *testing.T) {
	gw := newFakeGateway()
	ad := newFakeAdapter()
	eng := newTestEngine(t, pos.CaptureRestaurant, gw, ad, allCaps(ad))

	bad := pendingOrder("o-bad", 1000)
	bad.Status = "mangled"
	good := pendingOrder("o-good", 1000)
	gw.unlinked = []entity.Order{bad, good}

	err := eng.Resync(context.Background())
	require.Error(t, err, "the mangled order surfaces")
	assert.True(t, IsProtocol(err))
	// The good order was still processed.
	assert.Equal(t, 1, ad.judges)
	assert.Equal(t, 1, gw.count("ResolveNewOrder:accepted"))
}
