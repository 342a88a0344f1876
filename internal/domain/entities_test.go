package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccountCurrencyInvariant(t *testing.T) {
	now := time.Now()

	avail := MustMoney("50", "EUR")
	_, err := NewAccount("conn-1", "acct-1", "****1234", "Brokerage", AccountBrokerage, MustMoney("100", "USD"), &avail, true, nil, now)
	assert.Equal(t, CodeCurrencyMismatch, CodeOf(err))

	usdAvail := MustMoney("50", "USD")
	acct, err := NewAccount("conn-1", "acct-1", "****1234", "Brokerage", AccountBrokerage, MustMoney("100", "USD"), &usdAvail, true, nil, now)
	require.NoError(t, err)
	assert.Equal(t, "USD", acct.Currency)
	assert.True(t, acct.IsActive)
	require.NotNil(t, acct.LastSyncedAt)
}

func TestAccountUpdateBalance(t *testing.T) {
	now := time.Now()
	acct, err := NewAccount("conn-1", "acct-1", "****1234", "Brokerage", AccountBrokerage, MustMoney("100", "USD"), nil, true, nil, now)
	require.NoError(t, err)

	err = acct.UpdateBalance(MustMoney("200", "EUR"), nil, now)
	assert.Equal(t, CodeCurrencyMismatch, CodeOf(err))
	assert.True(t, acct.Balance.Equal(MustMoney("100", "USD")))

	require.NoError(t, acct.UpdateBalance(MustMoney("200", "USD"), nil, now))
	assert.True(t, acct.Balance.Equal(MustMoney("200", "USD")))
}

func TestAccountActivateDeactivate(t *testing.T) {
	now := time.Now()
	acct, err := NewAccount("conn-1", "acct-1", "****1234", "Checking", AccountChecking, MustMoney("0", "USD"), nil, true, nil, now)
	require.NoError(t, err)

	acct.Deactivate(now)
	assert.False(t, acct.IsActive)
	acct.Activate(now)
	assert.True(t, acct.IsActive)
}

func newTestHolding(t *testing.T) *Holding {
	t.Helper()
	h, err := NewHolding("acct-1", "hold-1", "AAPL", "Apple Inc", AssetEquity,
		decimal.NewFromInt(10), MustMoney("1000", "USD"), MustMoney("1210", "USD"), nil, nil, nil, time.Now())
	require.NoError(t, err)
	return h
}

func TestHoldingUnrealizedGainLoss(t *testing.T) {
	h := newTestHolding(t)

	gain := h.UnrealizedGainLoss()
	assert.True(t, gain.Equal(MustMoney("210", "USD")))

	pct := h.UnrealizedGainLossPercent()
	require.NotNil(t, pct)
	assert.Equal(t, "21", pct.String())
}

func TestHoldingGainPercentZeroCostBasis(t *testing.T) {
	h, err := NewHolding("acct-1", "hold-1", "CASH", "Cash", AssetCashEquivalent,
		decimal.NewFromInt(1), MustMoney("0", "USD"), MustMoney("100", "USD"), nil, nil, nil, time.Now())
	require.NoError(t, err)
	assert.Nil(t, h.UnrealizedGainLossPercent())
}

func TestHoldingNegativeQuantityRejected(t *testing.T) {
	_, err := NewHolding("acct-1", "hold-1", "AAPL", "Apple Inc", AssetEquity,
		decimal.NewFromInt(-1), MustMoney("0", "USD"), MustMoney("0", "USD"), nil, nil, nil, time.Now())
	assert.Error(t, err)
}

func TestHoldingUpdateFromProvider(t *testing.T) {
	now := time.Now()
	h := newTestHolding(t)
	h.Deactivate(now)

	err := h.UpdateFromProvider(decimal.NewFromInt(12), MustMoney("1200", "USD"), MustMoney("1500", "USD"), nil, nil, "", nil, now)
	require.NoError(t, err)
	assert.True(t, h.IsActive)
	assert.Equal(t, "Apple Inc", h.SecurityName)
	assert.True(t, h.MarketValue.Equal(MustMoney("1500", "USD")))

	err = h.UpdateFromProvider(decimal.NewFromInt(12), MustMoney("1200", "EUR"), MustMoney("1500", "USD"), nil, nil, "", nil, now)
	assert.Equal(t, CodeCurrencyMismatch, CodeOf(err))
}

func TestTransactionMarkSettled(t *testing.T) {
	now := time.Now()
	txn, err := NewTransaction("acct-1", "txn-1", TxnTrade, SubtypeBuy, TxnPending,
		MustMoney("-500", "USD"), "BUY AAPL", nil, nil, nil, nil, nil, nil, now, nil, nil, now)
	require.NoError(t, err)
	assert.True(t, txn.IsDebit())

	settled := now.Add(2 * 24 * time.Hour)
	require.NoError(t, txn.MarkSettled(&settled, now))
	assert.Equal(t, TxnSettled, txn.Status)
	require.NotNil(t, txn.SettlementDate)

	err = txn.MarkSettled(nil, now)
	assert.Equal(t, CodeInvalidStatusTransition, CodeOf(err))
}

func TestTransactionCurrencyInvariant(t *testing.T) {
	now := time.Now()
	commission := MustMoney("1.50", "EUR")
	_, err := NewTransaction("acct-1", "txn-1", TxnTrade, SubtypeBuy, TxnSettled,
		MustMoney("-500", "USD"), "BUY AAPL", nil, nil, nil, nil, nil, &commission, now, nil, nil, now)
	assert.Equal(t, CodeCurrencyMismatch, CodeOf(err))
}

func TestNewBalanceSnapshotCurrencyInvariant(t *testing.T) {
	now := time.Now()

	cash := MustMoney("10", "EUR")
	_, err := NewBalanceSnapshot("acct-1", MustMoney("100", "USD"), nil, nil, &cash, SourceAccountSync, nil, now, now)
	assert.Equal(t, CodeCurrencyMismatch, CodeOf(err))

	usdCash := MustMoney("10", "USD")
	snap, err := NewBalanceSnapshot("acct-1", MustMoney("100", "USD"), nil, nil, &usdCash, SourceAccountSync, nil, now, now)
	require.NoError(t, err)
	assert.Equal(t, "USD", snap.Currency)
	assert.Equal(t, SourceAccountSync, snap.Source)
}

func TestValidSnapshotSource(t *testing.T) {
	assert.True(t, ValidSnapshotSource("ACCOUNT_SYNC"))
	assert.True(t, ValidSnapshotSource("INITIAL_CONNECTION"))
	assert.False(t, ValidSnapshotSource("WEEKLY"))
}
