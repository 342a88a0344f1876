package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType is the coarse classification of a transaction.
type TransactionType string

const (
	TxnTrade    TransactionType = "TRADE"
	TxnTransfer TransactionType = "TRANSFER"
	TxnIncome   TransactionType = "INCOME"
	TxnFee      TransactionType = "FEE"
	TxnOther    TransactionType = "OTHER"
)

// TransactionSubtype refines the type. Subtypes are partitioned by type.
type TransactionSubtype string

const (
	// TRADE
	SubtypeBuy              TransactionSubtype = "BUY"
	SubtypeSell             TransactionSubtype = "SELL"
	SubtypeShortSell        TransactionSubtype = "SHORT_SELL"
	SubtypeBuyToCover       TransactionSubtype = "BUY_TO_COVER"
	SubtypeOptionExercise   TransactionSubtype = "OPTION_EXERCISE"
	SubtypeOptionAssignment TransactionSubtype = "OPTION_ASSIGNMENT"

	// TRANSFER
	SubtypeDeposit          TransactionSubtype = "DEPOSIT"
	SubtypeWithdrawal       TransactionSubtype = "WITHDRAWAL"
	SubtypeACH              TransactionSubtype = "ACH"
	SubtypeWire             TransactionSubtype = "WIRE"
	SubtypeJournal          TransactionSubtype = "JOURNAL"
	SubtypeInternalTransfer TransactionSubtype = "INTERNAL_TRANSFER"

	// INCOME
	SubtypeDividend     TransactionSubtype = "DIVIDEND"
	SubtypeInterest     TransactionSubtype = "INTEREST"
	SubtypeCapitalGain  TransactionSubtype = "CAPITAL_GAIN"
	SubtypeDistribution TransactionSubtype = "DISTRIBUTION"
	SubtypeReinvestment TransactionSubtype = "REINVESTMENT"

	// FEE
	SubtypeAccountFee     TransactionSubtype = "ACCOUNT_FEE"
	SubtypeCommission     TransactionSubtype = "COMMISSION"
	SubtypeMarginInterest TransactionSubtype = "MARGIN_INTEREST"
	SubtypeManagementFee  TransactionSubtype = "MANAGEMENT_FEE"
	SubtypeRegulatoryFee  TransactionSubtype = "REGULATORY_FEE"

	// OTHER
	SubtypeAdjustment TransactionSubtype = "ADJUSTMENT"
	SubtypeUnknown    TransactionSubtype = "UNKNOWN"
)

// TransactionStatus is the settlement state of a transaction.
type TransactionStatus string

const (
	TxnPending   TransactionStatus = "PENDING"
	TxnSettled   TransactionStatus = "SETTLED"
	TxnFailed    TransactionStatus = "FAILED"
	TxnCancelled TransactionStatus = "CANCELLED"
)

// Transaction is an immutable ledger entry. The provider's transaction id is
// unique within the account and serves as the dedup key. Amount sign follows
// the ledger convention: negative is a debit, positive a credit. Once stored,
// only status may change, and only PENDING -> SETTLED.
type Transaction struct {
	ID                    string
	AccountID             string
	ProviderTransactionID string
	Type                  TransactionType
	Subtype               TransactionSubtype
	Status                TransactionStatus
	Amount                Money
	Description           string
	AssetType             *AssetType
	Symbol                *string
	SecurityName          *string
	Quantity              *decimal.Decimal
	UnitPrice             *Money
	Commission            *Money
	TransactionDate       time.Time
	SettlementDate        *time.Time
	ProviderMetadata      map[string]interface{}
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NewTransaction creates a transaction. Optional Money fields must match the
// amount currency.
func NewTransaction(accountID, providerTransactionID string, txnType TransactionType, subtype TransactionSubtype, status TransactionStatus, amount Money, description string, assetType *AssetType, symbol, securityName *string, quantity *decimal.Decimal, unitPrice, commission *Money, transactionDate time.Time, settlementDate *time.Time, metadata map[string]interface{}, now time.Time) (*Transaction, error) {
	if unitPrice != nil && unitPrice.Currency != amount.Currency {
		return nil, Ef(CodeCurrencyMismatch, "unit price currency %s != amount currency %s", unitPrice.Currency, amount.Currency)
	}
	if commission != nil && commission.Currency != amount.Currency {
		return nil, Ef(CodeCurrencyMismatch, "commission currency %s != amount currency %s", commission.Currency, amount.Currency)
	}

	return &Transaction{
		ID:                    uuid.NewString(),
		AccountID:             accountID,
		ProviderTransactionID: providerTransactionID,
		Type:                  txnType,
		Subtype:               subtype,
		Status:                status,
		Amount:                amount,
		Description:           description,
		AssetType:             assetType,
		Symbol:                symbol,
		SecurityName:          securityName,
		Quantity:              quantity,
		UnitPrice:             unitPrice,
		Commission:            commission,
		TransactionDate:       transactionDate,
		SettlementDate:        settlementDate,
		ProviderMetadata:      metadata,
		CreatedAt:             now,
		UpdatedAt:             now,
	}, nil
}

// IsDebit reports whether the amount is negative.
func (t *Transaction) IsDebit() bool {
	return t.Amount.IsNegative()
}

// IsCredit reports whether the amount is positive.
func (t *Transaction) IsCredit() bool {
	return t.Amount.Amount.IsPositive()
}

// MarkSettled transitions PENDING -> SETTLED, the only mutation a stored
// transaction permits.
func (t *Transaction) MarkSettled(settlementDate *time.Time, now time.Time) error {
	if t.Status != TxnPending {
		return Ef(CodeInvalidStatusTransition, "cannot settle transaction in status %s", t.Status)
	}
	t.Status = TxnSettled
	if settlementDate != nil {
		t.SettlementDate = settlementDate
	}
	t.UpdatedAt = now
	return nil
}
