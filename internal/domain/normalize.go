package domain

import "strings"

// Normalization of raw provider strings into domain enums. Providers disagree
// wildly on vocabulary; handlers funnel everything through these tables before
// constructing entities.

var accountTypes = map[string]AccountType{
	"BROKERAGE":      AccountBrokerage,
	"IRA":            AccountIRA,
	"ROTH_IRA":       AccountRothIRA,
	"401K":           Account401K,
	"403B":           Account403B,
	"HSA":            AccountHSA,
	"CHECKING":       AccountChecking,
	"SAVINGS":        AccountSavings,
	"MONEY_MARKET":   AccountMoneyMarket,
	"CD":             AccountCD,
	"CREDIT_CARD":    AccountCreditCard,
	"LINE_OF_CREDIT": AccountLineOfCredit,
	"LOAN":           AccountLoan,
	"MORTGAGE":       AccountMortgage,
	"OTHER":          AccountOther,
}

// NormalizeAccountType maps a provider account type to the domain enum.
// The match is exact against the declared strings; anything else is OTHER.
func NormalizeAccountType(raw string) AccountType {
	if t, ok := accountTypes[raw]; ok {
		return t
	}
	return AccountOther
}

var assetTypes = map[string]AssetType{
	"EQUITY":          AssetEquity,
	"ETF":             AssetETF,
	"OPTION":          AssetOption,
	"MUTUAL_FUND":     AssetMutualFund,
	"FIXED_INCOME":    AssetFixedIncome,
	"FUTURES":         AssetFutures,
	"CRYPTOCURRENCY":  AssetCryptocurrency,
	"CASH_EQUIVALENT": AssetCashEquivalent,
	"OTHER":           AssetOther,
}

// NormalizeAssetType maps a provider asset type to the domain enum.
func NormalizeAssetType(raw string) AssetType {
	if t, ok := assetTypes[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return t
	}
	return AssetOther
}

var transactionTypes = map[string]TransactionType{
	"TRADE":    TxnTrade,
	"BUY":      TxnTrade,
	"SELL":     TxnTrade,
	"SHORT":    TxnTrade,
	"COVER":    TxnTrade,
	"OPTION":   TxnTrade,
	"EXERCISE": TxnTrade,

	"TRANSFER":   TxnTransfer,
	"DEPOSIT":    TxnTransfer,
	"WITHDRAWAL": TxnTransfer,
	"ACH":        TxnTransfer,
	"WIRE":       TxnTransfer,
	"JOURNAL":    TxnTransfer,

	"DIVIDEND":     TxnIncome,
	"INTEREST":     TxnIncome,
	"CAPITAL_GAIN": TxnIncome,
	"DISTRIBUTION": TxnIncome,

	"FEE":             TxnFee,
	"COMMISSION":      TxnFee,
	"MARGIN_INTEREST": TxnFee,
	"MANAGEMENT_FEE":  TxnFee,
}

// NormalizeTransactionType maps a raw provider transaction type, case
// insensitively, to the coarse domain type. Unrecognized values are OTHER.
func NormalizeTransactionType(raw string) TransactionType {
	if t, ok := transactionTypes[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return t
	}
	return TxnOther
}

var transactionStatuses = map[string]TransactionStatus{
	"SETTLED":   TxnSettled,
	"EXECUTED":  TxnSettled,
	"COMPLETE":  TxnSettled,
	"COMPLETED": TxnSettled,

	"PENDING":     TxnPending,
	"PROCESSING":  TxnPending,
	"IN_PROGRESS": TxnPending,

	"FAILED":   TxnFailed,
	"REJECTED": TxnFailed,
	"ERROR":    TxnFailed,

	"CANCELLED": TxnCancelled,
	"CANCELED":  TxnCancelled,
	"VOIDED":    TxnCancelled,
}

// NormalizeTransactionStatus maps a raw provider status to the domain status.
// Unrecognized values default to SETTLED: historical feeds frequently omit a
// status for records that executed long ago.
func NormalizeTransactionStatus(raw string) TransactionStatus {
	if s, ok := transactionStatuses[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return s
	}
	return TxnSettled
}

var subtypesByType = map[TransactionType]map[string]TransactionSubtype{
	TxnTrade: {
		"BUY":               SubtypeBuy,
		"SELL":              SubtypeSell,
		"SHORT_SELL":        SubtypeShortSell,
		"BUY_TO_COVER":      SubtypeBuyToCover,
		"OPTION_EXERCISE":   SubtypeOptionExercise,
		"OPTION_ASSIGNMENT": SubtypeOptionAssignment,
	},
	TxnTransfer: {
		"DEPOSIT":           SubtypeDeposit,
		"WITHDRAWAL":        SubtypeWithdrawal,
		"ACH":               SubtypeACH,
		"WIRE":              SubtypeWire,
		"JOURNAL":           SubtypeJournal,
		"INTERNAL_TRANSFER": SubtypeInternalTransfer,
	},
	TxnIncome: {
		"DIVIDEND":     SubtypeDividend,
		"INTEREST":     SubtypeInterest,
		"CAPITAL_GAIN": SubtypeCapitalGain,
		"DISTRIBUTION": SubtypeDistribution,
		"REINVESTMENT": SubtypeReinvestment,
	},
	TxnFee: {
		"ACCOUNT_FEE":     SubtypeAccountFee,
		"COMMISSION":      SubtypeCommission,
		"MARGIN_INTEREST": SubtypeMarginInterest,
		"MANAGEMENT_FEE":  SubtypeManagementFee,
		"REGULATORY_FEE":  SubtypeRegulatoryFee,
	},
	TxnOther: {
		"ADJUSTMENT": SubtypeAdjustment,
		"UNKNOWN":    SubtypeUnknown,
	},
}

// DefaultSubtype returns the fallback subtype for a type when a provider
// sends no subtype or an unrecognized one.
func DefaultSubtype(txnType TransactionType) TransactionSubtype {
	switch txnType {
	case TxnTrade:
		return SubtypeBuy
	case TxnTransfer:
		return SubtypeDeposit
	case TxnIncome:
		return SubtypeDividend
	case TxnFee:
		return SubtypeAccountFee
	default:
		return SubtypeUnknown
	}
}

// NormalizeSubtype maps a raw provider subtype within the already-normalized
// type, falling back to the type's default.
func NormalizeSubtype(txnType TransactionType, raw string) TransactionSubtype {
	if raw != "" {
		if sub, ok := subtypesByType[txnType][strings.ToUpper(strings.TrimSpace(raw))]; ok {
			return sub
		}
	}
	return DefaultSubtype(txnType)
}
