package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccountType classifies a financial account.
type AccountType string

const (
	AccountBrokerage    AccountType = "BROKERAGE"
	AccountIRA          AccountType = "IRA"
	AccountRothIRA      AccountType = "ROTH_IRA"
	Account401K         AccountType = "401K"
	Account403B         AccountType = "403B"
	AccountHSA          AccountType = "HSA"
	AccountChecking     AccountType = "CHECKING"
	AccountSavings      AccountType = "SAVINGS"
	AccountMoneyMarket  AccountType = "MONEY_MARKET"
	AccountCD           AccountType = "CD"
	AccountCreditCard   AccountType = "CREDIT_CARD"
	AccountLineOfCredit AccountType = "LINE_OF_CREDIT"
	AccountLoan         AccountType = "LOAN"
	AccountMortgage     AccountType = "MORTGAGE"
	AccountOther        AccountType = "OTHER"
)

// Account is a provider account owned via a connection. The provider's own
// account id is unique within the connection and is the upsert key. Accounts
// are never destroyed, only deactivated.
type Account struct {
	ID                string
	ConnectionID      string
	ProviderAccountID string
	NumberMasked      string
	Name              string
	Type              AccountType
	Balance           Money
	AvailableBalance  *Money
	Currency          string
	IsActive          bool
	LastSyncedAt      *time.Time
	ProviderMetadata  map[string]interface{}
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewAccount creates an account, enforcing the currency invariant:
// balance.currency == account currency == available_balance.currency.
func NewAccount(connectionID, providerAccountID, numberMasked, name string, accountType AccountType, balance Money, available *Money, isActive bool, metadata map[string]interface{}, now time.Time) (*Account, error) {
	if err := checkAccountCurrencies(balance, available, balance.Currency); err != nil {
		return nil, err
	}

	t := now
	return &Account{
		ID:                uuid.NewString(),
		ConnectionID:      connectionID,
		ProviderAccountID: providerAccountID,
		NumberMasked:      numberMasked,
		Name:              name,
		Type:              accountType,
		Balance:           balance,
		AvailableBalance:  available,
		Currency:          balance.Currency,
		IsActive:          isActive,
		LastSyncedAt:      &t,
		ProviderMetadata:  metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func checkAccountCurrencies(balance Money, available *Money, currency string) error {
	if balance.Currency != currency {
		return Ef(CodeCurrencyMismatch, "balance currency %s != account currency %s", balance.Currency, currency)
	}
	if available != nil && available.Currency != currency {
		return Ef(CodeCurrencyMismatch, "available balance currency %s != account currency %s", available.Currency, currency)
	}
	return nil
}

// UpdateBalance replaces the balance (and optionally the available balance),
// preserving the currency invariant.
func (a *Account) UpdateBalance(balance Money, available *Money, now time.Time) error {
	if err := checkAccountCurrencies(balance, available, a.Currency); err != nil {
		return err
	}
	a.Balance = balance
	if available != nil {
		a.AvailableBalance = available
	}
	a.UpdatedAt = now
	return nil
}

// UpdateFromProvider applies non-balance provider data. Nil arguments leave
// the corresponding field unchanged.
func (a *Account) UpdateFromProvider(name *string, numberMasked *string, metadata map[string]interface{}, now time.Time) {
	if name != nil {
		a.Name = *name
	}
	if numberMasked != nil {
		a.NumberMasked = *numberMasked
	}
	if metadata != nil {
		a.ProviderMetadata = metadata
	}
	a.UpdatedAt = now
}

// Activate marks the account active.
func (a *Account) Activate(now time.Time) {
	a.IsActive = true
	a.UpdatedAt = now
}

// Deactivate marks the account inactive. Accounts are never deleted.
func (a *Account) Deactivate(now time.Time) {
	a.IsActive = false
	a.UpdatedAt = now
}

// MarkSynced stamps the last sync time.
func (a *Account) MarkSynced(now time.Time) {
	t := now
	a.LastSyncedAt = &t
	a.UpdatedAt = now
}
