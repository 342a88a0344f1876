// Package ownership resolves the entity to account to connection to user
// chain used to authorize every read and write.
package ownership

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/aggregator/internal/domain"
)

// ConnectionFinder loads provider connections by id.
type ConnectionFinder interface {
	FindByID(ctx context.Context, id string) (*domain.ProviderConnection, error)
}

// AccountFinder loads accounts by id.
type AccountFinder interface {
	FindByID(ctx context.Context, id string) (*domain.Account, error)
}

// HoldingFinder loads holdings by id.
type HoldingFinder interface {
	FindByID(ctx context.Context, id string) (*domain.Holding, error)
}

// TransactionFinder loads transactions by id.
type TransactionFinder interface {
	FindByID(ctx context.Context, id string) (*domain.Transaction, error)
}

// Verifier walks the ownership chain and short-circuits on the first missing
// link. On success it returns the fetched entities so callers need not
// re-fetch them.
type Verifier struct {
	connections  ConnectionFinder
	accounts     AccountFinder
	holdings     HoldingFinder
	transactions TransactionFinder
	log          zerolog.Logger
}

// NewVerifier creates an ownership verifier over the entity finders.
func NewVerifier(connections ConnectionFinder, accounts AccountFinder, holdings HoldingFinder, transactions TransactionFinder, log zerolog.Logger) *Verifier {
	return &Verifier{
		connections:  connections,
		accounts:     accounts,
		holdings:     holdings,
		transactions: transactions,
		log:          log.With().Str("component", "ownership").Logger(),
	}
}

// VerifyConnectionOwnership checks that the connection exists and belongs to
// the user.
func (v *Verifier) VerifyConnectionOwnership(ctx context.Context, connectionID, userID string) (*domain.ProviderConnection, error) {
	conn, err := v.connections.FindByID(ctx, connectionID)
	if err != nil {
		return nil, domain.Wrap(domain.CodeDatabaseError, "failed to load connection", err)
	}
	if conn == nil {
		return nil, domain.Ef(domain.CodeConnectionNotFound, "connection %s not found", connectionID)
	}
	if conn.UserID != userID {
		v.log.Warn().
			Str("connection_id", connectionID).
			Str("user_id", userID).
			Msg("ownership check failed for connection")
		return nil, domain.E(domain.CodeNotOwnedByUser, "connection does not belong to user")
	}
	return conn, nil
}

// VerifyAccountOwnership checks the account's chain up to the user and
// returns both the account and its connection.
func (v *Verifier) VerifyAccountOwnership(ctx context.Context, accountID, userID string) (*domain.Account, *domain.ProviderConnection, error) {
	acct, err := v.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, nil, domain.Wrap(domain.CodeDatabaseError, "failed to load account", err)
	}
	if acct == nil {
		return nil, nil, domain.Ef(domain.CodeAccountNotFound, "account %s not found", accountID)
	}
	conn, err := v.VerifyConnectionOwnership(ctx, acct.ConnectionID, userID)
	if err != nil {
		return nil, nil, err
	}
	return acct, conn, nil
}

// VerifyAccountOwnershipOnly checks the account's chain without returning
// payload. Used where the caller only needs the authorization decision.
func (v *Verifier) VerifyAccountOwnershipOnly(ctx context.Context, accountID, userID string) error {
	_, _, err := v.VerifyAccountOwnership(ctx, accountID, userID)
	return err
}

// VerifyHoldingOwnership checks the holding's chain up to the user and
// returns the holding.
func (v *Verifier) VerifyHoldingOwnership(ctx context.Context, holdingID, userID string) (*domain.Holding, error) {
	h, err := v.holdings.FindByID(ctx, holdingID)
	if err != nil {
		return nil, domain.Wrap(domain.CodeDatabaseError, "failed to load holding", err)
	}
	if h == nil {
		return nil, domain.Ef(domain.CodeHoldingNotFound, "holding %s not found", holdingID)
	}
	if err := v.VerifyAccountOwnershipOnly(ctx, h.AccountID, userID); err != nil {
		return nil, err
	}
	return h, nil
}

// VerifyTransactionOwnership checks the transaction's chain up to the user
// and returns the transaction.
func (v *Verifier) VerifyTransactionOwnership(ctx context.Context, transactionID, userID string) (*domain.Transaction, error) {
	txn, err := v.transactions.FindByID(ctx, transactionID)
	if err != nil {
		return nil, domain.Wrap(domain.CodeDatabaseError, "failed to load transaction", err)
	}
	if txn == nil {
		return nil, domain.Ef(domain.CodeTransactionNotFound, "transaction %s not found", transactionID)
	}
	if err := v.VerifyAccountOwnershipOnly(ctx, txn.AccountID, userID); err != nil {
		return nil, err
	}
	return txn, nil
}
