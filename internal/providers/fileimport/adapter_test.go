package fileimport

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aggregator/internal/crypto"
	"github.com/aristath/aggregator/internal/domain"
)

const sampleCSV = `account_id,account_name,currency,transaction_id,date,type,status,amount,description,symbol,quantity,price
ACCT-001,My Brokerage,USD,TXN-1,2026-01-05,BUY,SETTLED,-1500.00,BUY AAPL,AAPL,10,150.00
ACCT-001,My Brokerage,USD,TXN-2,2026-01-10,DIVIDEND,SETTLED,12.50,AAPL dividend,AAPL,,
ACCT-001,My Brokerage,USD,TXN-3,2026-02-01,DEPOSIT,SETTLED,2000.00,Monthly deposit,,,
`

const sampleOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102

<OFX>
<SIGNONMSGSRSV1><SONRS><STATUS><CODE>0<SEVERITY>INFO</STATUS></SONRS></SIGNONMSGSRSV1>
<BANKMSGSRSV1><STMTTRNRS><STMTRS>
<CURDEF>USD
<BANKACCTFROM><ACCTID>987654321<ACCTTYPE>CHECKING</BANKACCTFROM>
<BANKTRANLIST>
<STMTTRN><TRNTYPE>DEBIT<DTPOSTED>20260110<TRNAMT>-42.17<FITID>F-100<NAME>Grocery store</STMTTRN>
<STMTTRN><TRNTYPE>CREDIT<DTPOSTED>20260115120000<TRNAMT>2500.00<FITID>F-101<NAME>Payroll<MEMO>Employer payroll</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL><BALAMT>3120.55<DTASOF>20260131</LEDGERBAL>
</STMTRS></STMTTRNRS></BANKMSGSRSV1>
</OFX>`

func csvCreds() crypto.CredentialBundle {
	return crypto.CredentialBundle{
		"file_content": []byte(sampleCSV),
		"file_format":  "csv",
		"file_name":    "export.csv",
	}
}

func TestCSVFetchAccounts(t *testing.T) {
	a := New(zerolog.Nop())

	accounts, err := a.FetchAccounts(context.Background(), csvCreds())
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	acct := accounts[0]
	assert.Equal(t, "ACCT-001", acct.ProviderAccountID)
	assert.Equal(t, "My Brokerage", acct.Name)
	assert.Equal(t, "USD", acct.Currency)
	// Balance is the sum of rows: -1500 + 12.50 + 2000.
	assert.Equal(t, "512.5", acct.Balance.String())
}

func TestCSVFetchTransactions(t *testing.T) {
	a := New(zerolog.Nop())

	txns, err := a.FetchTransactions(context.Background(), csvCreds(), "ACCT-001", nil, nil)
	require.NoError(t, err)
	require.Len(t, txns, 3)

	buy := txns[0]
	assert.Equal(t, "TXN-1", buy.ProviderTransactionID)
	assert.Equal(t, "BUY", buy.TransactionType)
	assert.Equal(t, "AAPL", buy.Symbol)
	require.NotNil(t, buy.Quantity)
	assert.Equal(t, "10", buy.Quantity.String())
	require.NotNil(t, buy.UnitPrice)
	assert.Equal(t, "150", buy.UnitPrice.String())
}

func TestCSVDateWindowFilter(t *testing.T) {
	a := New(zerolog.Nop())

	start := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	txns, err := a.FetchTransactions(context.Background(), csvCreds(), "ACCT-001", &start, &end)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "TXN-2", txns[0].ProviderTransactionID)
}

func TestCSVMissingRequiredColumn(t *testing.T) {
	a := New(zerolog.Nop())
	creds := crypto.CredentialBundle{
		"file_content": []byte("account_id,date,amount\nA,2026-01-01,5\n"),
		"file_format":  "csv",
	}
	_, err := a.FetchAccounts(context.Background(), creds)
	assert.Equal(t, domain.CodeInvalidFile, domain.CodeOf(err))
}

func TestOFXParse(t *testing.T) {
	a := New(zerolog.Nop())
	creds := crypto.CredentialBundle{
		"file_content": []byte(sampleOFX),
		"file_format":  "qfx",
		"file_name":    "statement.qfx",
	}

	accounts, err := a.FetchAccounts(context.Background(), creds)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "987654321", accounts[0].ProviderAccountID)
	assert.Equal(t, "3120.55", accounts[0].Balance.String())
	assert.Equal(t, "USD", accounts[0].Currency)

	txns, err := a.FetchTransactions(context.Background(), creds, "987654321", nil, nil)
	require.NoError(t, err)
	require.Len(t, txns, 2)

	assert.Equal(t, "F-100", txns[0].ProviderTransactionID)
	assert.Equal(t, "DEBIT", txns[0].TransactionType)
	assert.Equal(t, "-42.17", txns[0].Amount.String())
	assert.Equal(t, "Grocery store", txns[0].Description)
	assert.Equal(t, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), txns[0].TransactionDate)

	// MEMO overrides NAME when present.
	assert.Equal(t, "Employer payroll", txns[1].Description)
	assert.Equal(t, time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC), txns[1].TransactionDate)
}

func TestOFXRejectsGarbage(t *testing.T) {
	a := New(zerolog.Nop())
	creds := crypto.CredentialBundle{
		"file_content": []byte("this is not a statement"),
		"file_format":  "ofx",
	}
	_, err := a.FetchAccounts(context.Background(), creds)
	assert.Equal(t, domain.CodeInvalidFile, domain.CodeOf(err))
}

func TestUnsupportedFormat(t *testing.T) {
	a := New(zerolog.Nop())
	creds := crypto.CredentialBundle{
		"file_content": []byte("data"),
		"file_format":  "xlsx",
	}
	_, err := a.FetchAccounts(context.Background(), creds)
	assert.Equal(t, domain.CodeInvalidFile, domain.CodeOf(err))
}

func TestEmptyFile(t *testing.T) {
	a := New(zerolog.Nop())
	creds := crypto.CredentialBundle{"file_format": "csv"}
	_, err := a.FetchAccounts(context.Background(), creds)
	assert.Equal(t, domain.CodeInvalidFile, domain.CodeOf(err))
}

func TestFetchHoldingsAlwaysEmpty(t *testing.T) {
	a := New(zerolog.Nop())
	holdings, err := a.FetchHoldings(context.Background(), csvCreds(), "ACCT-001")
	require.NoError(t, err)
	assert.Empty(t, holdings)
}
