package fileimport

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/aggregator/internal/domain"
	"github.com/aristath/aggregator/internal/providers"
)

// CSV statement layout: a header row naming columns, one transaction per
// row. Recognized columns (case-insensitive): account_id, account_name,
// currency, transaction_id, date, type, subtype, status, amount,
// description, symbol, security_name, quantity, price, commission.
// account_id, transaction_id, date and amount are required per row.

var csvDateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"2006-01-02T15:04:05Z07:00",
}

func parseCSV(content []byte) (*parsed, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, domain.Wrap(domain.CodeInvalidFile, "failed to read CSV header", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"account_id", "transaction_id", "date", "amount"} {
		if _, ok := cols[required]; !ok {
			return nil, domain.Ef(domain.CodeInvalidFile, "CSV is missing required column %q", required)
		}
	}

	field := func(row []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	result := &parsed{transactions: make(map[string][]providers.TransactionData)}
	accountNames := make(map[string]string)
	accountCurrencies := make(map[string]string)
	accountOrder := []string{}

	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, domain.Wrap(domain.CodeInvalidFile, "malformed CSV row", err)
		}

		accountID := field(row, "account_id")
		txnID := field(row, "transaction_id")
		if accountID == "" || txnID == "" {
			return nil, domain.Ef(domain.CodeInvalidFile, "row %d is missing account_id or transaction_id", line)
		}

		amount, err := decimal.NewFromString(field(row, "amount"))
		if err != nil {
			return nil, domain.Ef(domain.CodeInvalidFile, "row %d has invalid amount %q", line, field(row, "amount"))
		}

		date, err := parseCSVDate(field(row, "date"))
		if err != nil {
			return nil, domain.Ef(domain.CodeInvalidFile, "row %d has invalid date %q", line, field(row, "date"))
		}

		currency := strings.ToUpper(field(row, "currency"))
		if currency == "" {
			currency = "USD"
		}

		if _, seen := accountNames[accountID]; !seen {
			accountOrder = append(accountOrder, accountID)
			accountCurrencies[accountID] = currency
		}
		if name := field(row, "account_name"); name != "" {
			accountNames[accountID] = name
		} else if _, ok := accountNames[accountID]; !ok {
			accountNames[accountID] = "Imported " + accountID
		}

		txn := providers.TransactionData{
			ProviderTransactionID: txnID,
			TransactionType:       field(row, "type"),
			Subtype:               field(row, "subtype"),
			Status:                field(row, "status"),
			Amount:                amount,
			Currency:              currency,
			Description:           field(row, "description"),
			Symbol:                field(row, "symbol"),
			SecurityName:          field(row, "security_name"),
			TransactionDate:       date,
		}
		if q := field(row, "quantity"); q != "" {
			if d, err := decimal.NewFromString(q); err == nil {
				txn.Quantity = &d
			}
		}
		if p := field(row, "price"); p != "" {
			if d, err := decimal.NewFromString(p); err == nil {
				txn.UnitPrice = &d
			}
		}
		if c := field(row, "commission"); c != "" {
			if d, err := decimal.NewFromString(c); err == nil {
				txn.Commission = &d
			}
		}

		result.transactions[accountID] = append(result.transactions[accountID], txn)
	}

	if len(accountOrder) == 0 {
		return nil, domain.E(domain.CodeInvalidFile, "CSV contains no transaction rows")
	}

	for _, id := range accountOrder {
		result.accounts = append(result.accounts, providers.AccountData{
			ProviderAccountID:   id,
			AccountNumberMasked: maskID(id),
			Name:                accountNames[id],
			AccountType:         "BROKERAGE",
			Balance:             sumAmounts(result.transactions[id]),
			Currency:            accountCurrencies[id],
			IsActive:            true,
		})
	}
	return result, nil
}

func parseCSVDate(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range csvDateFormats {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func sumAmounts(txns []providers.TransactionData) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txns {
		total = total.Add(t.Amount)
	}
	return total
}

func maskID(id string) string {
	if len(id) <= 4 {
		return "****"
	}
	return "****" + id[len(id)-4:]
}
