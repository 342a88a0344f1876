package fileimport

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/aggregator/internal/domain"
	"github.com/aristath/aggregator/internal/providers"
)

// OFX 1.x (and its QFX variant) is SGML, not XML: tags are rarely closed, so
// a generic XML parser chokes on real bank exports. This scanner treats the
// document as a tag stream and tracks just enough structure to pull out the
// account block and its <STMTTRN> aggregates. OFX 2.x documents are valid
// XML but use the same tag vocabulary, so the same scanner handles both.

type ofxTag struct {
	name  string
	value string
	close bool
}

func parseOFX(content []byte) (*parsed, error) {
	tags := scanOFXTags(string(content))
	if len(tags) == 0 {
		return nil, domain.E(domain.CodeInvalidFile, "no OFX tags found")
	}

	var (
		accountID string
		currency  = "USD"
		balance   decimal.Decimal
		inLedger  bool
		txns      []providers.TransactionData
		current   *providers.TransactionData
		sawSignOn bool
	)

	finishTxn := func() {
		if current != nil && current.ProviderTransactionID != "" {
			txns = append(txns, *current)
		}
		current = nil
	}

	for _, tag := range tags {
		switch tag.name {
		case "OFX":
			sawSignOn = true
		case "CURDEF":
			if tag.value != "" {
				currency = strings.ToUpper(tag.value)
			}
		case "ACCTID":
			if !tag.close && tag.value != "" {
				accountID = tag.value
			}
		case "LEDGERBAL":
			inLedger = !tag.close
		case "BALAMT":
			if inLedger {
				if d, err := decimal.NewFromString(tag.value); err == nil {
					balance = d
				}
			}
		case "STMTTRN":
			if tag.close {
				finishTxn()
			} else {
				finishTxn()
				current = &providers.TransactionData{Currency: currency}
			}
		}

		if current == nil {
			continue
		}
		switch tag.name {
		case "FITID":
			current.ProviderTransactionID = tag.value
		case "TRNTYPE":
			current.TransactionType = tag.value
		case "TRNAMT":
			if d, err := decimal.NewFromString(tag.value); err == nil {
				current.Amount = d
			}
		case "DTPOSTED":
			if t, err := parseOFXDate(tag.value); err == nil {
				current.TransactionDate = t
			}
		case "DTSETTLE":
			if t, err := parseOFXDate(tag.value); err == nil {
				current.SettlementDate = &t
			}
		case "NAME":
			if current.Description == "" {
				current.Description = tag.value
			}
		case "MEMO":
			if tag.value != "" {
				current.Description = tag.value
			}
		case "TICKER":
			current.Symbol = tag.value
		}
	}
	finishTxn()

	if !sawSignOn {
		return nil, domain.E(domain.CodeInvalidFile, "not an OFX document")
	}
	if accountID == "" {
		return nil, domain.E(domain.CodeInvalidFile, "OFX document has no account id")
	}

	result := &parsed{
		accounts: []providers.AccountData{{
			ProviderAccountID:   accountID,
			AccountNumberMasked: maskID(accountID),
			Name:                "Imported " + maskID(accountID),
			AccountType:         "CHECKING",
			Balance:             balance,
			Currency:            currency,
			IsActive:            true,
		}},
		transactions: map[string][]providers.TransactionData{accountID: txns},
	}
	return result, nil
}

// scanOFXTags splits the document into (tag, trailing-text) pairs. The text
// after an open tag up to the next '<' is the tag's value.
func scanOFXTags(doc string) []ofxTag {
	// Skip the OFX 1.x colon-separated header block if present.
	if idx := strings.Index(doc, "<OFX>"); idx > 0 {
		doc = doc[idx:]
	}

	var tags []ofxTag
	for {
		open := strings.IndexByte(doc, '<')
		if open < 0 {
			break
		}
		closeIdx := strings.IndexByte(doc[open:], '>')
		if closeIdx < 0 {
			break
		}
		closeIdx += open

		name := strings.TrimSpace(doc[open+1 : closeIdx])
		doc = doc[closeIdx+1:]

		isClose := strings.HasPrefix(name, "/")
		name = strings.ToUpper(strings.TrimPrefix(name, "/"))
		if name == "" {
			continue
		}

		value := ""
		if !isClose {
			end := strings.IndexByte(doc, '<')
			if end < 0 {
				end = len(doc)
			}
			value = strings.TrimSpace(doc[:end])
		}
		tags = append(tags, ofxTag{name: name, value: value, close: isClose})
	}
	return tags
}

// parseOFXDate handles YYYYMMDD and YYYYMMDDHHMMSS, with or without the
// bracketed timezone suffix some banks append.
func parseOFXDate(raw string) (time.Time, error) {
	if idx := strings.IndexByte(raw, '['); idx > 0 {
		raw = raw[:idx]
	}
	raw = strings.TrimSpace(raw)

	switch {
	case len(raw) >= 14:
		return time.Parse("20060102150405", raw[:14])
	default:
		return time.Parse("20060102", raw)
	}
}
