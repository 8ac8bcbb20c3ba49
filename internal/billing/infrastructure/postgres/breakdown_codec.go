package postgres

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	billing "sams-billing/internal/billing/domain"
)

// The store historically persisted breakdowns in two shapes: an ordered
// array and an object keyed by period. Both are normalized to the ordered
// list at load time; the observed shape is restored at write time.

type breakdownEntryDoc struct {
	Period       string          `json:"period,omitempty"`
	Consumption  int64           `json:"consumption"`
	Charge       decimal.Decimal `json:"charge"`
	OtherCharges decimal.Decimal `json:"otherCharges"`
}

type paymentDoc struct {
	Amount decimal.Decimal `json:"amount"`
	Date   time.Time       `json:"date"`
}

func decodeBreakdown(raw []byte) ([]billing.BreakdownEntry, billing.BreakdownShape, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, billing.BreakdownShapeList, nil
	}

	switch trimmed[0] {
	case '[':
		var docs []breakdownEntryDoc
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, "", err
		}
		entries := make([]billing.BreakdownEntry, 0, len(docs))
		for _, doc := range docs {
			period, err := billing.ParsePeriodKey(doc.Period)
			if err != nil {
				return nil, "", err
			}
			entries = append(entries, billing.BreakdownEntry{
				Period:       period,
				Consumption:  doc.Consumption,
				Charge:       doc.Charge,
				OtherCharges: doc.OtherCharges,
			})
		}
		return entries, billing.BreakdownShapeList, nil

	case '{':
		var docs map[string]breakdownEntryDoc
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, "", err
		}
		keys := make([]string, 0, len(docs))
		for key := range docs {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		entries := make([]billing.BreakdownEntry, 0, len(keys))
		for _, key := range keys {
			period, err := billing.ParsePeriodKey(key)
			if err != nil {
				return nil, "", err
			}
			doc := docs[key]
			entries = append(entries, billing.BreakdownEntry{
				Period:       period,
				Consumption:  doc.Consumption,
				Charge:       doc.Charge,
				OtherCharges: doc.OtherCharges,
			})
		}
		return entries, billing.BreakdownShapeKeyed, nil
	}
	return nil, "", errors.New("bill repo: unrecognized breakdown shape")
}

func encodeBreakdown(entries []billing.BreakdownEntry, shape billing.BreakdownShape) ([]byte, error) {
	if shape == billing.BreakdownShapeKeyed {
		docs := make(map[string]breakdownEntryDoc, len(entries))
		for _, entry := range entries {
			docs[entry.Period.String()] = breakdownEntryDoc{
				Consumption:  entry.Consumption,
				Charge:       entry.Charge,
				OtherCharges: entry.OtherCharges,
			}
		}
		return json.Marshal(docs)
	}

	docs := make([]breakdownEntryDoc, 0, len(entries))
	for _, entry := range entries {
		docs = append(docs, breakdownEntryDoc{
			Period:       entry.Period.String(),
			Consumption:  entry.Consumption,
			Charge:       entry.Charge,
			OtherCharges: entry.OtherCharges,
		})
	}
	return json.Marshal(docs)
}

func decodePayments(raw []byte) ([]billing.Payment, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var docs []paymentDoc
	if err := json.Unmarshal(trimmed, &docs); err != nil {
		return nil, err
	}
	payments := make([]billing.Payment, 0, len(docs))
	for _, doc := range docs {
		payments = append(payments, billing.Payment{Amount: doc.Amount, Date: doc.Date.UTC()})
	}
	return payments, nil
}
