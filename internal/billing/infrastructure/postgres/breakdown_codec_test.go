package postgres

import (
	"testing"

	"github.com/shopspring/decimal"

	billing "sams-billing/internal/billing/domain"
)

func TestDecodeBreakdownList(t *testing.T) {
	raw := []byte(`[
		{"period":"2026-01","consumption":10,"charge":"25.00","otherCharges":"0"},
		{"period":"2026-02","consumption":0,"charge":"0.00","otherCharges":"3.50"}
	]`)

	entries, shape, err := decodeBreakdown(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if shape != billing.BreakdownShapeList {
		t.Fatalf("shape = %s, want list", shape)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Period.String() != "2026-01" || entries[0].Consumption != 10 {
		t.Fatalf("entry 0 = %+v", entries[0])
	}
	if !entries[1].OtherCharges.Equal(decimal.RequireFromString("3.50")) {
		t.Fatalf("entry 1 otherCharges = %s, want 3.50", entries[1].OtherCharges)
	}
}

func TestDecodeBreakdownKeyedNormalizesOrder(t *testing.T) {
	// Object-shaped documents carry no order; decoding sorts by period key.
	raw := []byte(`{
		"2026-03":{"consumption":25,"charge":"62.50","otherCharges":"0"},
		"2026-01":{"consumption":10,"charge":"25.00","otherCharges":"0"},
		"2026-02":{"consumption":0,"charge":"0.00","otherCharges":"0"}
	}`)

	entries, shape, err := decodeBreakdown(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if shape != billing.BreakdownShapeKeyed {
		t.Fatalf("shape = %s, want keyed", shape)
	}
	want := []string{"2026-01", "2026-02", "2026-03"}
	for i, entry := range entries {
		if entry.Period.String() != want[i] {
			t.Fatalf("entry %d period = %s, want %s", i, entry.Period, want[i])
		}
	}
}

func TestEncodeBreakdownRestoresShape(t *testing.T) {
	for _, raw := range [][]byte{
		[]byte(`[{"period":"2026-01","consumption":10,"charge":"25.00","otherCharges":"0"}]`),
		[]byte(`{"2026-01":{"consumption":10,"charge":"25.00","otherCharges":"0"}}`),
	} {
		entries, shape, err := decodeBreakdown(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		encoded, err := encodeBreakdown(entries, shape)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		reread, reshape, err := decodeBreakdown(encoded)
		if err != nil {
			t.Fatalf("redecode: %v", err)
		}
		if reshape != shape {
			t.Fatalf("shape changed %s -> %s", shape, reshape)
		}
		if len(reread) != 1 || reread[0].Consumption != 10 || !reread[0].Charge.Equal(decimal.RequireFromString("25.00")) {
			t.Fatalf("round trip lost data: %+v", reread)
		}
	}
}

func TestDecodeBreakdownEmpty(t *testing.T) {
	for _, raw := range [][]byte{nil, []byte("null"), []byte("  ")} {
		entries, shape, err := decodeBreakdown(raw)
		if err != nil {
			t.Fatalf("decode %q: %v", raw, err)
		}
		if len(entries) != 0 || shape != billing.BreakdownShapeList {
			t.Fatalf("decode %q = %d entries, shape %s", raw, len(entries), shape)
		}
	}
}

func TestDecodeBreakdownRejectsGarbage(t *testing.T) {
	if _, _, err := decodeBreakdown([]byte(`"oops"`)); err == nil {
		t.Fatal("scalar accepted as breakdown")
	}
	if _, _, err := decodeBreakdown([]byte(`[{"period":"January","consumption":1,"charge":"1"}]`)); err == nil {
		t.Fatal("malformed period accepted")
	}
}
