package metrics

import (
	"testing"

	coremetrics "github.com/nroult/fieldops/core/metrics"
)

type recordSink struct {
	offers int
	claims int
}

func (r *recordSink) RecordOfferResult([]coremetrics.OfferResult) error {
	r.offers++
	return nil
}

func (r *recordSink) RecordClaim(coremetrics.ClaimResult) error {
	r.claims++
	return nil
}

// offerOnlySink does not implement the optional recorder interfaces.
type offerOnlySink struct {
	offers int
}

func (r *offerOnlySink) RecordOfferResult([]coremetrics.OfferResult) error {
	r.offers++
	return nil
}

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	m := NewMultiSink(s1, s2)
	if err := m.RecordOfferResult(nil); err != nil {
		t.Fatalf("record offers: %v", err)
	}
	if err := m.RecordClaim(coremetrics.ClaimResult{}); err != nil {
		t.Fatalf("record claim: %v", err)
	}
	if s1.offers != 1 || s2.offers != 1 || s1.claims != 1 || s2.claims != 1 {
		t.Fatalf("results not forwarded")
	}
}

func TestMultiSinkSkipsUnsupportedRecorders(t *testing.T) {
	s := &offerOnlySink{}
	m := NewMultiSink(s)
	if err := m.RecordClaim(coremetrics.ClaimResult{}); err != nil {
		t.Fatalf("record claim: %v", err)
	}
	if err := m.RecordTimeout(coremetrics.TimeoutResult{}); err != nil {
		t.Fatalf("record timeout: %v", err)
	}
	if s.offers != 0 {
		t.Fatalf("unexpected forwarding to unsupported sink")
	}
}
