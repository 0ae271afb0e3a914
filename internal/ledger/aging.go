package ledger

import (
	"fmt"
	"time"

	"github.com/meridiandist/meridian/internal/money"
)

// Mode selects how the aging metric is measured.
type Mode string

const (
	// ModeDue measures days past the effective due date.
	ModeDue Mode = "due"
	// ModeOutstanding measures days since the invoice date.
	ModeOutstanding Mode = "outstanding"
)

// ParseMode validates a mode string, defaulting empty input to ModeDue.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDue, "":
		return ModeDue, nil
	case ModeOutstanding:
		return ModeOutstanding, nil
	default:
		return "", fmt.Errorf("%w: unknown aging mode %q", ErrValidation, s)
	}
}

// DefaultNetDays is the payment term applied in due mode when an invoice
// carries no explicit due date.
const DefaultNetDays = 30

// Bucket names an aging band.
type Bucket string

const (
	BucketCurrent Bucket = "current"
	Bucket1To30   Bucket = "1-30"
	Bucket31To60  Bucket = "31-60"
	Bucket61To90  Bucket = "61-90"
	Bucket90Plus  Bucket = "90+"
)

// BucketTotals accumulates one amount per bucket plus a total. JSON field
// names follow the report contract.
type BucketTotals struct {
	Current money.Money `json:"current"`
	D1To30  money.Money `json:"d1_30"`
	D31To60 money.Money `json:"d31_60"`
	D61To90 money.Money `json:"d61_90"`
	D90Plus money.Money `json:"d90_plus"`
	Total   money.Money `json:"total"`
}

func (t *BucketTotals) add(b Bucket, amount money.Money) {
	switch b {
	case BucketCurrent:
		t.Current = t.Current.Add(amount)
	case Bucket1To30:
		t.D1To30 = t.D1To30.Add(amount)
	case Bucket31To60:
		t.D31To60 = t.D31To60.Add(amount)
	case Bucket61To90:
		t.D61To90 = t.D61To90.Add(amount)
	case Bucket90Plus:
		t.D90Plus = t.D90Plus.Add(amount)
	}
	t.Total = t.Total.Add(amount)
}

// Merge adds another set of totals elementwise.
func (t *BucketTotals) Merge(o BucketTotals) {
	t.Current = t.Current.Add(o.Current)
	t.D1To30 = t.D1To30.Add(o.D1To30)
	t.D31To60 = t.D31To60.Add(o.D31To60)
	t.D61To90 = t.D61To90.Add(o.D61To90)
	t.D90Plus = t.D90Plus.Add(o.D90Plus)
	t.Total = t.Total.Add(o.Total)
}

// EndOfDay normalizes an instant to the last nanosecond of its calendar day,
// so an invoice due "today" is not yet past due for any asOf within the day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// daysBetween counts whole calendar days from a to b, ignoring clock time.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	start := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	end := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start) / (24 * time.Hour))
}

// AgingMetric computes the day count an invoice is aged by, per mode. The
// result is never negative.
func AgingMetric(inv Invoice, asOf time.Time, mode Mode, netDays int) int {
	if netDays <= 0 {
		netDays = DefaultNetDays
	}
	var anchor time.Time
	switch mode {
	case ModeOutstanding:
		anchor = inv.Date
	default:
		if inv.DueDate != nil {
			anchor = *inv.DueDate
		} else {
			anchor = inv.Date.AddDate(0, 0, netDays)
		}
	}
	metric := daysBetween(anchor, asOf)
	if metric < 0 {
		return 0
	}
	return metric
}

// ClassifyMetric maps a day count onto a bucket.
//
// Outstanding mode is shifted by 30 because "current" there means "not yet due
// under default terms", and its top band folds 61-90 handling together: the
// 61-90 bucket is unreachable in that mode. That asymmetry is the documented
// report behavior and is kept as-is.
func ClassifyMetric(metric int, mode Mode) Bucket {
	if mode == ModeOutstanding {
		switch {
		case metric <= 30:
			return BucketCurrent
		case metric <= 60:
			return Bucket1To30
		case metric <= 90:
			return Bucket31To60
		default:
			return Bucket90Plus
		}
	}
	switch {
	case metric == 0:
		return BucketCurrent
	case metric <= 30:
		return Bucket1To30
	case metric <= 60:
		return Bucket31To60
	case metric <= 90:
		return Bucket61To90
	default:
		return Bucket90Plus
	}
}
