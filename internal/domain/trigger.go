// Package domain defines core data structures used throughout the purchase bot.
package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// TriggerKind enumerates the purchase trigger variants.
type TriggerKind int

const (
	// TriggerDailyPurchase buys once at day-open regardless of price.
	TriggerDailyPurchase TriggerKind = iota
	// TriggerPriceBelowAverage buys when the ask drops below the overall
	// average entry price of the open position.
	TriggerPriceBelowAverage
	// TriggerPriceBelowLastN buys when the ask drops below the average fill
	// price of the most recent N buy orders.
	TriggerPriceBelowLastN
)

const (
	dailyPurchaseName     = "DAILY_PURCHASE"
	priceBelowAverageName = "PRICE_LOWER_THAN_AVERAGE_PURCHASE_PRICE"
	lastNPrefix           = "PRICE_LOWER_THAN_LAST_"
	lastNSuffix           = "_ORDER_PURCHASE_AVERAGE"
)

// Trigger is a purchase trigger. Window is set only for TriggerPriceBelowLastN;
// it stays zero for the other kinds so Trigger remains usable as a map key.
type Trigger struct {
	Kind   TriggerKind
	Window int
}

// String returns the configuration-grammar name of the trigger.
func (t Trigger) String() string {
	switch t.Kind {
	case TriggerDailyPurchase:
		return dailyPurchaseName
	case TriggerPriceBelowAverage:
		return priceBelowAverageName
	case TriggerPriceBelowLastN:
		return fmt.Sprintf("%s%d%s", lastNPrefix, t.Window, lastNSuffix)
	}
	return fmt.Sprintf("UNKNOWN_TRIGGER_%d", int(t.Kind))
}

// NeedsReference reports whether the trigger compares the ask against a
// reference price. The day-open purchase is unconditional.
func (t Trigger) NeedsReference() bool {
	return t.Kind != TriggerDailyPurchase
}

// ParseTrigger parses a single trigger name, for example
// "PRICE_LOWER_THAN_LAST_20_ORDER_PURCHASE_AVERAGE".
func ParseTrigger(s string) (Trigger, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == dailyPurchaseName:
		return Trigger{Kind: TriggerDailyPurchase}, nil
	case s == priceBelowAverageName:
		return Trigger{Kind: TriggerPriceBelowAverage}, nil
	case strings.HasPrefix(s, lastNPrefix) && strings.HasSuffix(s, lastNSuffix):
		raw := strings.TrimSuffix(strings.TrimPrefix(s, lastNPrefix), lastNSuffix)
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Trigger{}, fmt.Errorf("invalid order window %q in trigger %q", raw, s)
		}
		return Trigger{Kind: TriggerPriceBelowLastN, Window: n}, nil
	}
	return Trigger{}, fmt.Errorf("unknown trigger %q", s)
}

// Windows collects the distinct last-N window sizes from a trigger set.
func Windows(triggers []Trigger) []int {
	seen := make(map[int]struct{}, len(triggers))
	var out []int
	for _, t := range triggers {
		if t.Kind != TriggerPriceBelowLastN {
			continue
		}
		if _, ok := seen[t.Window]; ok {
			continue
		}
		seen[t.Window] = struct{}{}
		out = append(out, t.Window)
	}
	return out
}
