package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Trigger
		wantErr bool
	}{
		{
			name:  "daily purchase",
			input: "DAILY_PURCHASE",
			want:  Trigger{Kind: TriggerDailyPurchase},
		},
		{
			name:  "price below overall average",
			input: "PRICE_LOWER_THAN_AVERAGE_PURCHASE_PRICE",
			want:  Trigger{Kind: TriggerPriceBelowAverage},
		},
		{
			name:  "price below last 20 orders",
			input: "PRICE_LOWER_THAN_LAST_20_ORDER_PURCHASE_AVERAGE",
			want:  Trigger{Kind: TriggerPriceBelowLastN, Window: 20},
		},
		{
			name:  "surrounding whitespace trimmed",
			input: "  DAILY_PURCHASE  ",
			want:  Trigger{Kind: TriggerDailyPurchase},
		},
		{
			name:    "unknown trigger",
			input:   "SELL_EVERYTHING",
			wantErr: true,
		},
		{
			name:    "non-numeric window",
			input:   "PRICE_LOWER_THAN_LAST_X_ORDER_PURCHASE_AVERAGE",
			wantErr: true,
		},
		{
			name:    "zero window",
			input:   "PRICE_LOWER_THAN_LAST_0_ORDER_PURCHASE_AVERAGE",
			wantErr: true,
		},
		{
			name:    "negative window",
			input:   "PRICE_LOWER_THAN_LAST_-3_ORDER_PURCHASE_AVERAGE",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTrigger(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestTriggerString_RoundTrips(t *testing.T) {
	triggers := []Trigger{
		{Kind: TriggerDailyPurchase},
		{Kind: TriggerPriceBelowAverage},
		{Kind: TriggerPriceBelowLastN, Window: 7},
	}

	for _, trig := range triggers {
		parsed, err := ParseTrigger(trig.String())
		require.NoError(t, err, "parsing %q", trig.String())
		require.Equal(t, trig, parsed)
	}
}

func TestWindows(t *testing.T) {
	triggers := []Trigger{
		{Kind: TriggerDailyPurchase},
		{Kind: TriggerPriceBelowLastN, Window: 20},
		{Kind: TriggerPriceBelowAverage},
		{Kind: TriggerPriceBelowLastN, Window: 5},
		{Kind: TriggerPriceBelowLastN, Window: 20}, // duplicate
	}

	require.Equal(t, []int{20, 5}, Windows(triggers))
	require.Empty(t, Windows([]Trigger{{Kind: TriggerDailyPurchase}}))
}

func TestNeedsReference(t *testing.T) {
	require.False(t, Trigger{Kind: TriggerDailyPurchase}.NeedsReference())
	require.True(t, Trigger{Kind: TriggerPriceBelowAverage}.NeedsReference())
	require.True(t, Trigger{Kind: TriggerPriceBelowLastN, Window: 3}.NeedsReference())
}
