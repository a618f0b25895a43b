package chain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeeQuoteMaxFee(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		quote  FeeQuote
		want   string
		wantOK bool
	}{
		{
			name:   "dynamic quote uses the fee cap",
			quote:  FeeQuote{Dynamic: true, GasPrice: big.NewInt(1), MaxFeePerGas: big.NewInt(30_000_000_000), MaxPriorityFeePerGas: big.NewInt(2_000_000_000)},
			want:   "0.00063",
			wantOK: true,
		},
		{
			name:   "legacy quote uses the gas price",
			quote:  FeeQuote{GasPrice: big.NewInt(20_000_000_000)},
			want:   "0.00042",
			wantOK: true,
		},
		{
			name:  "empty quote",
			quote: FeeQuote{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fee, ok := tt.quote.MaxFee(MinGasLimit)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, fee.String())
			}
		})
	}
}
