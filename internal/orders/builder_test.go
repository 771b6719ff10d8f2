package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(n int) *int { return &n }

func TestMergeLines(t *testing.T) {
	tests := []struct {
		name       string
		lines      []LineRequest
		defaultQty int
		want       []mergedLine
		wantMsg    string
	}{
		{
			name:    "empty",
			wantMsg: MsgMissingData,
		},
		{
			name:       "default quantity",
			lines:      []LineRequest{{ProductID: "a"}},
			defaultQty: 1,
			want:       []mergedLine{{productID: "a", qty: 1}},
		},
		{
			name:       "zero default falls back to one",
			lines:      []LineRequest{{ProductID: "a"}},
			defaultQty: 0,
			want:       []mergedLine{{productID: "a", qty: 1}},
		},
		{
			name:       "duplicates fold into first occurrence",
			lines:      []LineRequest{{ProductID: "a", Quantity: intp(2)}, {ProductID: "b"}, {ProductID: " a ", Quantity: intp(3)}},
			defaultQty: 1,
			want:       []mergedLine{{productID: "a", qty: 5}, {productID: "b", qty: 1}},
		},
		{
			name:    "negative quantity",
			lines:   []LineRequest{{ProductID: "a", Quantity: intp(-1)}},
			wantMsg: MsgInvalidQuantity,
		},
		{
			name:    "missing id",
			lines:   []LineRequest{{Quantity: intp(1)}},
			wantMsg: MsgMissingData,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mergeLines(tt.lines, tt.defaultQty)
			if tt.wantMsg != "" {
				require.Error(t, err)
				assert.Equal(t, KindValidation, KindOf(err))
				assert.Equal(t, tt.wantMsg, PublicMessage(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
