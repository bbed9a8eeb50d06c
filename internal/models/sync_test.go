package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntQuantity(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"5", 5, false},
		{" -3 ", -3, false},
		{"5.0", 5, false},
		{"2147483647", 2147483647, false},
		{"-2147483648", -2147483648, false},
		{"2147483648", 0, true},
		{"3000000000", 0, true},
		{"3000000000.0", 0, true},
		{"-3000000000", 0, true},
		{"99999999999999999999", 0, true},
		{"2.5", 0, true},
		{"five", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := SourceRecord{Row: 2, SKU: "A", Quantity: tt.raw}.IntQuantity()
			if tt.wantErr {
				var convErr *ValueConversionError
				assert.True(t, errors.As(err, &convErr))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSyncMode(t *testing.T) {
	mode, err := ParseSyncMode("")
	assert.NoError(t, err)
	assert.Equal(t, SyncModeAdjust, mode)

	mode, err = ParseSyncMode(" Tabula_Rasa ")
	assert.NoError(t, err)
	assert.Equal(t, SyncModeTabulaRasa, mode)

	_, err = ParseSyncMode("wipe")
	assert.Error(t, err)
}
