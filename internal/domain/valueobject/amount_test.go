package valueobject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMicroUnits(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		token   Token
		want    int64
		wantErr bool
	}{
		{name: "целое stx", amount: "100", token: TokenSTX, want: 100_000_000},
		{name: "дробное stx", amount: "1.15", token: TokenSTX, want: 1_150_000},
		{name: "дробное без целой части", amount: ".5", token: TokenSTX, want: 500_000},
		{name: "полная точность stx", amount: "0.000001", token: TokenSTX, want: 1},
		{name: "лишние знаки отбрасываются", amount: "0.0000019", token: TokenSTX, want: 1},
		{name: "sbtc восемь знаков", amount: "0.00000001", token: TokenSBTC, want: 1},
		{name: "sbtc целое", amount: "1", token: TokenSBTC, want: 100_000_000},
		{name: "пробелы по краям", amount: " 2.5 ", token: TokenSTX, want: 2_500_000},
		{name: "ноль", amount: "0", token: TokenSTX, want: 0},
		{name: "ведущие нули", amount: "007", token: TokenSTX, want: 7_000_000},
		{name: "пустая строка", amount: "", token: TokenSTX, wantErr: true},
		{name: "отрицательное", amount: "-1", token: TokenSTX, wantErr: true},
		{name: "не число", amount: "abc", token: TokenSTX, wantErr: true},
		{name: "две точки", amount: "1.2.3", token: TokenSTX, wantErr: true},
		{name: "научная запись", amount: "1e6", token: TokenSTX, wantErr: true},
		{name: "переполнение", amount: "99999999999999999999", token: TokenSTX, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MicroUnits(tt.amount, tt.token)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecimalString(t *testing.T) {
	assert.Equal(t, "100", DecimalString(100_000_000, TokenSTX))
	assert.Equal(t, "1.15", DecimalString(1_150_000, TokenSTX))
	assert.Equal(t, "0.000001", DecimalString(1, TokenSTX))
	assert.Equal(t, "0", DecimalString(0, TokenSTX))
	assert.Equal(t, "0.00000001", DecimalString(1, TokenSBTC))
	assert.Equal(t, "2.5", DecimalString(250_000_000, TokenSBTC))
}

func TestMicroUnitsRoundTrip(t *testing.T) {
	for _, token := range []Token{TokenSTX, TokenSBTC} {
		for _, amount := range []string{"1", "0.5", "123.25", "1000000"} {
			micro, err := MicroUnits(amount, token)
			require.NoError(t, err)
			back, err := MicroUnits(DecimalString(micro, token), token)
			require.NoError(t, err)
			assert.Equal(t, micro, back, "token=%s amount=%s", token, amount)
		}
	}
}

func TestNewToken(t *testing.T) {
	token, err := NewToken(" STX ")
	require.NoError(t, err)
	assert.Equal(t, TokenSTX, token)

	_, err = NewToken("doge")
	assert.Error(t, err)

	assert.Equal(t, 6, TokenSTX.Decimals())
	assert.Equal(t, 8, TokenSBTC.Decimals())
}
