package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceSingleMention(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{name: "currency suffix", text: "مج سيراميك\nالسعر: 150 جنيه", want: 150},
		{name: "LE marker", text: "cotton socks 45 LE", want: 45},
		{name: "keyword prefix", text: "بسعر 99 فقط", want: 99},
		{name: "bare geem", text: "خصم كبير 120 ج", want: 120},
		{name: "decimal", text: "السعر: 150.5 جنيه", want: 150.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Price(tt.text)
			assert.Equal(t, tt.want, info.CurrentPrice)
			assert.Nil(t, info.OldPrice, "single mention must leave old price absent")
		})
	}
}

func TestPriceTwoMentionsOrderIndependent(t *testing.T) {
	a := Price("السعر 150 جنيه بدلا من 200 جنيه")
	b := Price("السعر 200 جنيه والان بـ 150")

	require.NotNil(t, a.OldPrice)
	assert.Equal(t, 150.0, a.CurrentPrice)
	assert.Equal(t, 200.0, *a.OldPrice)

	require.NotNil(t, b.OldPrice)
	assert.Equal(t, 150.0, b.CurrentPrice)
	assert.Equal(t, 200.0, *b.OldPrice)
}

func TestPriceThreeMentionsDropsMiddle(t *testing.T) {
	info := Price("كان 300 جنيه ثم 250 جنيه والان 180 جنيه")

	require.NotNil(t, info.OldPrice)
	assert.Equal(t, 180.0, info.CurrentPrice)
	assert.Equal(t, 300.0, *info.OldPrice)
}

func TestPriceCommaDecimalNormalization(t *testing.T) {
	info := Price("السعر: 7,5 جنيه")

	assert.Equal(t, 7.5, info.CurrentPrice)
	assert.Nil(t, info.OldPrice)
}

func TestPriceThousandsSeparatorStripped(t *testing.T) {
	info := Price("السعر: 1,500 جنيه")

	assert.Equal(t, 1500.0, info.CurrentPrice)
}

func TestPriceOutOfRangeDiscarded(t *testing.T) {
	t.Run("zero", func(t *testing.T) {
		info := Price("السعر: 0 جنيه")
		assert.False(t, info.Valid())
	})

	t.Run("too large", func(t *testing.T) {
		info := Price("السعر: 200000 جنيه")
		assert.False(t, info.Valid())
	})

	t.Run("noise ignored next to valid price", func(t *testing.T) {
		info := Price("كود 200000 السعر: 150 جنيه")
		assert.Equal(t, 150.0, info.CurrentPrice)
		assert.Nil(t, info.OldPrice)
	})
}

func TestPriceContextualFallback(t *testing.T) {
	// No currency marker anywhere, but the keyword is present.
	info := Price("السعر النهاردة 85 بس")

	assert.Equal(t, 85.0, info.CurrentPrice)
}

func TestPriceFirstNumberFallback(t *testing.T) {
	info := Price("عرض خاص 60 لفترة محدودة")

	assert.Equal(t, 60.0, info.CurrentPrice)
}

func TestPriceNoNumbers(t *testing.T) {
	info := Price("منتج رائع بدون سعر")

	assert.False(t, info.Valid())
	assert.Nil(t, info.OldPrice)
}
