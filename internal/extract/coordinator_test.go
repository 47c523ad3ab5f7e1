package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soukbot/tg-product-scraper/internal/llm"
	"github.com/soukbot/tg-product-scraper/internal/product"
)

type fakeAI struct {
	fields *llm.ProductFields
	err    error
	calls  int
}

func (f *fakeAI) ExtractProduct(_ context.Context, _, _ string) (*llm.ProductFields, error) {
	f.calls++

	return f.fields, f.err
}

func floatPtr(v float64) *float64 { return &v }

func TestCoordinatorAISuccess(t *testing.T) {
	logger := zerolog.Nop()
	ai := &fakeAI{fields: &llm.ProductFields{
		Name:         "مج سيراميك",
		CurrentPrice: floatPtr(150),
		OldPrice:     floatPtr(200),
	}}

	c := NewCoordinator(ai, &logger)

	res, err := c.Extract(context.Background(), "any caption", "Home Goods")
	require.NoError(t, err)
	assert.Equal(t, product.MethodAI, res.Method)
	assert.Equal(t, "مج سيراميك", res.Name)
	assert.Equal(t, 150.0, res.Prices.CurrentPrice)
	require.NotNil(t, res.Prices.OldPrice)
	assert.Equal(t, 200.0, *res.Prices.OldPrice)
}

func TestCoordinatorAIErrorFallsBack(t *testing.T) {
	logger := zerolog.Nop()
	ai := &fakeAI{err: errors.New("quota exceeded")}

	c := NewCoordinator(ai, &logger)

	res, err := c.Extract(context.Background(), "مج سيراميك\nالسعر 150 جنيه", "Home Goods")
	require.NoError(t, err)
	assert.Equal(t, 1, ai.calls)
	assert.Equal(t, product.MethodManual, res.Method)
	assert.Equal(t, "مج سيراميك", res.Name)
	assert.Equal(t, 150.0, res.Prices.CurrentPrice)
}

func TestCoordinatorAIGarbageFallsBack(t *testing.T) {
	logger := zerolog.Nop()
	// Parseable response but neither name nor price: treated as AI failure.
	ai := &fakeAI{fields: &llm.ProductFields{Description: "blah"}}

	c := NewCoordinator(ai, &logger)

	res, err := c.Extract(context.Background(), "مج سيراميك\nالسعر 150 جنيه", "Home Goods")
	require.NoError(t, err)
	assert.Equal(t, product.MethodManual, res.Method)
}

func TestCoordinatorAIDropsInvertedOldPrice(t *testing.T) {
	logger := zerolog.Nop()
	ai := &fakeAI{fields: &llm.ProductFields{
		Name:         "مج",
		CurrentPrice: floatPtr(200),
		OldPrice:     floatPtr(150),
	}}

	c := NewCoordinator(ai, &logger)

	res, err := c.Extract(context.Background(), "caption", "Home Goods")
	require.NoError(t, err)
	assert.Equal(t, 200.0, res.Prices.CurrentPrice)
	assert.Nil(t, res.Prices.OldPrice)
}

func TestCoordinatorDisabledAI(t *testing.T) {
	logger := zerolog.Nop()
	c := NewCoordinator(nil, &logger)

	res, err := c.Extract(context.Background(), "مج سيراميك\nالسعر 150 جنيه", "Home Goods")
	require.NoError(t, err)
	assert.Equal(t, product.MethodManual, res.Method)
}

func TestCoordinatorNoSignal(t *testing.T) {
	logger := zerolog.Nop()
	c := NewCoordinator(nil, &logger)

	_, err := c.Extract(context.Background(), "", "Home Goods")
	require.ErrorIs(t, err, ErrNoSignal)
}
