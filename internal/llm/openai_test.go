package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soukbot/tg-product-scraper/internal/config"
)

func TestParseProductFields(t *testing.T) {
	t.Run("plain object", func(t *testing.T) {
		fields, err := parseProductFields(`{"name":"مج سيراميك","short_description":"لون أبيض","description":"مج سيراميك عالي الجودة","current_price":150,"old_price":200}`)
		require.NoError(t, err)
		assert.Equal(t, "مج سيراميك", fields.Name)
		require.NotNil(t, fields.CurrentPrice)
		assert.Equal(t, 150.0, *fields.CurrentPrice)
		require.NotNil(t, fields.OldPrice)
		assert.Equal(t, 200.0, *fields.OldPrice)
	})

	t.Run("fenced object", func(t *testing.T) {
		fields, err := parseProductFields("```json\n{\"name\":\"مج\",\"current_price\":75.5,\"old_price\":null}\n```")
		require.NoError(t, err)
		assert.Equal(t, "مج", fields.Name)
		require.NotNil(t, fields.CurrentPrice)
		assert.Equal(t, 75.5, *fields.CurrentPrice)
		assert.Nil(t, fields.OldPrice)
	})

	t.Run("no json", func(t *testing.T) {
		_, err := parseProductFields("sorry, I cannot help with that")
		require.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("broken json", func(t *testing.T) {
		_, err := parseProductFields(`{"name": "مج", "current_price": }`)
		require.Error(t, err)
	})
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	client := NewOpenAI(&config.Config{
		LLMAPIKey:    "test-key",
		LLMModel:     "gemini-1.5-flash-latest",
		LLMBaseURL:   srv.URL,
		LLMTimeout:   5 * time.Second,
		RateLimitRPS: 100,
	}, &logger)

	ctx := context.Background()

	for i := 0; i < circuitBreakerThreshold; i++ {
		_, err := client.ExtractProduct(ctx, "مج سيراميك", "Home Goods")
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrCircuitOpen)
	}

	// The breaker refuses the next call without touching the server.
	_, err := client.ExtractProduct(ctx, "مج سيراميك", "Home Goods")
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.EqualValues(t, circuitBreakerThreshold, atomic.LoadInt32(&calls))

	// Once the cooldown expires, calls flow to the server again.
	oc, ok := client.(*openaiClient)
	require.True(t, ok)

	oc.mu.Lock()
	oc.circuitOpenUntil = time.Now().Add(-time.Second)
	oc.mu.Unlock()

	_, err = client.ExtractProduct(ctx, "مج سيراميك", "Home Goods")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrCircuitOpen)
	assert.EqualValues(t, circuitBreakerThreshold+1, atomic.LoadInt32(&calls))
}
