package extract

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/soukbot/tg-product-scraper/internal/llm"
	"github.com/soukbot/tg-product-scraper/internal/observability"
	"github.com/soukbot/tg-product-scraper/internal/product"
)

// ErrNoSignal indicates neither the AI nor the rule-based stage could find a
// usable name or price. The group is skipped, not retried: the source text
// itself lacks the required signal.
var ErrNoSignal = errors.New("caption has no usable name or price")

// Result is the outcome of a successful extraction, tagged with the method
// that produced it.
type Result struct {
	Name             string
	ShortDescription string
	Description      string
	Prices           product.PriceInfo
	Method           product.Method
}

// Coordinator runs the layered extraction strategy: AI first when available,
// rule-based fallback on any AI failure.
type Coordinator struct {
	ai     llm.Client
	logger *zerolog.Logger
}

// NewCoordinator builds a coordinator. A nil ai client disables the AI stage
// entirely, leaving only the rule-based path.
func NewCoordinator(ai llm.Client, logger *zerolog.Logger) *Coordinator {
	return &Coordinator{
		ai:     ai,
		logger: logger,
	}
}

func (c *Coordinator) Extract(ctx context.Context, caption, channelName string) (*Result, error) {
	if c.ai != nil {
		fields, err := c.ai.ExtractProduct(ctx, caption, channelName)
		if err == nil {
			if res := resultFromAI(fields); res != nil {
				observability.Extractions.WithLabelValues("ai", "ok").Inc()

				return res, nil
			}

			c.logger.Warn().Str("channel", channelName).Msg("AI extraction returned no name or price, falling back")
		} else {
			c.logger.Warn().Err(err).Str("channel", channelName).Msg("AI extraction failed, falling back")
		}

		observability.Extractions.WithLabelValues("ai", "fallback").Inc()
	}

	text := Text(caption)
	prices := Price(caption)

	if text.Name == "" && !prices.Valid() {
		observability.Extractions.WithLabelValues("manual", "failed").Inc()

		return nil, ErrNoSignal
	}

	observability.Extractions.WithLabelValues("manual", "ok").Inc()

	return &Result{
		Name:             text.Name,
		ShortDescription: text.ShortDescription,
		Description:      text.Description,
		Prices:           prices,
		Method:           product.MethodManual,
	}, nil
}

// resultFromAI maps model output onto a Result, applying the same noise and
// old>current rules as the rule-based path. Returns nil when the output has
// neither a usable name nor a usable price.
func resultFromAI(fields *llm.ProductFields) *Result {
	name := strings.TrimSpace(fields.Name)
	prices := pricesFromAI(fields)

	if name == "" && !prices.Valid() {
		return nil
	}

	return &Result{
		Name:             name,
		ShortDescription: strings.TrimSpace(fields.ShortDescription),
		Description:      strings.TrimSpace(fields.Description),
		Prices:           prices,
		Method:           product.MethodAI,
	}
}

func pricesFromAI(fields *llm.ProductFields) product.PriceInfo {
	var info product.PriceInfo

	if fields.CurrentPrice != nil {
		if p := *fields.CurrentPrice; p >= minPrice && p <= maxPrice {
			info.CurrentPrice = p
		}
	}

	if fields.OldPrice != nil && info.Valid() {
		if p := *fields.OldPrice; p > info.CurrentPrice && p <= maxPrice {
			old := p
			info.OldPrice = &old
		}
	}

	return info
}
