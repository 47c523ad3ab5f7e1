// Package product defines the structured record produced by the extraction
// pipeline and the validation rules a record must pass before delivery.
package product

import "fmt"

// Method records which extraction path produced a record.
type Method string

const (
	MethodAI     Method = "AI"
	MethodManual Method = "MANUAL"
)

// PriceInfo holds resolved pricing for a product. A zero CurrentPrice means
// no price was found. When both prices are present, OldPrice is always the
// higher one (the "was/now" promotional reading).
type PriceInfo struct {
	CurrentPrice float64  `json:"current_price"`
	OldPrice     *float64 `json:"old_price"`
}

// Valid reports whether the price info carries a usable current price.
func (p PriceInfo) Valid() bool {
	return p.CurrentPrice > 0
}

// Record is one product extracted from a message group.
type Record struct {
	UniqueID         string    `json:"unique_id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	ShortDescription string    `json:"short_description"`
	Prices           PriceInfo `json:"prices"`
	Images           []string  `json:"images"`
	ChannelName      string    `json:"channel_name"`
	ExtractionMethod Method    `json:"extraction_method"`
}

// UniqueID derives the deterministic record identifier for a message.
func UniqueID(channelID int64, messageID int) string {
	return fmt.Sprintf("%d_%d", channelID, messageID)
}
