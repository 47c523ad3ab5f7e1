// Package backend delivers product records to the store backend over HTTP
// and maintains the JSON file sinks: the delivered-products log, the offline
// products file, and the failure queue used for replay.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/soukbot/tg-product-scraper/internal/config"
	"github.com/soukbot/tg-product-scraper/internal/observability"
	"github.com/soukbot/tg-product-scraper/internal/product"
)

// ErrRejected indicates the backend answered with a non-2xx status.
var ErrRejected = errors.New("backend rejected product")

var imageContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

type Client struct {
	url      string
	token    string
	tenantID string
	http     *http.Client
	logger   *zerolog.Logger
}

func NewClient(cfg *config.Config, logger *zerolog.Logger) *Client {
	return &Client{
		url:      cfg.BackendURL,
		token:    cfg.BackendToken,
		tenantID: cfg.TenantID,
		http:     &http.Client{Timeout: 60 * time.Second},
		logger:   logger,
	}
}

// Enabled reports whether a backend URL is configured. When it is not,
// records are saved to the offline file instead of being delivered.
func (c *Client) Enabled() bool {
	return c.url != ""
}

// Deliver posts one record as a multipart form. Only 200 and 201 count as
// delivered; any other status or transport error is a delivery failure.
func (c *Client) Deliver(ctx context.Context, rec *product.Record) error {
	body, contentType, err := buildForm(rec)
	if err != nil {
		return fmt.Errorf("build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "ar")
	req.Header.Set("Tenant-Id", c.tenantID)

	resp, err := c.http.Do(req)
	if err != nil {
		observability.Deliveries.WithLabelValues("error").Inc()

		return fmt.Errorf("post product: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		observability.Deliveries.WithLabelValues("ok").Inc()
		c.logger.Info().Str("unique_id", rec.UniqueID).Str("name", truncate(rec.Name, 50)).Msg("product delivered")

		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	observability.Deliveries.WithLabelValues("rejected").Inc()

	return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(detail)))
}

func buildForm(rec *product.Record) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	fields := map[string]string{
		"variants[0][sku]":          rec.UniqueID,
		"variants[0][barcode]":      rec.UniqueID,
		"variants[0][stock]":        "10",
		"name[ar]":                  rec.Name,
		"name[en]":                  rec.Name,
		"description[ar]":           rec.Description,
		"description[en]":           rec.Description,
		"short_description[ar]":     rec.ShortDescription,
		"short_description[en]":     rec.ShortDescription,
		"category_name":             rec.ChannelName,
	}

	// With an old price present the backend reads price as the original and
	// discount as the promotional price.
	if rec.Prices.OldPrice != nil {
		fields["variants[0][price]"] = formatPrice(*rec.Prices.OldPrice)
		fields["variants[0][discount]"] = formatPrice(rec.Prices.CurrentPrice)
	} else {
		fields["variants[0][price]"] = formatPrice(rec.Prices.CurrentPrice)
	}

	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}

	for _, path := range rec.Images {
		if err := addImage(w, path); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return buf, w.FormDataContentType(), nil
}

// addImage attaches one image part. Files that vanished from disk and
// unsupported extensions are skipped, matching the record-over-media
// priority of the rest of the pipeline.
func addImage(w *multipart.Writer, path string) error {
	contentType, ok := imageContentTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}
	defer f.Close()

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="variants[0][images][]"; filename=%q`, filepath.Base(path)))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}

	_, err = io.Copy(part, f)

	return err
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n])
}
