package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soukbot/tg-product-scraper/internal/config"
	"github.com/soukbot/tg-product-scraper/internal/product"
)

func testRecord(t *testing.T, withImage bool) *product.Record {
	t.Helper()

	old := 200.0
	rec := &product.Record{
		UniqueID:         "100_1",
		Name:             "مج سيراميك",
		Description:      "خامة ممتازة",
		ShortDescription: "لون أبيض",
		Prices:           product.PriceInfo{CurrentPrice: 150, OldPrice: &old},
		ChannelName:      "Home Goods",
		ExtractionMethod: product.MethodManual,
	}

	if withImage {
		dir := t.TempDir()
		path := filepath.Join(dir, "product_100_1_0.jpg")
		require.NoError(t, os.WriteFile(path, []byte("jpeg-bytes"), 0o644))
		rec.Images = []string{path}
	}

	return rec
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()

	logger := zerolog.Nop()

	return NewClient(&config.Config{
		BackendURL:   url,
		BackendToken: "secret",
		TenantID:     "7",
	}, &logger)
}

func TestDeliverSendsMultipartForm(t *testing.T) {
	var seen struct {
		auth     string
		tenant   string
		fields   map[string]string
		fileName string
		fileType string
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))

		seen.auth = r.Header.Get("Authorization")
		seen.tenant = r.Header.Get("Tenant-Id")
		seen.fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			seen.fields[k] = v[0]
		}

		files := r.MultipartForm.File["variants[0][images][]"]
		require.Len(t, files, 1)
		seen.fileName = files[0].Filename
		seen.fileType = files[0].Header.Get("Content-Type")

		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	require.NoError(t, client.Deliver(context.Background(), testRecord(t, true)))

	assert.Equal(t, "Bearer secret", seen.auth)
	assert.Equal(t, "7", seen.tenant)
	assert.Equal(t, "100_1", seen.fields["variants[0][sku]"])
	assert.Equal(t, "100_1", seen.fields["variants[0][barcode]"])
	assert.Equal(t, "مج سيراميك", seen.fields["name[ar]"])
	assert.Equal(t, "Home Goods", seen.fields["category_name"])
	assert.Equal(t, "200", seen.fields["variants[0][price]"])
	assert.Equal(t, "150", seen.fields["variants[0][discount]"])
	assert.Equal(t, "product_100_1_0.jpg", seen.fileName)
	assert.Equal(t, "image/jpeg", seen.fileType)
}

func TestDeliverWithoutOldPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "150.5", r.FormValue("variants[0][price]"))
		assert.Empty(t, r.FormValue("variants[0][discount]"))
	}))
	defer srv.Close()

	rec := testRecord(t, false)
	rec.Prices = product.PriceInfo{CurrentPrice: 150.5}

	client := newTestClient(t, srv.URL)
	require.NoError(t, client.Deliver(context.Background(), rec))
}

func TestDeliverRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"duplicate sku"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	err := client.Deliver(context.Background(), testRecord(t, false))
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "422")
}

func TestDeliverSkipsMissingImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Empty(t, r.MultipartForm.File["variants[0][images][]"])
	}))
	defer srv.Close()

	rec := testRecord(t, false)
	rec.Images = []string{"/nonexistent/gone.jpg"}

	client := newTestClient(t, srv.URL)
	require.NoError(t, client.Deliver(context.Background(), rec))
}

func TestEnabled(t *testing.T) {
	assert.True(t, newTestClient(t, "http://backend").Enabled())
	assert.False(t, newTestClient(t, "").Enabled())
}
