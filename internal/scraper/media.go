package scraper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"

	"github.com/soukbot/tg-product-scraper/internal/observability"
)

// maxImageBytes caps document downloads; anything larger is not a product
// photo.
const maxImageBytes = 10 * 1024 * 1024

var mimeExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// downloadMedia saves a message's image to the media directory and returns
// the file path. Non-image media, oversized documents, and messages without
// media return an empty path without error.
func (s *Scraper) downloadMedia(ctx context.Context, api *tg.Client, media tg.MessageMediaClass, channelID int64, messageID int) (string, error) {
	var (
		location tg.InputFileLocationClass
		ext      string
	)

	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := m.Photo.(*tg.Photo)
		if !ok {
			return "", nil
		}

		thumb := largestPhotoSize(photo)
		if thumb == "" {
			return "", nil
		}

		location = &tg.InputPhotoFileLocation{
			ID:            photo.ID,
			AccessHash:    photo.AccessHash,
			FileReference: photo.FileReference,
			ThumbSize:     thumb,
		}
		ext = ".jpg"

	case *tg.MessageMediaDocument:
		doc, ok := m.Document.(*tg.Document)
		if !ok {
			return "", nil
		}

		e, isImage := mimeExtensions[doc.MimeType]
		if !isImage || doc.Size > maxImageBytes {
			return "", nil
		}

		location = &tg.InputDocumentFileLocation{
			ID:            doc.ID,
			AccessHash:    doc.AccessHash,
			FileReference: doc.FileReference,
		}
		ext = e

	default:
		return "", nil
	}

	if err := os.MkdirAll(s.cfg.MediaDir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	path := filepath.Join(s.cfg.MediaDir, fmt.Sprintf("product_%d_%d_0%s", channelID, messageID, ext))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}

	if _, err := downloader.NewDownloader().Download(api, location).Stream(ctx, f); err != nil {
		f.Close()
		os.Remove(path)
		observability.MediaDownloads.WithLabelValues("error").Inc()

		return "", fmt.Errorf("download media: %w", err)
	}

	if err := f.Close(); err != nil {
		return "", err
	}

	observability.MediaDownloads.WithLabelValues("ok").Inc()

	return path, nil
}

func largestPhotoSize(photo *tg.Photo) string {
	var (
		thumb   string
		maxArea int
	)

	for _, size := range photo.Sizes {
		switch sz := size.(type) {
		case *tg.PhotoSize:
			if sz.W*sz.H > maxArea {
				maxArea = sz.W * sz.H
				thumb = sz.Type
			}
		case *tg.PhotoSizeProgressive:
			if sz.W*sz.H > maxArea {
				maxArea = sz.W * sz.H
				thumb = sz.Type
			}
		}
	}

	return thumb
}

func hasImage(media tg.MessageMediaClass) bool {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		_, ok := m.Photo.(*tg.Photo)

		return ok
	case *tg.MessageMediaDocument:
		doc, ok := m.Document.(*tg.Document)
		if !ok {
			return false
		}

		return strings.HasPrefix(doc.MimeType, "image/")
	default:
		return false
	}
}
