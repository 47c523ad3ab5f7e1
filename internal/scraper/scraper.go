// Package scraper drives the pipeline: it authenticates the MTProto client,
// joins the configured channels, feeds their messages through grouping,
// extraction, and validation, and hands the resulting records to the
// delivery layer.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/soukbot/tg-product-scraper/internal/backend"
	"github.com/soukbot/tg-product-scraper/internal/config"
	"github.com/soukbot/tg-product-scraper/internal/dedup"
	"github.com/soukbot/tg-product-scraper/internal/extract"
	"github.com/soukbot/tg-product-scraper/internal/grouper"
	"github.com/soukbot/tg-product-scraper/internal/observability"
	"github.com/soukbot/tg-product-scraper/internal/product"
	"github.com/soukbot/tg-product-scraper/internal/store"
)

// ErrChannelNotFound indicates the channel could not be resolved.
var ErrChannelNotFound = errors.New("channel not found")

// ErrNotAChannel indicates the resolved peer is not a channel.
var ErrNotAChannel = errors.New("peer is not a channel")

// ErrUnexpectedInviteType indicates an unexpected invite type was returned.
var ErrUnexpectedInviteType = errors.New("chat invite returned unexpected type")

const (
	tailActiveDelay = 15 * time.Second
	tailIdleDelay   = 30 * time.Second
)

// channel is one configured source after resolution.
type channel struct {
	link  string
	label string
	id    int64
	peer  *tg.InputPeerChannel
	title string
}

type Scraper struct {
	cfg       *config.Config
	store     *store.Store
	index     *dedup.Index
	extractor *extract.Coordinator
	client    *backend.Client
	queue     *backend.Queue
	products  *backend.RecordFile
	offline   *backend.RecordFile
	logger    *zerolog.Logger

	buffer  *grouper.Buffer
	limiter *rate.Limiter
}

func New(
	cfg *config.Config,
	st *store.Store,
	index *dedup.Index,
	extractor *extract.Coordinator,
	client *backend.Client,
	queue *backend.Queue,
	logger *zerolog.Logger,
) *Scraper {
	rps := cfg.RateLimitRPS
	if rps < 1 {
		rps = 1
	}

	return &Scraper{
		cfg:       cfg,
		store:     st,
		index:     index,
		extractor: extractor,
		client:    client,
		queue:     queue,
		products:  backend.NewRecordFile(cfg.ProductsFile),
		offline:   backend.NewRecordFile(cfg.OfflineFile),
		logger:    logger,
		buffer:    grouper.New(cfg.GroupQuietWindow, cfg.GroupMaxSize, logger),
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Run connects, authenticates, and executes the configured mode. It returns
// when the mode finishes (history) or the context is cancelled (live,
// hybrid). Buffered but undelivered work is flushed to the failure queue
// before returning.
func (s *Scraper) Run(ctx context.Context) error {
	client := telegram.NewClient(s.cfg.TGAPIID, s.cfg.TGAPIHash, telegram.Options{
		SessionStorage: &telegram.FileSessionStorage{
			Path: s.cfg.TGSessionPath,
		},
	})

	return client.Run(ctx, func(ctx context.Context) error {
		if err := client.Auth().IfNecessary(ctx, s.authFlow()); err != nil {
			return fmt.Errorf("telegram auth: %w", err)
		}

		s.logger.Info().Msg("authenticated")

		api := tg.NewClient(client)

		channels, err := s.resolveChannels(ctx, api)
		if err != nil {
			return err
		}

		defer s.drain()

		switch s.cfg.Mode {
		case config.ModeHistory:
			return s.runHistory(ctx, api, channels)
		case config.ModeLive:
			return s.runTail(ctx, api, channels)
		default:
			if err := s.runHistory(ctx, api, channels); err != nil {
				return err
			}

			return s.runTail(ctx, api, channels)
		}
	})
}

func (s *Scraper) resolveChannels(ctx context.Context, api *tg.Client) ([]*channel, error) {
	links := make([]string, 0, len(s.cfg.Channels))
	for link := range s.cfg.Channels {
		links = append(links, link)
	}
	sort.Strings(links)

	channels := make([]*channel, 0, len(links))

	for _, link := range links {
		ch, err := s.resolveChannel(ctx, api, link, s.cfg.Channels[link])
		if err != nil {
			s.logger.Error().Err(err).Str("channel", link).Msg("failed to resolve channel, skipping")

			continue
		}

		s.logger.Info().Str("title", ch.title).Str("label", ch.label).Int64("peer_id", ch.id).Msg("channel ready")
		channels = append(channels, ch)
	}

	if len(channels) == 0 {
		return nil, ErrChannelNotFound
	}

	return channels, nil
}

// resolveChannel joins an invite link or resolves a public username into an
// input peer. Already being a member of an invite-link channel is fine.
func (s *Scraper) resolveChannel(ctx context.Context, api *tg.Client, link, label string) (*channel, error) {
	if hash, ok := inviteHash(link); ok {
		return s.joinByInvite(ctx, api, link, label, hash)
	}

	username := strings.TrimPrefix(strings.TrimPrefix(link, "https://t.me/"), "@")

	resolved, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		return nil, fmt.Errorf("resolve username %q: %w", username, err)
	}

	if len(resolved.Chats) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, username)
	}

	tgChannel, ok := resolved.Chats[0].(*tg.Channel)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAChannel, username)
	}

	return newChannel(link, label, tgChannel), nil
}

func (s *Scraper) joinByInvite(ctx context.Context, api *tg.Client, link, label, hash string) (*channel, error) {
	updates, err := api.MessagesImportChatInvite(ctx, hash)
	if err == nil {
		if u, ok := updates.(*tg.Updates); ok {
			for _, chat := range u.Chats {
				if tgChannel, ok := chat.(*tg.Channel); ok {
					return newChannel(link, label, tgChannel), nil
				}
			}
		}

		return nil, fmt.Errorf("%w: %T", ErrUnexpectedInviteType, updates)
	}

	if !tgerr.Is(err, "USER_ALREADY_PARTICIPANT") {
		return nil, fmt.Errorf("join by invite: %w", err)
	}

	invite, err := api.MessagesCheckChatInvite(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("check chat invite: %w", err)
	}

	already, ok := invite.(*tg.ChatInviteAlready)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedInviteType, invite)
	}

	tgChannel, ok := already.Chat.(*tg.Channel)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAChannel, link)
	}

	return newChannel(link, label, tgChannel), nil
}

func newChannel(link, label string, c *tg.Channel) *channel {
	return &channel{
		link:  link,
		label: label,
		id:    c.ID,
		title: c.Title,
		peer: &tg.InputPeerChannel{
			ChannelID:  c.ID,
			AccessHash: c.AccessHash,
		},
	}
}

func inviteHash(link string) (string, bool) {
	for _, prefix := range []string{"https://t.me/joinchat/", "https://t.me/+", "t.me/joinchat/", "t.me/+"} {
		if strings.HasPrefix(link, prefix) {
			return strings.TrimPrefix(link, prefix), true
		}
	}

	return "", false
}

// runHistory backfills every channel sequentially, newest page first, and
// processes each page oldest message first so records are produced in
// chronological order.
func (s *Scraper) runHistory(ctx context.Context, api *tg.Client, channels []*channel) error {
	stopTime, err := s.cfg.StopTime()
	if err != nil {
		return err
	}

	for _, ch := range channels {
		if err := s.backfillChannel(ctx, api, ch, stopTime); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			s.logger.Error().Err(err).Str("channel", ch.label).Msg("backfill failed")
		}
	}

	s.processGroups(ctx, s.buffer.FlushAll(time.Now()))

	return ctx.Err()
}

func (s *Scraper) backfillChannel(ctx context.Context, api *tg.Client, ch *channel, stopTime time.Time) error {
	s.logger.Info().Str("channel", ch.label).Str("title", ch.title).Msg("backfilling")

	offsetID := 0
	maxID := 0

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		history, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     ch.peer,
			OffsetID: offsetID,
			Limit:    s.cfg.BatchSize,
		})
		if err != nil {
			if waited, ferr := s.waitFlood(ctx, ch.label, err); waited {
				continue
			} else if ferr != nil {
				return ferr
			}

			return fmt.Errorf("get history: %w", err)
		}

		messages := historyMessages(history)
		if len(messages) == 0 {
			break
		}

		offsetID, maxID = advanceOffsets(messages, offsetID, maxID)

		page, reachedStop := s.pageFromHistory(messages, ch, stopTime)

		if err := s.processPage(ctx, api, ch, page); err != nil {
			return err
		}

		s.processGroups(ctx, s.buffer.Flush(time.Now()))

		if reachedStop || len(messages) < s.cfg.BatchSize {
			break
		}
	}

	if maxID > 0 {
		if err := s.store.SetProgress(ctx, ch.id, maxID); err != nil {
			s.logger.Error().Err(err).Str("channel", ch.label).Msg("failed to save progress")
		}
	}

	s.logger.Info().Str("channel", ch.label).Int("last_id", maxID).Msg("backfill finished")

	return nil
}

// pageFromHistory filters one newest-first history page down to plain
// messages at or after the stop time, also tracking the paging offset.
func (s *Scraper) pageFromHistory(messages []tg.MessageClass, ch *channel, stopTime time.Time) ([]*tg.Message, bool) {
	var (
		page        []*tg.Message
		reachedStop bool
	)

	for _, m := range messages {
		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}

		if !stopTime.IsZero() && time.Unix(int64(msg.Date), 0).Before(stopTime) {
			reachedStop = true

			continue
		}

		page = append(page, msg)
	}

	return page, reachedStop
}

// processPage feeds one history page through the grouping buffer, oldest
// message first.
func (s *Scraper) processPage(ctx context.Context, api *tg.Client, ch *channel, page []*tg.Message) error {
	for i := len(page) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := page[i]
		if msg.Message == "" && msg.Media == nil {
			continue
		}

		groups := s.buffer.Observe(s.toMessage(ctx, api, ch, msg), time.Now())
		s.processGroups(ctx, groups)
	}

	return nil
}

func (s *Scraper) toMessage(ctx context.Context, api *tg.Client, ch *channel, msg *tg.Message) grouper.Message {
	out := grouper.Message{
		ChannelID:   ch.id,
		ChannelName: ch.label,
		ID:          msg.ID,
		Caption:     msg.Message,
		Date:        time.Unix(int64(msg.Date), 0).UTC(),
	}

	if gid, ok := msg.GetGroupedID(); ok {
		out.GroupedID = gid
	}

	if msg.Media != nil && hasImage(msg.Media) {
		path, err := s.downloadMedia(ctx, api, msg.Media, ch.id, msg.ID)
		if err != nil {
			s.logger.Warn().Err(err).Str("channel", ch.label).Int("msg_id", msg.ID).Msg("media download failed")
		}

		out.MediaPath = path
	}

	return out
}

// runTail polls every channel for messages newer than its stored progress.
func (s *Scraper) runTail(ctx context.Context, api *tg.Client, channels []*channel) error {
	s.logger.Info().Int("channels", len(channels)).Msg("tailing for new messages")

	for {
		cycleMsgs := 0

		for _, ch := range channels {
			n, err := s.tailChannel(ctx, api, ch)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}

				s.logger.Error().Err(err).Str("channel", ch.label).Msg("tail fetch failed")

				continue
			}

			cycleMsgs += n
		}

		s.processGroups(ctx, s.buffer.Flush(time.Now()))

		delay := tailIdleDelay
		if cycleMsgs > 0 {
			delay = tailActiveDelay
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (s *Scraper) tailChannel(ctx context.Context, api *tg.Client, ch *channel) (int, error) {
	lastID, err := s.store.Progress(ctx, ch.id)
	if err != nil {
		return 0, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	req := &tg.MessagesGetHistoryRequest{
		Peer:  ch.peer,
		Limit: s.cfg.BatchSize,
	}

	if lastID > 0 {
		req.OffsetID = lastID
		req.AddOffset = -s.cfg.BatchSize
	}

	history, err := api.MessagesGetHistory(ctx, req)
	if err != nil {
		if waited, ferr := s.waitFlood(ctx, ch.label, err); waited {
			return 0, nil
		} else if ferr != nil {
			return 0, ferr
		}

		return 0, fmt.Errorf("get history: %w", err)
	}

	messages := historyMessages(history)

	var fresh []*tg.Message

	maxID := lastID
	for _, m := range messages {
		msg, ok := m.(*tg.Message)
		if !ok || msg.ID <= lastID {
			continue
		}

		if msg.ID > maxID {
			maxID = msg.ID
		}

		fresh = append(fresh, msg)
	}

	if err := s.processPage(ctx, api, ch, fresh); err != nil {
		return 0, err
	}

	// Hold the watermark behind anything still sitting in the grouping
	// buffer: a crash inside the quiet window must not skip those messages
	// on the next run. The held-back ids are refetched next cycle; the
	// buffer ignores repeated media and the dedup index catches anything
	// already processed.
	watermark := maxID
	if oldest, ok := s.buffer.OldestPending(ch.id); ok && oldest-1 < watermark {
		watermark = oldest - 1
	}

	if watermark > lastID {
		if err := s.store.SetProgress(ctx, ch.id, watermark); err != nil {
			s.logger.Error().Err(err).Str("channel", ch.label).Msg("failed to save progress")
		}
	}

	return len(fresh), nil
}

// waitFlood sleeps out a FLOOD_WAIT error. Returns waited=true when the
// caller should retry the same request, an error when the wait was cut short
// by cancellation, and (false, nil) for non-flood errors.
func (s *Scraper) waitFlood(ctx context.Context, channelLabel string, err error) (bool, error) {
	floodErr, ok := tgerr.As(err)
	if !ok || floodErr.Type != "FLOOD_WAIT" {
		return false, nil
	}

	seconds := floodErr.Argument
	s.logger.Warn().Int("seconds", seconds).Str("channel", channelLabel).Msg("flood wait")
	observability.FloodWaitSeconds.WithLabelValues(channelLabel).Add(float64(seconds))

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(time.Duration(seconds) * time.Second):
		return true, nil
	}
}

// messageID extracts the id carried by any history entry, service messages
// and empty placeholders included.
func messageID(m tg.MessageClass) (int, bool) {
	switch msg := m.(type) {
	case *tg.Message:
		return msg.ID, true
	case *tg.MessageService:
		return msg.ID, true
	case *tg.MessageEmpty:
		return msg.ID, true
	default:
		return 0, false
	}
}

// advanceOffsets moves the paging offset and progress watermark across every
// entry of a history page, not only the plain messages that survive
// filtering. A page made entirely of service messages must still advance the
// offset, otherwise the backfill refetches the same page forever.
func advanceOffsets(messages []tg.MessageClass, offsetID, maxID int) (int, int) {
	for _, m := range messages {
		id, ok := messageID(m)
		if !ok {
			continue
		}

		if id > maxID {
			maxID = id
		}

		if offsetID == 0 || id < offsetID {
			offsetID = id
		}
	}

	return offsetID, maxID
}

func historyMessages(history tg.MessagesMessagesClass) []tg.MessageClass {
	switch h := history.(type) {
	case *tg.MessagesMessages:
		return h.Messages
	case *tg.MessagesMessagesSlice:
		return h.Messages
	case *tg.MessagesChannelMessages:
		return h.Messages
	default:
		return nil
	}
}

func (s *Scraper) processGroups(ctx context.Context, groups []*grouper.Group) {
	for _, g := range groups {
		if err := s.processGroup(ctx, g); err != nil {
			s.logger.Error().Err(err).
				Str("channel", g.ChannelName).
				Int("msg_id", g.MessageID).
				Msg("failed to process group")
		}
	}
}

// processGroup turns one completed group into a record and hands it to the
// delivery layer. The dedup index is updated only after the record was
// delivered, saved, or queued.
func (s *Scraper) processGroup(ctx context.Context, g *grouper.Group) error {
	uniqueID := product.UniqueID(g.ChannelID, g.MessageID)

	seen, err := s.index.Seen(ctx, uniqueID)
	if err != nil {
		return err
	}

	if seen {
		return nil
	}

	res, err := s.extractor.Extract(ctx, g.Caption, g.ChannelName)
	if err != nil {
		if errors.Is(err, extract.ErrNoSignal) {
			s.logger.Debug().Str("unique_id", uniqueID).Msg("no product signal in caption, skipping")

			return nil
		}

		return err
	}

	rec := &product.Record{
		UniqueID:         uniqueID,
		Name:             res.Name,
		Description:      res.Description,
		ShortDescription: res.ShortDescription,
		Prices:           res.Prices,
		Images:           g.MediaPaths,
		ChannelName:      g.ChannelName,
		ExtractionMethod: res.Method,
	}

	if reason, ok := product.Validate(rec); !ok {
		observability.ValidationRejects.WithLabelValues(string(reason)).Inc()
		s.logger.Warn().Str("unique_id", uniqueID).Str("reason", string(reason)).Msg("record rejected")

		return nil
	}

	if err := s.deliver(ctx, rec); err != nil {
		return err
	}

	return s.index.Mark(ctx, uniqueID, g.ChannelID, g.MessageID)
}

func (s *Scraper) deliver(ctx context.Context, rec *product.Record) error {
	if !s.client.Enabled() {
		return s.offline.Append(rec)
	}

	if err := s.client.Deliver(ctx, rec); err != nil {
		s.logger.Warn().Err(err).Str("unique_id", rec.UniqueID).Msg("delivery failed, queueing")

		return s.queue.Enqueue(rec, err.Error())
	}

	return s.products.Append(rec)
}

// drain flushes whatever the buffer still holds into the failure queue using
// rule-based extraction only, so a shutdown never silently drops a post.
func (s *Scraper) drain() {
	groups := s.buffer.FlushAll(time.Now())
	if len(groups) == 0 {
		return
	}

	s.logger.Info().Int("groups", len(groups)).Msg("flushing in-flight groups to failure queue")

	for _, g := range groups {
		text := extract.Text(g.Caption)
		prices := extract.Price(g.Caption)

		rec := &product.Record{
			UniqueID:         product.UniqueID(g.ChannelID, g.MessageID),
			Name:             text.Name,
			Description:      text.Description,
			ShortDescription: text.ShortDescription,
			Prices:           prices,
			Images:           g.MediaPaths,
			ChannelName:      g.ChannelName,
			ExtractionMethod: product.MethodManual,
		}

		if err := s.queue.Enqueue(rec, "shutdown before delivery"); err != nil {
			s.logger.Error().Err(err).Str("unique_id", rec.UniqueID).Msg("failed to queue in-flight record")

			continue
		}

		// Queued means handled: the next run must replay the queue entry,
		// not rebuild the record from the channel.
		if err := s.index.Mark(context.Background(), rec.UniqueID, g.ChannelID, g.MessageID); err != nil {
			s.logger.Error().Err(err).Str("unique_id", rec.UniqueID).Msg("failed to mark queued record")
		}
	}
}
