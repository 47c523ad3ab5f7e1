package grouper

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/soukbot/tg-product-scraper/internal/observability"
)

// Message is one raw channel message as seen by the driver, after any media
// has been downloaded to disk.
type Message struct {
	ChannelID   int64
	ChannelName string
	ID          int
	GroupedID   int64
	Caption     string
	MediaPath   string
	Date        time.Time
}

// Group is one logical post: a caption plus every media file that belongs to
// it, ordered by message id.
type Group struct {
	ChannelID   int64
	ChannelName string
	MessageID   int
	Caption     string
	MediaPaths  []string
	Date        time.Time
}

type groupKey struct {
	channelID int64
	groupedID int64
}

type mediaItem struct {
	messageID int
	path      string
}

type pendingGroup struct {
	channelName string
	captionID   int
	caption     string
	date        time.Time
	media       []mediaItem
	hasCaption  bool
	lastSeen    time.Time
}

// Buffer accumulates messages into logical posts. Telegram delivers album
// members as separate messages sharing a grouped_id, in arbitrary order and
// with the caption on only one of them, so a group is held open until the
// quiet window elapses after its last member or it reaches the maximum album
// size. Not safe for concurrent use; the driver owns it from one goroutine.
type Buffer struct {
	quiet  time.Duration
	max    int
	logger *zerolog.Logger

	groups       map[groupKey]*pendingGroup
	pendingMedia map[int64][]mediaItem
	emitted      map[groupKey]time.Time
}

func New(quiet time.Duration, maxSize int, logger *zerolog.Logger) *Buffer {
	return &Buffer{
		quiet:        quiet,
		max:          maxSize,
		logger:       logger,
		groups:       make(map[groupKey]*pendingGroup),
		pendingMedia: make(map[int64][]mediaItem),
		emitted:      make(map[groupKey]time.Time),
	}
}

// Observe feeds one message into the buffer and returns any groups it
// completed. A caption post without a grouped_id completes immediately as a
// singleton, absorbing the channel's pending media pool. Media that arrives
// for an already-emitted group is dropped.
func (b *Buffer) Observe(msg Message, now time.Time) []*Group {
	observability.MessagesObserved.WithLabelValues(msg.ChannelName).Inc()

	if msg.GroupedID != 0 {
		return b.observeGrouped(msg, now)
	}

	if msg.Caption == "" {
		if msg.MediaPath != "" && !hasMediaID(b.pendingMedia[msg.ChannelID], msg.ID) {
			b.pendingMedia[msg.ChannelID] = append(b.pendingMedia[msg.ChannelID], mediaItem{
				messageID: msg.ID,
				path:      msg.MediaPath,
			})
		}

		return nil
	}

	media := b.pendingMedia[msg.ChannelID]
	delete(b.pendingMedia, msg.ChannelID)

	if msg.MediaPath != "" {
		media = append(media, mediaItem{messageID: msg.ID, path: msg.MediaPath})
	}

	observability.GroupsCompleted.WithLabelValues(msg.ChannelName).Inc()

	return []*Group{{
		ChannelID:   msg.ChannelID,
		ChannelName: msg.ChannelName,
		MessageID:   msg.ID,
		Caption:     msg.Caption,
		MediaPaths:  paths(media),
		Date:        msg.Date,
	}}
}

func (b *Buffer) observeGrouped(msg Message, now time.Time) []*Group {
	key := groupKey{channelID: msg.ChannelID, groupedID: msg.GroupedID}

	if _, ok := b.emitted[key]; ok {
		observability.LateMediaDropped.Inc()
		b.logger.Warn().
			Str("channel", msg.ChannelName).
			Int("message_id", msg.ID).
			Int64("grouped_id", msg.GroupedID).
			Msg("media arrived after its group was emitted, dropping")

		return nil
	}

	g, ok := b.groups[key]
	if !ok {
		g = &pendingGroup{channelName: msg.ChannelName, date: msg.Date}
		b.groups[key] = g
	}

	g.lastSeen = now

	// Re-fetched members of a still-open group must not double its media.
	if msg.MediaPath != "" && !hasMediaID(g.media, msg.ID) {
		g.media = append(g.media, mediaItem{messageID: msg.ID, path: msg.MediaPath})
	}

	if msg.Caption != "" {
		g.caption = msg.Caption
		g.captionID = msg.ID
		g.hasCaption = true
	}

	if len(g.media) >= b.max {
		return []*Group{b.emit(key, g, now)}
	}

	return nil
}

// Flush emits every group whose quiet window has elapsed. Groups that never
// received a caption are held for ten windows before being emitted anyway so
// a lost caption message cannot pin memory forever.
func (b *Buffer) Flush(now time.Time) []*Group {
	var out []*Group

	for key, g := range b.groups {
		idle := now.Sub(g.lastSeen)

		switch {
		case g.hasCaption && idle >= b.quiet:
			out = append(out, b.emit(key, g, now))
		case !g.hasCaption && idle >= 10*b.quiet:
			b.logger.Warn().
				Str("channel", g.channelName).
				Int64("grouped_id", key.groupedID).
				Msg("group never received a caption, emitting as-is")
			out = append(out, b.emit(key, g, now))
		}
	}

	b.pruneEmitted(now)
	sortGroups(out)

	return out
}

// FlushAll drains everything still buffered, caption or not. Used at the end
// of a backfill and on shutdown.
func (b *Buffer) FlushAll(now time.Time) []*Group {
	var out []*Group

	for key, g := range b.groups {
		out = append(out, b.emit(key, g, now))
	}

	sortGroups(out)

	return out
}

// Len reports how many groups are currently open.
func (b *Buffer) Len() int {
	return len(b.groups)
}

// OldestPending returns the smallest message id still buffered for a
// channel, across open groups and the pending media pool. Callers use it as
// a progress watermark so a crash cannot skip buffered messages.
func (b *Buffer) OldestPending(channelID int64) (int, bool) {
	oldest := 0

	consider := func(id int) {
		if id != 0 && (oldest == 0 || id < oldest) {
			oldest = id
		}
	}

	for key, g := range b.groups {
		if key.channelID != channelID {
			continue
		}

		if g.hasCaption {
			consider(g.captionID)
		}

		for _, m := range g.media {
			consider(m.messageID)
		}
	}

	for _, m := range b.pendingMedia[channelID] {
		consider(m.messageID)
	}

	return oldest, oldest != 0
}

func (b *Buffer) emit(key groupKey, g *pendingGroup, now time.Time) *Group {
	delete(b.groups, key)
	b.emitted[key] = now

	observability.GroupsCompleted.WithLabelValues(g.channelName).Inc()

	id := g.captionID
	if id == 0 && len(g.media) > 0 {
		sortMedia(g.media)
		id = g.media[0].messageID
	}

	return &Group{
		ChannelID:   key.channelID,
		ChannelName: g.channelName,
		MessageID:   id,
		Caption:     g.caption,
		MediaPaths:  paths(g.media),
		Date:        g.date,
	}
}

// pruneEmitted forgets emitted keys old enough that late members can no
// longer plausibly arrive, keeping the map bounded on long tails.
func (b *Buffer) pruneEmitted(now time.Time) {
	cutoff := 30 * b.quiet
	for key, at := range b.emitted {
		if now.Sub(at) > cutoff {
			delete(b.emitted, key)
		}
	}
}

func hasMediaID(media []mediaItem, messageID int) bool {
	for _, m := range media {
		if m.messageID == messageID {
			return true
		}
	}

	return false
}

func paths(media []mediaItem) []string {
	sortMedia(media)

	out := make([]string, 0, len(media))
	for _, m := range media {
		out = append(out, m.path)
	}

	return out
}

func sortMedia(media []mediaItem) {
	sort.Slice(media, func(i, j int) bool { return media[i].messageID < media[j].messageID })
}

func sortGroups(groups []*Group) {
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].ChannelID != groups[j].ChannelID {
			return groups[i].ChannelID < groups[j].ChannelID
		}

		return groups[i].MessageID < groups[j].MessageID
	})
}
