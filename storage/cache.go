package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"gumboard-api/domain"
)

// BoardUpdatesChannelPrefix prefixes the pub/sub channel of a board.
const BoardUpdatesChannelPrefix = "board-updates:"

// noteGenerationTTL bounds how long an eviction counter outlives its last
// write. It only has to exceed the duration of a backing read.
const noteGenerationTTL = 24 * time.Hour

var errStaleRead = errors.New("note changed during read")

// BoardUpdate is published after a note of the board changed.
type BoardUpdate struct {
	BoardID string `json:"boardId"`
	NoteID  string `json:"noteId"`
}

// Cache wraps a domain.NoteStorage with Redis-backed caching for note reads.
// Writes evict the cached note and announce the change on the board channel.
// Every eviction bumps a per-note generation; a read that raced a write is
// returned but never cached.
type Cache struct {
	base   domain.NoteStorage
	redis  *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
// A nil client turns the cache into a pass-through.
func NewCache(base domain.NoteStorage, client *redis.Client, ttl time.Duration, logger *log.Logger) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Cache{base: base, redis: client, ttl: ttl, logger: logger}
}

func (c *Cache) GetNote(ctx context.Context, boardID, noteID string) (*domain.Note, error) {
	if note, ok := c.loadNote(ctx, boardID, noteID); ok {
		return note, nil
	}

	gen, genOK := c.generation(ctx, noteID)
	note, err := c.base.GetNote(ctx, boardID, noteID)
	if err != nil {
		return nil, err
	}

	if genOK {
		c.storeNote(ctx, note, gen)
	}
	return note, nil
}

func (c *Cache) CreateNote(ctx context.Context, note domain.Note) (*domain.Note, error) {
	saved, err := c.base.CreateNote(ctx, note)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, saved.BoardID, saved.ID)
	return saved, nil
}

func (c *Cache) SaveNote(ctx context.Context, note domain.Note, changes domain.ChangeSet) (*domain.Note, error) {
	saved, err := c.base.SaveNote(ctx, note, changes)
	if err != nil {
		return nil, err
	}
	c.evictNote(ctx, saved.ID)
	c.publish(ctx, saved.BoardID, saved.ID)
	return saved, nil
}

func (c *Cache) SetSlackMessageID(ctx context.Context, noteID, ref string) error {
	if err := c.base.SetSlackMessageID(ctx, noteID, ref); err != nil {
		return err
	}
	c.evictNote(ctx, noteID)
	return nil
}

func (c *Cache) GetBoard(ctx context.Context, boardID string) (*domain.Board, error) {
	return c.base.GetBoard(ctx, boardID)
}

func (c *Cache) GetOrganization(ctx context.Context, orgID string) (*domain.Organization, error) {
	return c.base.GetOrganization(ctx, orgID)
}

func (c *Cache) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return c.base.GetUser(ctx, userID)
}

func (c *Cache) loadNote(ctx context.Context, boardID, noteID string) (*domain.Note, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, noteCacheKey(noteID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, noteCacheKey(noteID)).Err()
		}
		return nil, false
	}
	var note domain.Note
	if err := sonic.Unmarshal(data, &note); err != nil || note.BoardID != boardID {
		_ = c.redis.Del(ctx, noteCacheKey(noteID)).Err()
		return nil, false
	}
	return &note, true
}

// generation reports the eviction counter of a note. A missing counter reads
// as "".
func (c *Cache) generation(ctx context.Context, noteID string) (string, bool) {
	if c.redis == nil || c.ttl == 0 {
		return "", false
	}
	gen, err := c.redis.Get(ctx, noteGenKey(noteID)).Result()
	if err != nil && err != redis.Nil {
		return "", false
	}
	return gen, true
}

// storeNote caches note only if no eviction happened since gen was read.
func (c *Cache) storeNote(ctx context.Context, note *domain.Note, gen string) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(note)
	if err != nil {
		return
	}
	genKey := noteGenKey(note.ID)
	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if current != gen {
			return errStaleRead
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, noteCacheKey(note.ID), data, c.ttl)
			return nil
		})
		return err
	}, genKey)
	if err != nil && !errors.Is(err, errStaleRead) && !errors.Is(err, redis.TxFailedErr) {
		c.logger.WithError(err).WithField("note", note.ID).Debug("cache note failed")
	}
}

func (c *Cache) evictNote(ctx context.Context, noteID string) {
	if c.redis == nil {
		return
	}
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, noteGenKey(noteID))
		pipe.Expire(ctx, noteGenKey(noteID), noteGenerationTTL)
		pipe.Del(ctx, noteCacheKey(noteID))
		return nil
	})
	if err != nil {
		c.logger.WithError(err).WithField("note", noteID).Warn("evict cached note failed")
	}
}

func (c *Cache) publish(ctx context.Context, boardID, noteID string) {
	if c.redis == nil {
		return
	}
	payload, err := sonic.Marshal(BoardUpdate{BoardID: boardID, NoteID: noteID})
	if err != nil {
		return
	}
	if err := c.redis.Publish(ctx, BoardUpdatesChannelPrefix+boardID, payload).Err(); err != nil {
		c.logger.WithError(err).WithField("board", boardID).Warn("publish board update failed")
	}
}

func noteCacheKey(noteID string) string {
	return "note:" + noteID
}

func noteGenKey(noteID string) string {
	return "note:" + noteID + ":gen"
}
