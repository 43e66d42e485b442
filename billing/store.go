/*
store.go - Local persistence of the present state

PURPOSE:
  The engine persists two logical keys in a local key-value store:
    config - the global Defaults
    data   - the present room collection

  Both are loaded once at startup. The undo archive is not persisted: a
  fresh process starts with a single "initial state" archive entry.

DEGRADATION:
  A missing data key, or one that is not a JSON array, is an empty
  collection, never a startup failure. Rooms are decoded one at a time:
  individual fields that fail to parse are absorbed by the lenient JSON
  types (Numeric, Number, Day, Date) or left zero, and the rest of the
  room and the collection survive. A missing or unreadable config key
  falls back to the configured defaults.

IMPLEMENTATIONS:
  - store/sqlite: SQLite key-value table
  - store/badger: Badger key-value store
  - store/memory: In-memory map for tests and ephemeral runs

SEE ALSO:
  - book.go: Commit hooks that drive Persister
*/
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	KeyConfig = "config"
	KeyData   = "data"

	// InitialDesc labels the archive entry created at startup.
	InitialDesc = "initial state"
)

// ErrKeyNotFound is returned by LocalStore.Get for a missing key.
var ErrKeyNotFound = errors.New("key not found")

// LocalStore is a small key-value store of JSON documents.
type LocalStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// AppState is everything loaded at startup.
type AppState struct {
	History HistoryState
	Config  Defaults
}

// LoadState reads the persisted collection and defaults. Only store I/O
// errors other than a missing key are returned.
func LoadState(ctx context.Context, store LocalStore, fallback Defaults, now time.Time) (AppState, error) {
	rooms, err := loadRooms(ctx, store)
	if err != nil {
		return AppState{}, err
	}
	config, err := loadConfig(ctx, store, fallback)
	if err != nil {
		return AppState{}, err
	}
	return AppState{
		History: NewHistory(rooms, InitialDesc, now),
		Config:  config,
	}, nil
}

func loadRooms(ctx context.Context, store LocalStore) ([]Room, error) {
	raw, err := store.Get(ctx, KeyData)
	if errors.Is(err, ErrKeyNotFound) {
		return []Room{}, nil
	}
	if err != nil {
		return nil, err
	}
	return DecodeRooms(raw), nil
}

func loadConfig(ctx context.Context, store LocalStore, fallback Defaults) (Defaults, error) {
	raw, err := store.Get(ctx, KeyConfig)
	if errors.Is(err, ErrKeyNotFound) {
		return fallback, nil
	}
	if err != nil {
		return Defaults{}, err
	}
	var d Defaults
	if json.Unmarshal(raw, &d) != nil {
		return fallback, nil
	}
	return d, nil
}

// DecodeRooms decodes a persisted collection. Anything that is not a JSON
// array decodes as an empty collection. Elements are decoded one by one:
// non-objects are dropped, and a room with a mistyped field keeps every
// field that did decode.
func DecodeRooms(raw []byte) []Room {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return []Room{}
	}
	rooms := make([]Room, 0, len(elems))
	for _, elem := range elems {
		if room, ok := decodeRoom(elem); ok {
			rooms = append(rooms, room)
		}
	}
	return rooms
}

// roomText holds the room's text fields as raw scalars, so a number stored
// where text belongs can still be read back.
type roomText struct {
	ID           any `json:"id"`
	RoomNo       any `json:"roomNo"`
	MoveInDate   any `json:"moveInDate"`
	TenantName   any `json:"tenantName"`
	TenantPhone  any `json:"tenantPhone"`
	TenantIDCard any `json:"tenantIdCard"`
}

func decodeRoom(raw json.RawMessage) (Room, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return Room{}, false
	}
	var room Room
	if err := json.Unmarshal(raw, &room); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return Room{}, false
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var text roomText
		if dec.Decode(&text) == nil {
			fillText(&room.ID, text.ID)
			fillText(&room.RoomNo, text.RoomNo)
			fillText(&room.MoveInDate, text.MoveInDate)
			fillText(&room.TenantName, text.TenantName)
			fillText(&room.TenantPhone, text.TenantPhone)
			fillText(&room.TenantIDCard, text.TenantIDCard)
		}
	}
	if room.ExtraFees == nil {
		room.ExtraFees = []ExtraFee{}
	}
	if room.BillHistory == nil {
		room.BillHistory = []BillRecord{}
	}
	return room, true
}

// fillText sets an empty field from a scalar stored as a number or bool.
func fillText(field *string, v any) {
	if *field != "" {
		return
	}
	switch x := v.(type) {
	case json.Number:
		*field = x.String()
	case bool:
		*field = strconv.FormatBool(x)
	}
}

// =============================================================================
// PERSISTER - Commit hooks writing through to a LocalStore
// =============================================================================

// Persister writes every commit and defaults change to a LocalStore.
// Write failures are logged; the in-memory commit stands.
type Persister struct {
	Store   LocalStore
	Logger  *zap.Logger
	Timeout time.Duration
}

// NewPersister creates a Persister with a 5s write timeout.
func NewPersister(store LocalStore, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{Store: store, Logger: logger, Timeout: 5 * time.Second}
}

// Attach registers the persister's hooks on book.
func (p *Persister) Attach(book *Book) {
	book.OnCommit(p.SaveRooms)
	book.OnConfig(p.SaveConfig)
}

// SaveRooms persists a committed collection.
func (p *Persister) SaveRooms(ev CommitEvent) {
	p.put(KeyData, ev.Rooms)
}

// SaveConfig persists the defaults.
func (p *Persister) SaveConfig(d Defaults) {
	p.put(KeyConfig, d)
}

func (p *Persister) put(key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		p.Logger.Error("encode local state", zap.String("key", key), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()
	if err := p.Store.Put(ctx, key, raw); err != nil {
		p.Logger.Error("persist local state", zap.String("key", key), zap.Error(err))
	}
}
