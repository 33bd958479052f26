package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marcandre22/ready-mix-coach/internal/types"
)

// Store is one immutable load of the ticket table. Never mutate Tickets;
// reloads produce a new Store with a higher Version.
type Store struct {
	Tickets  []types.Ticket
	Version  uint64
	Source   string
	LoadedAt time.Time
}

// Holder publishes the current Store to concurrent readers.
type Holder struct {
	cur     atomic.Pointer[Store]
	version atomic.Uint64
	onSwap  func(*Store)
}

func NewHolder(tickets []types.Ticket, source string) *Holder {
	h := &Holder{}
	h.Replace(tickets, source)
	return h
}

// OnSwap registers fn to run after every Replace. Set it before sharing h.
func (h *Holder) OnSwap(fn func(*Store)) { h.onSwap = fn }

func (h *Holder) Current() *Store { return h.cur.Load() }

// Replace publishes tickets as a new version and returns it.
func (h *Holder) Replace(tickets []types.Ticket, source string) *Store {
	s := &Store{
		Tickets:  tickets,
		Version:  h.version.Add(1),
		Source:   source,
		LoadedAt: time.Now(),
	}
	h.cur.Store(s)
	if h.onSwap != nil {
		h.onSwap(s)
	}
	return s
}

// Reload loads path again and swaps it in. On error the current store stays.
func (h *Holder) Reload(path string, opts Options) (*Store, error) {
	tickets, err := Load(path, opts)
	if err != nil {
		return nil, err
	}
	return h.Replace(tickets, path), nil
}

// Watch reloads path into h whenever the file is written or replaced, until
// ctx is done. Bursts of events within debounce collapse into one reload.
func Watch(ctx context.Context, path string, h *Holder, opts Options, debounce time.Duration) error {
	log := opts.logger().WithField("path", path)
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	// Watch the directory: editors and exporters often replace the file.
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	log.Info("watching dataset for changes")

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			evAbs, _ := filepath.Abs(ev.Name)
			if evAbs != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("watcher error")

		case <-fire:
			s, err := h.Reload(path, opts)
			if err != nil {
				log.WithError(err).Error("reload failed, keeping previous dataset")
				continue
			}
			log.WithField("version", s.Version).WithField("tickets", len(s.Tickets)).Info("dataset reloaded")
		}
	}
}
