// Package memory はユニットと予約台帳のインメモリ実装。
// STORE_DRIVER=memory での起動とテストに使う
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/sanosuguru/go-reservation-engine/internal/domain/booking"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/transaction"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/unit"
)

var ErrTxRequired = errors.New("memory: トランザクションが必要です")

// Store は全データを1つのミューテックスで保護する
// トランザクションは Begin から Commit/Rollback までロックを保持する
type Store struct {
	mu          sync.Mutex
	units       map[string]*unit.Unit
	byResource  map[string][]string
	bookings    map[string]*booking.Booking
	order       []string          // 予約の追加順
	activeUnits map[string]string // unitID -> 確定済みの bookingID
}

func NewStore() *Store {
	return &Store{
		units:       make(map[string]*unit.Unit),
		byResource:  make(map[string][]string),
		bookings:    make(map[string]*booking.Booking),
		activeUnits: make(map[string]string),
	}
}

// Begin はストア全体のロックを取得してトランザクションを開始する
func (s *Store) Begin(ctx context.Context) (transaction.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &Tx{store: s}, nil
}

// Tx は取り消しログを持つトランザクション
type Tx struct {
	store *Store
	undo  []func()
	done  bool
}

func (t *Tx) Commit() error {
	if t.done {
		return errors.New("memory: トランザクションは終了しています")
	}
	t.done = true
	t.undo = nil
	t.store.mu.Unlock()
	return nil
}

// Rollback は変更を逆順に取り消す。終了済みなら何もしない
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.done = true
	t.undo = nil
	t.store.mu.Unlock()
	return nil
}

func (t *Tx) record(fn func()) {
	t.undo = append(t.undo, fn)
}

func (s *Store) unwrap(tx transaction.Tx) (*Tx, error) {
	mt, ok := tx.(*Tx)
	if !ok || mt.store != s || mt.done {
		return nil, ErrTxRequired
	}
	return mt, nil
}
