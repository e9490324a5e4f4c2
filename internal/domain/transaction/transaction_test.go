package transaction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	committed  bool
	rolledBack bool
	commitErr  error
}

func (t *fakeTx) Commit() error {
	t.committed = true
	return t.commitErr
}

func (t *fakeTx) Rollback() error {
	t.rolledBack = true
	return nil
}

type fakeManager struct {
	tx       *fakeTx
	beginErr error
}

func (m *fakeManager) Begin(ctx context.Context) (Tx, error) {
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	return m.tx, nil
}

func TestRun(t *testing.T) {
	t.Run("成功時はコミット", func(t *testing.T) {
		m := &fakeManager{tx: &fakeTx{}}

		err := Run(context.Background(), m, func(tx Tx) error { return nil })

		require.NoError(t, err)
		assert.True(t, m.tx.committed)
		assert.False(t, m.tx.rolledBack)
	})

	t.Run("エラー時はロールバックしてそのまま返す", func(t *testing.T) {
		m := &fakeManager{tx: &fakeTx{}}
		want := errors.New("cas miss")

		err := Run(context.Background(), m, func(tx Tx) error { return want })

		assert.Equal(t, want, err)
		assert.True(t, m.tx.rolledBack)
		assert.False(t, m.tx.committed)
	})

	t.Run("パニック時もロールバック", func(t *testing.T) {
		m := &fakeManager{tx: &fakeTx{}}

		assert.Panics(t, func() {
			_ = Run(context.Background(), m, func(tx Tx) error { panic("boom") })
		})
		assert.True(t, m.tx.rolledBack)
	})

	t.Run("開始失敗", func(t *testing.T) {
		m := &fakeManager{beginErr: errors.New("no conn")}

		err := Run(context.Background(), m, func(tx Tx) error { return nil })
		assert.Error(t, err)
	})

	t.Run("コミット失敗", func(t *testing.T) {
		m := &fakeManager{tx: &fakeTx{commitErr: errors.New("serialization failure")}}

		err := Run(context.Background(), m, func(tx Tx) error { return nil })
		assert.Error(t, err)
	})
}
