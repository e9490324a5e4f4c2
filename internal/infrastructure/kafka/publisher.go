package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-reservation-engine/internal/config"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/booking"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/logger"
)

const (
	HeaderEventType = "event_type"
	HeaderDomain    = "domain"
)

var ErrPublisherClosed = errors.New("イベント配信は停止しています")

// MessageWriter は kafka.Writer のうち配信に使う部分
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter は予約イベント用の kafka.Writer を作成する
// 同じ予約のイベントが同じパーティションに載るようキーでハッシュする
func NewWriter(cfg *config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: 50 * time.Millisecond,
		Logger:       kafka.LoggerFunc(func(msg string, args ...any) {}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.Error("kafka writer error", zap.String("detail", fmt.Sprintf(msg, args...)))
		}),
	}
}

// BookingPublisher は予約台帳のイベントを Kafka に配信する
type BookingPublisher struct {
	writer MessageWriter
	mu     sync.RWMutex
	closed bool
}

func NewBookingPublisher(writer MessageWriter) *BookingPublisher {
	return &BookingPublisher{writer: writer}
}

// Publish はイベントを予約IDをキーにして配信する
func (p *BookingPublisher) Publish(ctx context.Context, ev booking.Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("イベントのエンコードに失敗: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.BookingID),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(ev.Type)},
			{Key: HeaderDomain, Value: []byte(ev.Domain)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("イベント配信に失敗: %w", err)
	}
	return nil
}

// Close は配信を停止して writer を閉じる
func (p *BookingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}
