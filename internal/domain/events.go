package domain

import (
	"context"
	"time"
)

// EngagementKind — тип события вовлечённости.
type EngagementKind string

const (
	// EngagementLike — пользователь поставил лайк.
	EngagementLike EngagementKind = "like"
	// EngagementUnlike — пользователь снял лайк.
	EngagementUnlike EngagementKind = "unlike"
	// EngagementSave — пользователь сохранил контент.
	EngagementSave EngagementKind = "save"
	// EngagementUnsave — пользователь убрал контент из сохранённого.
	EngagementUnsave EngagementKind = "unsave"
	// EngagementView — просмотр контента.
	EngagementView EngagementKind = "view"
	// EngagementShare — пользователь поделился контентом.
	EngagementShare EngagementKind = "share"
	// EngagementReplay — повторный просмотр контента.
	EngagementReplay EngagementKind = "replay"
	// EngagementFollow — подписка на автора.
	EngagementFollow EngagementKind = "follow"
	// EngagementUnfollow — отписка от автора.
	EngagementUnfollow EngagementKind = "unfollow"
)

// EngagementEvent — событие вовлечённости, публикуемое ядром в очередь
// и потребляемое воркером аналитики.
type EngagementEvent struct {
	ID         string         `json:"id"`
	Kind       EngagementKind `json:"kind"`
	UserID     string         `json:"user_id,omitempty"`
	ItemID     string         `json:"item_id,omitempty"`
	TargetID   string         `json:"target_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// EventAckFunc подтверждает обработку события. success=false возвращает
// событие в очередь для повторной обработки.
type EventAckFunc func(success bool) error

// EventQueue — очередь событий вовлечённости.
type EventQueue interface {
	Enqueue(ctx context.Context, event EngagementEvent) error
	// Receive блокируется до появления события или отмены контекста.
	Receive(ctx context.Context) (EngagementEvent, EventAckFunc, error)
}

// EventRepo сохраняет события вовлечённости для аналитики.
type EventRepo interface {
	SaveEvent(ctx context.Context, event EngagementEvent) error
}
