package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pulsefeed/internal/domain"
)

// Service реализует бизнес-логику ленты вовлечённости: лайки,
// сохранённое и монотонные счётчики.
type Service struct {
	catalog    domain.CatalogRepo
	engagement domain.EngagementRepo
	saved      domain.SavedRepo
	queue      domain.EventQueue
	logger     zerolog.Logger
}

var _ domain.EngagementService = (*Service)(nil)

// NewService создаёт сервис вовлечённости. queue может быть nil —
// тогда события не публикуются.
func NewService(catalog domain.CatalogRepo, engagement domain.EngagementRepo, saved domain.SavedRepo, queue domain.EventQueue, logger zerolog.Logger) *Service {
	return &Service{catalog: catalog, engagement: engagement, saved: saved, queue: queue, logger: logger}
}

// ItemEngagement возвращает контент вместе с тем, лайкнул и сохранил ли
// его пользователь.
func (s *Service) ItemEngagement(ctx context.Context, userID, itemID string) (domain.ItemEngagement, error) {
	item, err := s.catalog.GetItem(ctx, itemID)
	if err != nil {
		return domain.ItemEngagement{}, fmt.Errorf("чтение контента: %w", err)
	}
	liked, err := s.engagement.IsLiked(ctx, userID, itemID)
	if err != nil {
		return domain.ItemEngagement{}, fmt.Errorf("состояние лайка: %w", err)
	}
	saved, err := s.saved.IsSaved(ctx, userID, itemID)
	if err != nil {
		return domain.ItemEngagement{}, fmt.Errorf("состояние сохранения: %w", err)
	}
	return domain.ItemEngagement{Item: item, IsLiked: liked, IsSaved: saved}, nil
}

// ToggleLike переключает лайк пользователя и возвращает новое состояние
// вместе с актуальным числом лайков.
func (s *Service) ToggleLike(ctx context.Context, userID, itemID string) (bool, int64, error) {
	liked, likes, err := s.engagement.ToggleLike(ctx, userID, itemID)
	if err != nil {
		return false, 0, fmt.Errorf("переключение лайка: %w", err)
	}
	kind := domain.EngagementLike
	if !liked {
		kind = domain.EngagementUnlike
	}
	s.publish(ctx, domain.EngagementEvent{Kind: kind, UserID: userID, ItemID: itemID})
	return liked, likes, nil
}

// ToggleSaved переключает сохранение контента. Конкурентный дубль
// сохранения поглощается как уже достигнутое состояние.
func (s *Service) ToggleSaved(ctx context.Context, userID, itemID string) (bool, error) {
	saved, err := s.saved.ToggleSaved(ctx, userID, itemID)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyInState) {
			s.publish(ctx, domain.EngagementEvent{Kind: domain.EngagementSave, UserID: userID, ItemID: itemID})
			return true, nil
		}
		return false, fmt.Errorf("переключение сохранения: %w", err)
	}
	kind := domain.EngagementSave
	if !saved {
		kind = domain.EngagementUnsave
	}
	s.publish(ctx, domain.EngagementEvent{Kind: kind, UserID: userID, ItemID: itemID})
	return saved, nil
}

// ListSaved возвращает сохранённый контент пользователя, новые сверху.
func (s *Service) ListSaved(ctx context.Context, userID string) ([]domain.ContentItem, error) {
	items, err := s.saved.ListSaved(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("список сохранённого: %w", err)
	}
	return items, nil
}

// SavedSet возвращает, какие из itemIDs сохранены пользователем.
func (s *Service) SavedSet(ctx context.Context, userID string, itemIDs []string) (map[string]bool, error) {
	if len(itemIDs) == 0 {
		return map[string]bool{}, nil
	}
	set, err := s.saved.SavedSet(ctx, userID, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("проверка сохранённого: %w", err)
	}
	return set, nil
}

// RecordView инкрементирует счётчик просмотров.
func (s *Service) RecordView(ctx context.Context, itemID string) (int64, error) {
	count, err := s.engagement.IncrementView(ctx, itemID)
	if err != nil {
		return 0, fmt.Errorf("счётчик просмотров: %w", err)
	}
	s.publish(ctx, domain.EngagementEvent{Kind: domain.EngagementView, ItemID: itemID})
	return count, nil
}

// RecordShare инкрементирует счётчик репостов.
func (s *Service) RecordShare(ctx context.Context, itemID string) (int64, error) {
	count, err := s.engagement.IncrementShare(ctx, itemID)
	if err != nil {
		return 0, fmt.Errorf("счётчик репостов: %w", err)
	}
	s.publish(ctx, domain.EngagementEvent{Kind: domain.EngagementShare, ItemID: itemID})
	return count, nil
}

// RecordReplay инкрементирует счётчик повторных просмотров.
func (s *Service) RecordReplay(ctx context.Context, itemID string) (int64, error) {
	count, err := s.engagement.IncrementReplay(ctx, itemID)
	if err != nil {
		return 0, fmt.Errorf("счётчик повторов: %w", err)
	}
	s.publish(ctx, domain.EngagementEvent{Kind: domain.EngagementReplay, ItemID: itemID})
	return count, nil
}

// publish отправляет событие в очередь best-effort: отказ очереди
// логируется и не влияет на результат операции.
func (s *Service) publish(ctx context.Context, event domain.EngagementEvent) {
	if s.queue == nil {
		return
	}
	event.ID = uuid.NewString()
	event.OccurredAt = time.Now().UTC()
	if err := s.queue.Enqueue(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("kind", string(event.Kind)).Msg("не удалось опубликовать событие вовлечённости")
	}
}
