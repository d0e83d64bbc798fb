package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pulsefeed/internal/domain"
)

const defaultSuggestedLimit = 10

// Service реализует бизнес-логику социального графа: подписки,
// рекомендованные авторы и производные значки.
type Service struct {
	graph  domain.GraphRepo
	queue  domain.EventQueue
	logger zerolog.Logger
}

var _ domain.GraphService = (*Service)(nil)

// NewService создаёт сервис графа. queue может быть nil.
func NewService(graph domain.GraphRepo, queue domain.EventQueue, logger zerolog.Logger) *Service {
	return &Service{graph: graph, queue: queue, logger: logger}
}

// ToggleFollow переключает подписку и возвращает новое состояние,
// число подписчиков и пересчитанный значок followee.
// Подписка на себя отклоняется до обращения к хранилищу.
func (s *Service) ToggleFollow(ctx context.Context, followerID, followeeID string) (domain.FollowResult, error) {
	if followerID == followeeID {
		return domain.FollowResult{}, fmt.Errorf("подписка на себя: %w", domain.ErrInvalidOperation)
	}

	following, followers, err := s.graph.ToggleFollow(ctx, followerID, followeeID)
	if err != nil {
		return domain.FollowResult{}, fmt.Errorf("переключение подписки: %w", err)
	}

	kind := domain.EngagementFollow
	if !following {
		kind = domain.EngagementUnfollow
	}
	s.publish(ctx, domain.EngagementEvent{Kind: kind, UserID: followerID, TargetID: followeeID})

	return domain.FollowResult{
		IsFollowing:    following,
		FollowersCount: followers,
		Badge:          domain.TierForFollowers(followers),
	}, nil
}

// Badge возвращает число подписчиков пользователя и значок,
// пересчитанный на момент запроса.
func (s *Service) Badge(ctx context.Context, userID string) (domain.FollowResult, error) {
	followers, err := s.graph.FollowersCount(ctx, userID)
	if err != nil {
		return domain.FollowResult{}, fmt.Errorf("число подписчиков: %w", err)
	}
	return domain.FollowResult{
		FollowersCount: followers,
		Badge:          domain.TierForFollowers(followers),
	}, nil
}

// Suggested возвращает авторов, на которых пользователь ещё не подписан,
// по убыванию аудитории.
func (s *Service) Suggested(ctx context.Context, userID string, limit int) ([]domain.Creator, error) {
	if limit <= 0 {
		limit = defaultSuggestedLimit
	}
	creators, err := s.graph.ListSuggested(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("рекомендованные авторы: %w", err)
	}
	return creators, nil
}

func (s *Service) publish(ctx context.Context, event domain.EngagementEvent) {
	if s.queue == nil {
		return
	}
	event.ID = uuid.NewString()
	event.OccurredAt = time.Now().UTC()
	if err := s.queue.Enqueue(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("kind", string(event.Kind)).Msg("не удалось опубликовать событие графа")
	}
}
