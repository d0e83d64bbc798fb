package recommend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"pulsefeed/internal/domain"
	"pulsefeed/internal/infra/metrics"
)

const popularCacheKey = "reco:popular"

// Limits задаёт размеры выдач и пула популярного контента.
type Limits struct {
	RecommendMax      int
	FeedMax           int
	PopularPool       int
	PopularTTLSeconds int
}

// DefaultLimits возвращает лимиты по умолчанию.
func DefaultLimits() Limits {
	return Limits{RecommendMax: 20, FeedMax: 20, PopularPool: 100, PopularTTLSeconds: 300}
}

// Service реализует извлечение профиля вкусов и подбор контента.
type Service struct {
	catalog    domain.CatalogRepo
	engagement domain.EngagementRepo
	graph      domain.GraphRepo
	cache      domain.Cache
	limits     Limits
	logger     zerolog.Logger
}

var _ domain.RecommendService = (*Service)(nil)

// NewService создаёт сервис подбора. cache может быть nil — тогда
// популярный контент всегда читается из каталога.
func NewService(catalog domain.CatalogRepo, engagement domain.EngagementRepo, graph domain.GraphRepo, cache domain.Cache, limits Limits, logger zerolog.Logger) *Service {
	if limits.RecommendMax <= 0 {
		limits.RecommendMax = DefaultLimits().RecommendMax
	}
	if limits.FeedMax <= 0 {
		limits.FeedMax = DefaultLimits().FeedMax
	}
	if limits.PopularPool <= 0 {
		limits.PopularPool = DefaultLimits().PopularPool
	}
	if limits.PopularTTLSeconds <= 0 {
		limits.PopularTTLSeconds = DefaultLimits().PopularTTLSeconds
	}
	return &Service{catalog: catalog, engagement: engagement, graph: graph, cache: cache, limits: limits, logger: logger}
}

// BuildProfile строит неявный профиль вкусов пользователя из его лайков
// и подписок. Профиль нигде не сохраняется.
func (s *Service) BuildProfile(ctx context.Context, userID string) (domain.PreferenceProfile, error) {
	profile := domain.PreferenceProfile{
		AudioAffinities: map[string]int{},
		TagAffinities:   map[string]int{},
		Following:       map[string]struct{}{},
		Excluded:        map[string]struct{}{},
	}

	liked, err := s.engagement.ListLikedItems(ctx, userID)
	if err != nil {
		return domain.PreferenceProfile{}, fmt.Errorf("лайки пользователя: %w", err)
	}
	for _, item := range liked {
		profile.Excluded[item.ID] = struct{}{}
		if item.AudioRef != "" {
			profile.AudioAffinities[item.AudioRef]++
		}
		for _, tag := range item.Tags {
			if tag != "" {
				profile.TagAffinities[tag]++
			}
		}
	}

	following, err := s.graph.ListFollowing(ctx, userID)
	if err != nil {
		return domain.PreferenceProfile{}, fmt.Errorf("подписки пользователя: %w", err)
	}
	for _, id := range following {
		profile.Following[id] = struct{}{}
	}

	return profile, nil
}

// Recommend возвращает до limit единиц контента: сначала кандидаты по
// профилю вкусов, затем добор из глобально популярного. Лайкнутое
// пользователем никогда не попадает в выдачу.
func (s *Service) Recommend(ctx context.Context, userID string, limit int) ([]domain.ContentItem, error) {
	start := time.Now()
	defer metrics.ObserveRecommendationBuild(start)

	if limit <= 0 || limit > s.limits.RecommendMax {
		limit = s.limits.RecommendMax
	}

	profile, err := s.BuildProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := make([]domain.ContentItem, 0, limit)
	seen := make(map[string]struct{}, limit)

	if profile.HasSignal() {
		candidates, err := s.catalog.ListByAffinity(ctx,
			sortedKeys(profile.AudioAffinities),
			sortedKeys(profile.TagAffinities),
			sortedSet(profile.Following),
			s.limits.PopularPool,
		)
		if err != nil {
			return nil, fmt.Errorf("кандидаты по профилю: %w", err)
		}
		primary := make([]domain.ContentItem, 0, len(candidates))
		for _, item := range candidates {
			if _, excluded := profile.Excluded[item.ID]; excluded {
				continue
			}
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			primary = append(primary, item)
		}
		rankItems(primary)
		result = append(result, primary...)
	}

	if len(result) < limit {
		popular, err := s.popularPool(ctx)
		if err != nil {
			return nil, err
		}
		fallback := make([]domain.ContentItem, 0, len(popular))
		for _, item := range popular {
			if _, excluded := profile.Excluded[item.ID]; excluded {
				continue
			}
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			fallback = append(fallback, item)
		}
		rankItems(fallback)
		result = append(result, fallback...)
	}

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Feed возвращает контент подписок и собственный контент пользователя,
// новые сверху.
func (s *Service) Feed(ctx context.Context, userID string, limit int) ([]domain.ContentItem, error) {
	if limit <= 0 || limit > s.limits.FeedMax {
		limit = s.limits.FeedMax
	}

	following, err := s.graph.ListFollowing(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("подписки пользователя: %w", err)
	}
	authors := append(following, userID)

	items, err := s.catalog.ListByAuthors(ctx, authors, limit)
	if err != nil {
		return nil, fmt.Errorf("лента подписок: %w", err)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// RefreshPopular перечитывает пул популярного контента из каталога и
// кладёт снимок в кэш. Устаревший снимок допустим до следующего обновления.
func (s *Service) RefreshPopular(ctx context.Context) error {
	items, err := s.catalog.ListPopular(ctx, s.limits.PopularPool)
	if err != nil {
		return fmt.Errorf("популярный контент: %w", err)
	}
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Set(ctx, popularCacheKey, items, s.limits.PopularTTLSeconds); err != nil {
		return fmt.Errorf("кэш популярного: %w", err)
	}
	return nil
}

// popularPool отдаёт пул популярного контента из кэша, при промахе — из каталога.
func (s *Service) popularPool(ctx context.Context) ([]domain.ContentItem, error) {
	if s.cache != nil {
		var cached []domain.ContentItem
		hit, err := s.cache.Get(ctx, popularCacheKey, &cached)
		if err != nil {
			s.logger.Warn().Err(err).Msg("кэш популярного недоступен, читаем каталог")
		} else if hit {
			return cached, nil
		}
	}
	items, err := s.catalog.ListPopular(ctx, s.limits.PopularPool)
	if err != nil {
		return nil, fmt.Errorf("популярный контент: %w", err)
	}
	return items, nil
}

// rankItems упорядочивает контент детерминированно: лайки по убыванию,
// затем просмотры, затем дата публикации, затем ID.
func rankItems(items []domain.ContentItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].LikeCount != items[j].LikeCount {
			return items[i].LikeCount > items[j].LikeCount
		}
		if items[i].ViewCount != items[j].ViewCount {
			return items[i].ViewCount > items[j].ViewCount
		}
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSet(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
