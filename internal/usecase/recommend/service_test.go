package recommend

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pulsefeed/internal/domain"
)

type stubCatalog struct {
	affinity []domain.ContentItem
	popular  []domain.ContentItem
	byAuthor map[string][]domain.ContentItem
}

func (s *stubCatalog) GetItem(_ context.Context, itemID string) (domain.ContentItem, error) {
	return domain.ContentItem{}, domain.ErrNotFound
}

func (s *stubCatalog) ListByAffinity(_ context.Context, _, _, _ []string, _ int) ([]domain.ContentItem, error) {
	return s.affinity, nil
}

func (s *stubCatalog) ListPopular(_ context.Context, limit int) ([]domain.ContentItem, error) {
	items := s.popular
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *stubCatalog) ListByAuthors(_ context.Context, authorIDs []string, _ int) ([]domain.ContentItem, error) {
	var out []domain.ContentItem
	for _, id := range authorIDs {
		out = append(out, s.byAuthor[id]...)
	}
	return out, nil
}

type stubEngagement struct {
	liked []domain.ContentItem
}

func (s *stubEngagement) ToggleLike(context.Context, string, string) (bool, int64, error) {
	return false, 0, nil
}
func (s *stubEngagement) IsLiked(context.Context, string, string) (bool, error) { return false, nil }
func (s *stubEngagement) ListLikedItems(context.Context, string) ([]domain.ContentItem, error) {
	return s.liked, nil
}
func (s *stubEngagement) IncrementView(context.Context, string) (int64, error)   { return 0, nil }
func (s *stubEngagement) IncrementShare(context.Context, string) (int64, error)  { return 0, nil }
func (s *stubEngagement) IncrementReplay(context.Context, string) (int64, error) { return 0, nil }

type stubGraph struct {
	following []string
}

func (s *stubGraph) ToggleFollow(context.Context, string, string) (bool, int64, error) {
	return false, 0, nil
}
func (s *stubGraph) FollowersCount(context.Context, string) (int64, error) { return 0, nil }
func (s *stubGraph) ListFollowing(context.Context, string) ([]string, error) {
	return s.following, nil
}
func (s *stubGraph) ListSuggested(context.Context, string, int) ([]domain.Creator, error) {
	return nil, nil
}

type memCache struct {
	data map[string][]domain.ContentItem
}

func (c *memCache) Get(_ context.Context, key string, dest any) (bool, error) {
	items, ok := c.data[key]
	if !ok {
		return false, nil
	}
	*dest.(*[]domain.ContentItem) = items
	return true, nil
}

func (c *memCache) Set(_ context.Context, key string, value any, _ int) error {
	c.data[key] = value.([]domain.ContentItem)
	return nil
}

func (c *memCache) Once(_ context.Context, _ string, _ int, fn func() error) error { return fn() }

func item(id string, likes, views int64, created time.Time) domain.ContentItem {
	return domain.ContentItem{ID: id, AuthorID: "author-" + id, Kind: domain.ItemKindShort, LikeCount: likes, ViewCount: views, CreatedAt: created}
}

func newService(catalog *stubCatalog, eng *stubEngagement, graph *stubGraph, cache domain.Cache) *Service {
	return NewService(catalog, eng, graph, cache, DefaultLimits(), zerolog.Nop())
}

func TestBuildProfileAggregation(t *testing.T) {
	base := time.Now()
	eng := &stubEngagement{liked: []domain.ContentItem{
		{ID: "v1", AudioRef: "track-a", Tags: []string{"dance", "fun"}, CreatedAt: base},
		{ID: "v2", AudioRef: "track-a", Tags: []string{"dance"}, CreatedAt: base},
		{ID: "v3", AudioRef: "", Tags: []string{"", "fun"}, CreatedAt: base},
	}}
	graph := &stubGraph{following: []string{"c1", "c2"}}
	service := newService(&stubCatalog{}, eng, graph, nil)

	profile, err := service.BuildProfile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if profile.AudioAffinities["track-a"] != 2 {
		t.Fatalf("ожидали частоту 2 для track-a, получили %d", profile.AudioAffinities["track-a"])
	}
	if _, ok := profile.AudioAffinities[""]; ok {
		t.Fatalf("пустая аудиодорожка не должна учитываться")
	}
	if profile.TagAffinities["dance"] != 2 || profile.TagAffinities["fun"] != 2 {
		t.Fatalf("неверные частоты тегов: %+v", profile.TagAffinities)
	}
	if len(profile.Excluded) != 3 {
		t.Fatalf("ожидали 3 исключённых, получили %d", len(profile.Excluded))
	}
	if len(profile.Following) != 2 {
		t.Fatalf("ожидали 2 подписки, получили %d", len(profile.Following))
	}
}

func TestRecommendExcludesLiked(t *testing.T) {
	base := time.Now()
	liked := item("v1", 100, 1000, base)
	liked.AudioRef = "track-a"
	// Каталог возвращает лайкнутый элемент среди кандидатов — сервис
	// обязан отфильтровать его сам.
	catalog := &stubCatalog{
		affinity: []domain.ContentItem{liked, item("v2", 50, 500, base)},
		popular:  []domain.ContentItem{liked, item("v3", 10, 100, base)},
	}
	eng := &stubEngagement{liked: []domain.ContentItem{liked}}
	service := newService(catalog, eng, &stubGraph{}, nil)

	items, err := service.Recommend(context.Background(), "u1", 20)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	for _, it := range items {
		if it.ID == "v1" {
			t.Fatalf("лайкнутый контент попал в выдачу")
		}
	}
	if len(items) != 2 {
		t.Fatalf("ожидали 2 элемента, получили %d", len(items))
	}
}

func TestRecommendPrimaryBeforeFallback(t *testing.T) {
	base := time.Now()
	liked := item("seed", 1, 1, base)
	liked.AudioRef = "track-a"
	// Популярный контент имеет больше лайков, но идёт после кандидатов по профилю.
	catalog := &stubCatalog{
		affinity: []domain.ContentItem{item("p1", 5, 50, base), item("p2", 7, 70, base)},
		popular:  []domain.ContentItem{item("f1", 900, 9000, base), item("f2", 800, 8000, base)},
	}
	eng := &stubEngagement{liked: []domain.ContentItem{liked}}
	service := newService(catalog, eng, &stubGraph{}, nil)

	items, err := service.Recommend(context.Background(), "u1", 4)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	want := []string{"p2", "p1", "f1", "f2"}
	if len(items) != len(want) {
		t.Fatalf("ожидали %d элементов, получили %d", len(want), len(items))
	}
	for i, id := range want {
		if items[i].ID != id {
			t.Fatalf("позиция %d: ожидали %s, получили %s", i, id, items[i].ID)
		}
	}
}

func TestRecommendDeterministicOrder(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	catalog := &stubCatalog{popular: []domain.ContentItem{
		item("b", 10, 100, base),
		item("a", 10, 100, base),
		item("c", 10, 200, base),
		item("d", 10, 100, base.Add(time.Hour)),
	}}
	service := newService(catalog, &stubEngagement{}, &stubGraph{}, nil)

	first, err := service.Recommend(context.Background(), "u1", 20)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	second, err := service.Recommend(context.Background(), "u1", 20)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	want := []string{"c", "d", "a", "b"}
	for i, id := range want {
		if first[i].ID != id || second[i].ID != id {
			t.Fatalf("позиция %d: ожидали %s, получили %s и %s", i, id, first[i].ID, second[i].ID)
		}
	}
}

func TestRecommendTopTwentyFromLargerPool(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	var popular []domain.ContentItem
	for i := 0; i < 25; i++ {
		popular = append(popular, item(fmt.Sprintf("v%02d", i), int64(i), int64(i*10), base))
	}
	catalog := &stubCatalog{popular: popular}
	service := newService(catalog, &stubEngagement{}, &stubGraph{}, nil)

	items, err := service.Recommend(context.Background(), "u1", 0)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(items) != 20 {
		t.Fatalf("ожидали 20 элементов, получили %d", len(items))
	}
	if items[0].ID != "v24" {
		t.Fatalf("первым должен быть самый залайканный, получили %s", items[0].ID)
	}
	for i := 1; i < len(items); i++ {
		if items[i-1].LikeCount < items[i].LikeCount {
			t.Fatalf("нарушен порядок по лайкам на позиции %d", i)
		}
	}
	if items[19].ID != "v05" {
		t.Fatalf("последним должен быть v05, получили %s", items[19].ID)
	}
}

func TestRecommendEmptyCatalog(t *testing.T) {
	service := newService(&stubCatalog{}, &stubEngagement{}, &stubGraph{}, nil)

	items, err := service.Recommend(context.Background(), "u1", 20)
	if err != nil {
		t.Fatalf("пустой каталог не должен быть ошибкой: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("ожидали пустую выдачу, получили %d", len(items))
	}
}

func TestRecommendUsesPopularCache(t *testing.T) {
	base := time.Now()
	cache := &memCache{data: map[string][]domain.ContentItem{}}
	catalog := &stubCatalog{popular: []domain.ContentItem{item("db", 1, 1, base)}}
	service := newService(catalog, &stubEngagement{}, &stubGraph{}, cache)

	cache.data[popularCacheKey] = []domain.ContentItem{item("cached", 9, 9, base)}

	items, err := service.Recommend(context.Background(), "u1", 20)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(items) != 1 || items[0].ID != "cached" {
		t.Fatalf("ожидали выдачу из кэша, получили %+v", items)
	}
}

func TestRefreshPopularFillsCache(t *testing.T) {
	base := time.Now()
	cache := &memCache{data: map[string][]domain.ContentItem{}}
	catalog := &stubCatalog{popular: []domain.ContentItem{item("hot", 5, 5, base)}}
	service := newService(catalog, &stubEngagement{}, &stubGraph{}, cache)

	if err := service.RefreshPopular(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	snapshot := cache.data[popularCacheKey]
	if len(snapshot) != 1 || snapshot[0].ID != "hot" {
		t.Fatalf("кэш не обновился: %+v", snapshot)
	}
}

func TestFeedReverseChronWithOwnItems(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	catalog := &stubCatalog{byAuthor: map[string][]domain.ContentItem{
		"c1": {item("old", 0, 0, base)},
		"u1": {item("mine", 0, 0, base.Add(2 * time.Hour))},
		"c2": {item("new", 0, 0, base.Add(time.Hour))},
	}}
	graph := &stubGraph{following: []string{"c1", "c2"}}
	service := newService(catalog, &stubEngagement{}, graph, nil)

	items, err := service.Feed(context.Background(), "u1", 20)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	want := []string{"mine", "new", "old"}
	if len(items) != len(want) {
		t.Fatalf("ожидали %d элементов, получили %d", len(want), len(items))
	}
	for i, id := range want {
		if items[i].ID != id {
			t.Fatalf("позиция %d: ожидали %s, получили %s", i, id, items[i].ID)
		}
	}
}
