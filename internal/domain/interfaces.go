package domain

import "context"

// CatalogRepo — чтение каталога контента. Каталог наполняется внешним
// сервисом публикаций, ядро его только читает.
type CatalogRepo interface {
	GetItem(ctx context.Context, itemID string) (ContentItem, error)
	// ListByAffinity возвращает кандидатов, у которых аудиодорожка или тег
	// входят в профиль, либо автор входит в множество подписок.
	ListByAffinity(ctx context.Context, audioRefs, tags []string, authorIDs []string, limit int) ([]ContentItem, error)
	// ListPopular возвращает глобально популярный контент.
	ListPopular(ctx context.Context, limit int) ([]ContentItem, error)
	// ListByAuthors возвращает контент указанных авторов в обратном
	// хронологическом порядке.
	ListByAuthors(ctx context.Context, authorIDs []string, limit int) ([]ContentItem, error)
}

// EngagementRepo — лайки и монотонные счётчики.
type EngagementRepo interface {
	// ToggleLike атомарно переключает лайк и возвращает новое состояние
	// и число лайков после переключения.
	ToggleLike(ctx context.Context, userID, itemID string) (liked bool, likes int64, err error)
	IsLiked(ctx context.Context, userID, itemID string) (bool, error)
	// ListLikedItems возвращает контент, лайкнутый пользователем.
	ListLikedItems(ctx context.Context, userID string) ([]ContentItem, error)
	IncrementView(ctx context.Context, itemID string) (int64, error)
	IncrementShare(ctx context.Context, itemID string) (int64, error)
	IncrementReplay(ctx context.Context, itemID string) (int64, error)
}

// SavedRepo — индекс сохранённого контента.
type SavedRepo interface {
	ToggleSaved(ctx context.Context, userID, itemID string) (saved bool, err error)
	IsSaved(ctx context.Context, userID, itemID string) (bool, error)
	ListSaved(ctx context.Context, userID string) ([]ContentItem, error)
	// SavedSet возвращает подмножество itemIDs, сохранённое пользователем.
	SavedSet(ctx context.Context, userID string, itemIDs []string) (map[string]bool, error)
}

// GraphRepo — социальный граф подписок.
type GraphRepo interface {
	// ToggleFollow атомарно переключает подписку и возвращает новое состояние
	// и число подписчиков followee после переключения.
	ToggleFollow(ctx context.Context, followerID, followeeID string) (following bool, followers int64, err error)
	FollowersCount(ctx context.Context, userID string) (int64, error)
	ListFollowing(ctx context.Context, userID string) ([]string, error)
	// ListSuggested возвращает авторов, на которых пользователь не подписан,
	// по убыванию числа подписчиков.
	ListSuggested(ctx context.Context, userID string, limit int) ([]Creator, error)
}

// Cache — TTL-кэш для снимков популярного контента и дедупликации работ.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttlSeconds int) error
	// Once выполняет fn не чаще одного раза за ttlSeconds на ключ.
	Once(ctx context.Context, key string, ttlSeconds int, fn func() error) error
}

// ItemEngagement — контент вместе с состоянием вовлечённости пользователя.
type ItemEngagement struct {
	Item    ContentItem
	IsLiked bool
	IsSaved bool
}

// EngagementService — операции ленты вовлечённости для HTTP-слоя.
type EngagementService interface {
	ItemEngagement(ctx context.Context, userID, itemID string) (ItemEngagement, error)
	ToggleLike(ctx context.Context, userID, itemID string) (liked bool, likes int64, err error)
	ToggleSaved(ctx context.Context, userID, itemID string) (bool, error)
	ListSaved(ctx context.Context, userID string) ([]ContentItem, error)
	SavedSet(ctx context.Context, userID string, itemIDs []string) (map[string]bool, error)
	RecordView(ctx context.Context, itemID string) (int64, error)
	RecordShare(ctx context.Context, itemID string) (int64, error)
	RecordReplay(ctx context.Context, itemID string) (int64, error)
}

// GraphService — операции социального графа для HTTP-слоя.
type GraphService interface {
	ToggleFollow(ctx context.Context, followerID, followeeID string) (FollowResult, error)
	Badge(ctx context.Context, userID string) (FollowResult, error)
	Suggested(ctx context.Context, userID string, limit int) ([]Creator, error)
}

// FollowResult — результат операции над графом вместе с производным значком.
type FollowResult struct {
	IsFollowing    bool
	FollowersCount int64
	Badge          BadgeTier
}

// RecommendService — подбор контента для HTTP-слоя.
type RecommendService interface {
	Recommend(ctx context.Context, userID string, limit int) ([]ContentItem, error)
	Feed(ctx context.Context, userID string, limit int) ([]ContentItem, error)
}
