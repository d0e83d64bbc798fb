package domain

import "time"

// ItemKind описывает тип единицы контента.
type ItemKind string

const (
	ItemKindVideo ItemKind = "video"
	ItemKindShort ItemKind = "short"
	ItemKindStory ItemKind = "story"
)

// ContentItem описывает единицу контента в каталоге.
// Каталогом владеет внешний сервис публикаций: ядро меняет только
// счётчики и множество лайкнувших, но не метаданные.
type ContentItem struct {
	ID          string
	AuthorID    string
	Kind        ItemKind
	Caption     string
	Tags        []string
	AudioRef    string
	VideoURL    string
	Thumbnail   string
	LikeCount   int64
	ShareCount  int64
	ViewCount   int64
	ReplayCount int64
	CommentRefs []string
	CreatedAt   time.Time
}

// SavedRecord хранит факт сохранения контента пользователем.
// На пару (UserID, ItemID) существует не более одной записи.
type SavedRecord struct {
	UserID    string
	ItemID    string
	CreatedAt time.Time
}

// FollowEdge описывает подписку одного пользователя на другого.
// Саморебро запрещено, на упорядоченную пару допускается не более одного ребра.
type FollowEdge struct {
	FollowerID string
	FolloweeID string
	CreatedAt  time.Time
}

// Creator описывает автора контента в социальном графе.
type Creator struct {
	ID        string
	Followers int64
}

// PreferenceProfile содержит неявный профиль вкусов пользователя.
// Строится на лету из лайков и подписок, нигде не сохраняется.
type PreferenceProfile struct {
	AudioAffinities map[string]int
	TagAffinities   map[string]int
	Following       map[string]struct{}
	Excluded        map[string]struct{}
}

// HasSignal сообщает, есть ли у профиля хоть какой-то персональный сигнал.
func (p PreferenceProfile) HasSignal() bool {
	return len(p.AudioAffinities) > 0 || len(p.TagAffinities) > 0 || len(p.Following) > 0
}
