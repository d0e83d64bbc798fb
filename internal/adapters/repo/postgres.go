package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pulsefeed/internal/domain"
	"pulsefeed/internal/infra/metrics"
)

// Postgres реализует все репозитории ядра поверх pgxpool.
//
// Схема:
//
//	users(id text pk, username text, created_at timestamptz)
//	items(id text pk, author_id text, kind text, caption text, tags text[],
//	      audio_ref text, video_url text, thumbnail text, comment_refs text[],
//	      like_count bigint, share_count bigint, view_count bigint,
//	      replay_count bigint, created_at timestamptz)
//	item_likes(item_id text, user_id text, created_at timestamptz,
//	      primary key(item_id, user_id))
//	saved_items(id bigserial pk, user_id text, item_id text,
//	      created_at timestamptz, unique(user_id, item_id))
//	follows(follower_id text, followee_id text, created_at timestamptz,
//	      primary key(follower_id, followee_id))
//	engagement_events(id text pk, kind text, user_id text, item_id text,
//	      target_id text, occurred_at timestamptz)
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.CatalogRepo    = (*Postgres)(nil)
	_ domain.EngagementRepo = (*Postgres)(nil)
	_ domain.SavedRepo      = (*Postgres)(nil)
	_ domain.GraphRepo      = (*Postgres)(nil)
	_ domain.EventRepo      = (*Postgres)(nil)
)

// NewPostgres создаёт репозиторий.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func connCtxWithParent(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		return connCtx()
	}
	return context.WithTimeout(parent, 5*time.Second)
}

// translateErr приводит ошибки драйвера к доменной таксономии.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyInState, pgErr.ConstraintName)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}

const itemColumns = `id, author_id, kind, caption, tags, audio_ref, video_url, thumbnail, comment_refs,
	like_count, share_count, view_count, replay_count, created_at`

func scanItem(row pgx.Row) (domain.ContentItem, error) {
	var item domain.ContentItem
	var kind string
	err := row.Scan(&item.ID, &item.AuthorID, &kind, &item.Caption, &item.Tags, &item.AudioRef,
		&item.VideoURL, &item.Thumbnail, &item.CommentRefs,
		&item.LikeCount, &item.ShareCount, &item.ViewCount, &item.ReplayCount, &item.CreatedAt)
	if err != nil {
		return domain.ContentItem{}, err
	}
	item.Kind = domain.ItemKind(kind)
	return item, nil
}

func collectItems(rows pgx.Rows) ([]domain.ContentItem, error) {
	defer rows.Close()
	var items []domain.ContentItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func notNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// GetItem возвращает единицу контента по ID.
func (p *Postgres) GetItem(ctx context.Context, itemID string) (domain.ContentItem, error) {
	callCtx, cancel := connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	item, err := scanItem(p.pool.QueryRow(callCtx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`, itemID))
	metrics.ObserveNetworkRequest("postgres", "get_item", "items", start, err)
	if err != nil {
		return domain.ContentItem{}, translateErr(err)
	}
	return item, nil
}

// ListByAffinity возвращает кандидатов по аудиодорожкам, тегам и авторам.
func (p *Postgres) ListByAffinity(ctx context.Context, audioRefs, tags, authorIDs []string, limit int) ([]domain.ContentItem, error) {
	callCtx, cancel := connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(callCtx,
		`SELECT `+itemColumns+` FROM items
		 WHERE audio_ref = ANY($1) OR tags && $2 OR author_id = ANY($3)
		 ORDER BY like_count DESC, view_count DESC, created_at DESC, id ASC
		 LIMIT $4`,
		notNil(audioRefs), notNil(tags), notNil(authorIDs), limit)
	if err != nil {
		metrics.ObserveNetworkRequest("postgres", "list_by_affinity", "items", start, err)
		return nil, translateErr(err)
	}
	items, err := collectItems(rows)
	metrics.ObserveNetworkRequest("postgres", "list_by_affinity", "items", start, err)
	if err != nil {
		return nil, translateErr(err)
	}
	return items, nil
}

// ListPopular возвращает глобально популярный контент.
func (p *Postgres) ListPopular(ctx context.Context, limit int) ([]domain.ContentItem, error) {
	callCtx, cancel := connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(callCtx,
		`SELECT `+itemColumns+` FROM items
		 ORDER BY like_count DESC, view_count DESC, created_at DESC, id ASC
		 LIMIT $1`, limit)
	if err != nil {
		metrics.ObserveNetworkRequest("postgres", "list_popular", "items", start, err)
		return nil, translateErr(err)
	}
	items, err := collectItems(rows)
	metrics.ObserveNetworkRequest("postgres", "list_popular", "items", start, err)
	if err != nil {
		return nil, translateErr(err)
	}
	return items, nil
}

// ListByAuthors возвращает контент авторов, новые сверху.
func (p *Postgres) ListByAuthors(ctx context.Context, authorIDs []string, limit int) ([]domain.ContentItem, error) {
	callCtx, cancel := connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(callCtx,
		`SELECT `+itemColumns+` FROM items
		 WHERE author_id = ANY($1)
		 ORDER BY created_at DESC, id ASC
		 LIMIT $2`, notNil(authorIDs), limit)
	if err != nil {
		metrics.ObserveNetworkRequest("postgres", "list_by_authors", "items", start, err)
		return nil, translateErr(err)
	}
	items, err := collectItems(rows)
	metrics.ObserveNetworkRequest("postgres", "list_by_authors", "items", start, err)
	if err != nil {
		return nil, translateErr(err)
	}
	return items, nil
}

// ToggleLike атомарно переключает лайк. Счётчик пересчитывается из
// множества лайкнувших в той же транзакции, поэтому они не расходятся.
func (p *Postgres) ToggleLike(ctx context.Context, userID, itemID string) (bool, int64, error) {
	callCtx, cancel := connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()

	var liked bool
	var likes int64
	err := pgx.BeginFunc(callCtx, p.pool, func(tx pgx.Tx) error {
		var id string
		if err := tx.QueryRow(callCtx, `SELECT id FROM items WHERE id = $1 FOR UPDATE`, itemID).Scan(&id); err != nil {
			return err
		}
		tag, err := tx.Exec(callCtx,
			`DELETE FROM item_likes WHERE item_id = $1 AND user_id = $2`, itemID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			if _, err := tx.Exec(callCtx,
				`INSERT INTO item_likes (item_id, user_id, created_at) VALUES ($1, $2, now())
				 ON CONFLICT (item_id, user_id) DO NOTHING`, itemID, userID); err != nil {
				return err
			}
			liked = true
		}
		return tx.QueryRow(callCtx,
			`UPDATE items
			 SET like_count = (SELECT count(*) FROM item_likes WHERE item_id = $1)
			 WHERE id = $1
			 RETURNING like_count`, itemID).Scan(&likes)
	})
	metrics.ObserveNetworkRequest("postgres", "toggle_like", "item_likes", start, err)
	if err != nil {
		return false, 0, translateErr(err)
	}
	return liked, likes, nil
}

// IsLiked проверяет, лайкнул ли пользователь контент.
func (p *Postgres) IsLiked(ctx context.Context, userID, itemID string) (bool, error) {
	callCtx, cancel := connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	var liked bool
	err := p.pool.QueryRow(callCtx,
		`SELECT EXISTS (SELECT 1 FROM item_likes WHERE item_id = $1 AND user_id = $2)`,
		itemID, userID).Scan(&liked)
	metrics.ObserveNetworkRequest("postgres", "is_liked", "item_likes", start, err)
	if err != nil {
		return false, translateErr(err)
	}
	return liked, nil
}

// ListLikedItems возвращает лайкнутый пользователем контент, новые лайки сверху.
func (p *Postgres) ListLikedItems(ctx context.Context, userID string) ([]domain.ContentItem, error) {
	callCtx, cancel := connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(callCtx,
		`SELECT `+itemColumnsPrefixed("i")+` FROM items i
		 JOIN item_likes l ON l.item_id = i.id
		 WHERE l.user_id = $1
		 ORDER BY l.created_at DESC, i.id ASC`, userID)
	if err != nil {
		metrics.ObserveNetworkRequest("postgres", "list_liked", "item_likes", start, err)
		return nil, translateErr(err)
	}
	items, err := collectItems(rows)
	metrics.ObserveNetworkRequest("postgres", "list_liked", "item_likes", start, err)
	if err != nil {
		return nil, translateErr(err)
	}
	return items, nil
}

func (p *Postgres) incrementCounter(ctx context.Context, op, column, itemID string) (int64, error) {
	callCtx, cancel := connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	var count int64
	err := p.pool.QueryRow(callCtx,
		`UPDATE items SET `+column+` = `+column+` + 1 WHERE id = $1 RETURNING `+column, itemID).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", op, "items", start, err)
	if err != nil {
		return 0, translateErr(err)
	}
	return count, nil
}

// IncrementView инкрементирует счётчик просмотров.
func (p *Postgres) IncrementView(ctx context.Context, itemID string) (int64, error) {
	return p.incrementCounter(ctx, "increment_view", "view_count", itemID)
}

// IncrementShare инкрементирует счётчик репостов.
func (p *Postgres) IncrementShare(ctx context.Context, itemID string) (int64, error) {
	return p.incrementCounter(ctx, "increment_share", "share_count", itemID)
}

// IncrementReplay инкрементирует счётчик повторных просмотров.
func (p *Postgres) IncrementReplay(ctx context.Context, itemID string) (int64, error) {
	return p.incrementCounter(ctx, "increment_replay", "replay_count", itemID)
}

// ToggleSaved переключает сохранение контента.
func (p *Postgres) ToggleSaved(ctx context.Context, userID, itemID string) (bool, error) {
	callCtx, cancel := connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()

	var saved bool
	err := pgx.BeginFunc(callCtx, p.pool, func(tx pgx.Tx) error {
		var id string
		if err := tx.QueryRow(callCtx, `SELECT id FROM items WHERE id = $1`, itemID).Scan(&id); err != nil {
			return err
		}
		tag, err := tx.Exec(callCtx,
			`INSERT INTO saved_items (user_id, item_id, created_at) VALUES ($1, $2, now())
			 ON CONFLICT (user_id, item_id) DO NOTHING`, userID, itemID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() > 0 {
			saved = true
			return nil
		}
		_, err = tx.Exec(callCtx,
			`DELETE FROM saved_items WHERE user_id = $1 AND item_id = $2`, userID, itemID)
		return err
	})
	metrics.ObserveNetworkRequest("postgres", "toggle_saved", "saved_items", start, err)
	if err != nil {
		return false, translateErr(err)
	}
	return saved, nil
}

// IsSaved проверяет, сохранил ли пользователь контент.
func (p *Postgres) IsSaved(ctx context.Context, userID, itemID string) (bool, error) {
	callCtx, cancel := connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	var saved bool
	err := p.pool.QueryRow(callCtx,
		`SELECT EXISTS (SELECT 1 FROM saved_items WHERE user_id = $1 AND item_id = $2)`,
		userID, itemID).Scan(&saved)
	metrics.ObserveNetworkRequest("postgres", "is_saved", "saved_items", start, err)
	if err != nil {
		return false, translateErr(err)
	}
	return saved, nil
}

// ListSaved возвращает сохранённый контент, новые сверху. Записи на
// удалённый контент отфильтровываются JOIN-ом.
func (p *Postgres) ListSaved(ctx context.Context, userID string) ([]domain.ContentItem, error) {
	callCtx, cancel := connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(callCtx,
		`SELECT `+itemColumnsPrefixed("i")+` FROM items i
		 JOIN saved_items s ON s.item_id = i.id
		 WHERE s.user_id = $1
		 ORDER BY s.created_at DESC, i.id ASC`, userID)
	if err != nil {
		metrics.ObserveNetworkRequest("postgres", "list_saved", "saved_items", start, err)
		return nil, translateErr(err)
	}
	items, err := collectItems(rows)
	metrics.ObserveNetworkRequest("postgres", "list_saved", "saved_items", start, err)
	if err != nil {
		return nil, translateErr(err)
	}
	return items, nil
}

// SavedSet возвращает подмножество itemIDs, сохранённое пользователем.
func (p *Postgres) SavedSet(ctx context.Context, userID string, itemIDs []string) (map[string]bool, error) {
	callCtx, cancel := connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(callCtx,
		`SELECT item_id FROM saved_items WHERE user_id = $1 AND item_id = ANY($2)`,
		userID, notNil(itemIDs))
	if err != nil {
		metrics.ObserveNetworkRequest("postgres", "saved_set", "saved_items", start, err)
		return nil, translateErr(err)
	}
	defer rows.Close()
	set := make(map[string]bool, len(itemIDs))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			metrics.ObserveNetworkRequest("postgres", "saved_set", "saved_items", start, err)
			return nil, translateErr(err)
		}
		set[id] = true
	}
	err = rows.Err()
	metrics.ObserveNetworkRequest("postgres", "saved_set", "saved_items", start, err)
	if err != nil {
		return nil, translateErr(err)
	}
	return set, nil
}

// ToggleFollow атомарно переключает подписку. Ребро хранится одной
// строкой, поэтому множества подписок и подписчиков не могут разойтись.
func (p *Postgres) ToggleFollow(ctx context.Context, followerID, followeeID string) (bool, int64, error) {
	callCtx, cancel := connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()

	var following bool
	var followers int64
	err := pgx.BeginFunc(callCtx, p.pool, func(tx pgx.Tx) error {
		var id string
		if err := tx.QueryRow(callCtx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, followeeID).Scan(&id); err != nil {
			return err
		}
		tag, err := tx.Exec(callCtx,
			`DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`, followerID, followeeID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			if _, err := tx.Exec(callCtx,
				`INSERT INTO follows (follower_id, followee_id, created_at) VALUES ($1, $2, now())
				 ON CONFLICT (follower_id, followee_id) DO NOTHING`, followerID, followeeID); err != nil {
				return err
			}
			following = true
		}
		return tx.QueryRow(callCtx,
			`SELECT count(*) FROM follows WHERE followee_id = $1`, followeeID).Scan(&followers)
	})
	metrics.ObserveNetworkRequest("postgres", "toggle_follow", "follows", start, err)
	if err != nil {
		return false, 0, translateErr(err)
	}
	return following, followers, nil
}

// FollowersCount возвращает число подписчиков пользователя.
func (p *Postgres) FollowersCount(ctx context.Context, userID string) (int64, error) {
	callCtx, cancel := connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	var followers int64
	err := p.pool.QueryRow(callCtx,
		`SELECT count(f.follower_id) FROM users u
		 LEFT JOIN follows f ON f.followee_id = u.id
		 WHERE u.id = $1
		 GROUP BY u.id`, userID).Scan(&followers)
	metrics.ObserveNetworkRequest("postgres", "followers_count", "follows", start, err)
	if err != nil {
		return 0, translateErr(err)
	}
	return followers, nil
}

// ListFollowing возвращает ID авторов, на которых подписан пользователь.
func (p *Postgres) ListFollowing(ctx context.Context, userID string) ([]string, error) {
	callCtx, cancel := connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(callCtx,
		`SELECT followee_id FROM follows WHERE follower_id = $1 ORDER BY followee_id`, userID)
	if err != nil {
		metrics.ObserveNetworkRequest("postgres", "list_following", "follows", start, err)
		return nil, translateErr(err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			metrics.ObserveNetworkRequest("postgres", "list_following", "follows", start, err)
			return nil, translateErr(err)
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	metrics.ObserveNetworkRequest("postgres", "list_following", "follows", start, err)
	if err != nil {
		return nil, translateErr(err)
	}
	return ids, nil
}

// ListSuggested возвращает авторов без подписки пользователя,
// по убыванию аудитории.
func (p *Postgres) ListSuggested(ctx context.Context, userID string, limit int) ([]domain.Creator, error) {
	callCtx, cancel := connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(callCtx,
		`SELECT u.id, count(f.follower_id) AS followers FROM users u
		 LEFT JOIN follows f ON f.followee_id = u.id
		 WHERE u.id <> $1
		   AND NOT EXISTS (SELECT 1 FROM follows x WHERE x.follower_id = $1 AND x.followee_id = u.id)
		 GROUP BY u.id
		 ORDER BY followers DESC, u.id ASC
		 LIMIT $2`, userID, limit)
	if err != nil {
		metrics.ObserveNetworkRequest("postgres", "list_suggested", "users", start, err)
		return nil, translateErr(err)
	}
	defer rows.Close()
	var creators []domain.Creator
	for rows.Next() {
		var c domain.Creator
		if err := rows.Scan(&c.ID, &c.Followers); err != nil {
			metrics.ObserveNetworkRequest("postgres", "list_suggested", "users", start, err)
			return nil, translateErr(err)
		}
		creators = append(creators, c)
	}
	err = rows.Err()
	metrics.ObserveNetworkRequest("postgres", "list_suggested", "users", start, err)
	if err != nil {
		return nil, translateErr(err)
	}
	return creators, nil
}

// SaveEvent сохраняет событие вовлечённости для аналитики.
func (p *Postgres) SaveEvent(ctx context.Context, event domain.EngagementEvent) error {
	callCtx, cancel := connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(callCtx,
		`INSERT INTO engagement_events (id, kind, user_id, item_id, target_id, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		event.ID, string(event.Kind), event.UserID, event.ItemID, event.TargetID, event.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "save_event", "engagement_events", start, err)
	if err != nil {
		return translateErr(err)
	}
	return nil
}

func itemColumnsPrefixed(alias string) string {
	return alias + `.id, ` + alias + `.author_id, ` + alias + `.kind, ` + alias + `.caption, ` +
		alias + `.tags, ` + alias + `.audio_ref, ` + alias + `.video_url, ` + alias + `.thumbnail, ` +
		alias + `.comment_refs, ` + alias + `.like_count, ` + alias + `.share_count, ` +
		alias + `.view_count, ` + alias + `.replay_count, ` + alias + `.created_at`
}
