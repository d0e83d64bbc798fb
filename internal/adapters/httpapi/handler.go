package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"pulsefeed/internal/domain"
	infrahttp "pulsefeed/internal/infra/http"
)

// Handler отдаёт HTTP JSON API ядра вовлечённости и рекомендаций.
type Handler struct {
	engagement domain.EngagementService
	graph      domain.GraphService
	reco       domain.RecommendService
	logger     zerolog.Logger
}

// NewHandler создаёт обработчик API.
func NewHandler(engagement domain.EngagementService, graph domain.GraphService, reco domain.RecommendService, logger zerolog.Logger) *Handler {
	return &Handler{engagement: engagement, graph: graph, reco: reco, logger: logger}
}

// Mount вешает маршруты API на роутер. Идентификатор пользователя
// приходит от внешнего сервиса аутентификации в заголовке.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(infrahttp.RequireUser)

		r.Get("/items/{itemID}", h.itemEngagement)
		r.Post("/items/{itemID}/like", h.toggleLike)
		r.Post("/items/{itemID}/save", h.toggleSaved)
		r.Post("/items/{itemID}/view", h.recordView)
		r.Post("/items/{itemID}/share", h.recordShare)
		r.Post("/items/{itemID}/replay", h.recordReplay)

		r.Post("/users/{userID}/follow", h.toggleFollow)
		r.Get("/users/{userID}/badge", h.badge)
		r.Get("/users/suggested", h.suggested)

		r.Get("/saved", h.listSaved)
		r.Post("/saved/check", h.savedSet)

		r.Get("/recommendations", h.recommendations)
		r.Get("/feed", h.feed)
	})
}

type itemPayload struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Kind      string    `json:"kind"`
	Caption   string    `json:"caption,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	AudioRef  string    `json:"audioRef,omitempty"`
	VideoURL  string    `json:"videoUrl,omitempty"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	Likes     int64     `json:"likes"`
	Shares    int64     `json:"shares"`
	Views     int64     `json:"views"`
	Replays   int64     `json:"replays"`
	CreatedAt time.Time `json:"createdAt"`
}

func toItemPayload(item domain.ContentItem) itemPayload {
	return itemPayload{
		ID:        item.ID,
		AuthorID:  item.AuthorID,
		Kind:      string(item.Kind),
		Caption:   item.Caption,
		Tags:      item.Tags,
		AudioRef:  item.AudioRef,
		VideoURL:  item.VideoURL,
		Thumbnail: item.Thumbnail,
		Likes:     item.LikeCount,
		Shares:    item.ShareCount,
		Views:     item.ViewCount,
		Replays:   item.ReplayCount,
		CreatedAt: item.CreatedAt,
	}
}

func toItemPayloads(items []domain.ContentItem) []itemPayload {
	payloads := make([]itemPayload, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, toItemPayload(item))
	}
	return payloads
}

func (h *Handler) itemEngagement(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	res, err := h.engagement.ItemEngagement(r.Context(), infrahttp.UserID(r), itemID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	infrahttp.WriteJSON(w, http.StatusOK, map[string]any{
		"item":    toItemPayload(res.Item),
		"isLiked": res.IsLiked,
		"isSaved": res.IsSaved,
	})
}

func (h *Handler) toggleLike(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	liked, likes, err := h.engagement.ToggleLike(r.Context(), infrahttp.UserID(r), itemID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	infrahttp.WriteJSON(w, http.StatusOK, map[string]any{"isLiked": liked, "likes": likes})
}

func (h *Handler) toggleSaved(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	saved, err := h.engagement.ToggleSaved(r.Context(), infrahttp.UserID(r), itemID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	infrahttp.WriteJSON(w, http.StatusOK, map[string]any{"saved": saved})
}

func (h *Handler) recordView(w http.ResponseWriter, r *http.Request) {
	count, err := h.engagement.RecordView(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	infrahttp.WriteJSON(w, http.StatusOK, map[string]any{"views": count})
}

func (h *Handler) recordShare(w http.ResponseWriter, r *http.Request) {
	count, err := h.engagement.RecordShare(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	infrahttp.WriteJSON(w, http.StatusOK, map[string]any{"shares": count})
}

func (h *Handler) recordReplay(w http.ResponseWriter, r *http.Request) {
	count, err := h.engagement.RecordReplay(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	infrahttp.WriteJSON(w, http.StatusOK, map[string]any{"replays": count})
}

func (h *Handler) toggleFollow(w http.ResponseWriter, r *http.Request) {
	followeeID := chi.URLParam(r, "userID")
	res, err := h.graph.ToggleFollow(r.Context(), infrahttp.UserID(r), followeeID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	infrahttp.WriteJSON(w, http.StatusOK, map[string]any{
		"isFollowing":    res.IsFollowing,
		"followersCount": res.FollowersCount,
		"badge":          string(res.Badge),
	})
}

func (h *Handler) badge(w http.ResponseWriter, r *http.Request) {
	res, err := h.graph.Badge(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	infrahttp.WriteJSON(w, http.StatusOK, map[string]any{
		"followersCount": res.FollowersCount,
		"badge":          string(res.Badge),
	})
}

func (h *Handler) suggested(w http.ResponseWriter, r *http.Request) {
	creators, err := h.graph.Suggested(r.Context(), infrahttp.UserID(r), limitParam(r, 0))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(creators))
	for _, c := range creators {
		payload = append(payload, map[string]any{
			"id":        c.ID,
			"followers": c.Followers,
			"badge":     string(domain.TierForFollowers(c.Followers)),
		})
	}
	infrahttp.WriteJSON(w, http.StatusOK, map[string]any{"creators": payload})
}

func (h *Handler) listSaved(w http.ResponseWriter, r *http.Request) {
	items, err := h.engagement.ListSaved(r.Context(), infrahttp.UserID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	infrahttp.WriteJSON(w, http.StatusOK, map[string]any{"items": toItemPayloads(items)})
}

func (h *Handler) savedSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemIDs []string `json:"itemIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		infrahttp.WriteError(w, http.StatusBadRequest, "некорректное тело запроса")
		return
	}
	set, err := h.engagement.SavedSet(r.Context(), infrahttp.UserID(r), req.ItemIDs)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	// Все запрошенные ID присутствуют в ответе, несохранённые — как false.
	saved := make(map[string]bool, len(req.ItemIDs))
	for _, id := range req.ItemIDs {
		saved[id] = set[id]
	}
	infrahttp.WriteJSON(w, http.StatusOK, map[string]any{"saved": saved})
}

func (h *Handler) recommendations(w http.ResponseWriter, r *http.Request) {
	items, err := h.reco.Recommend(r.Context(), infrahttp.UserID(r), limitParam(r, 0))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	infrahttp.WriteJSON(w, http.StatusOK, map[string]any{"items": toItemPayloads(items)})
}

func (h *Handler) feed(w http.ResponseWriter, r *http.Request) {
	items, err := h.reco.Feed(r.Context(), infrahttp.UserID(r), limitParam(r, 0))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	infrahttp.WriteJSON(w, http.StatusOK, map[string]any{"items": toItemPayloads(items)})
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		infrahttp.WriteError(w, http.StatusNotFound, "объект не найден")
	case errors.Is(err, domain.ErrInvalidOperation):
		infrahttp.WriteError(w, http.StatusBadRequest, "недопустимая операция")
	case errors.Is(err, domain.ErrStoreUnavailable):
		infrahttp.WriteError(w, http.StatusServiceUnavailable, "хранилище недоступно")
	default:
		h.logger.Error().Err(err).Msg("api: внутренняя ошибка")
		infrahttp.WriteError(w, http.StatusInternalServerError, "внутренняя ошибка")
	}
}

func limitParam(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return fallback
	}
	return limit
}
