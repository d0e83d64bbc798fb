package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"pulsefeed/internal/domain"
)

type stubEngagement struct {
	likes    int64
	notFound bool
}

func (s *stubEngagement) ToggleLike(_ context.Context, _, itemID string) (bool, int64, error) {
	if s.notFound {
		return false, 0, fmt.Errorf("переключение лайка: %w", domain.ErrNotFound)
	}
	return true, s.likes, nil
}

func (s *stubEngagement) ItemEngagement(_ context.Context, _, itemID string) (domain.ItemEngagement, error) {
	if s.notFound {
		return domain.ItemEngagement{}, fmt.Errorf("чтение контента: %w", domain.ErrNotFound)
	}
	return domain.ItemEngagement{
		Item:    domain.ContentItem{ID: itemID, AuthorID: "c1", Kind: domain.ItemKindShort, LikeCount: s.likes},
		IsLiked: true,
	}, nil
}

func (s *stubEngagement) ToggleSaved(context.Context, string, string) (bool, error) {
	return true, nil
}

func (s *stubEngagement) ListSaved(context.Context, string) ([]domain.ContentItem, error) {
	return []domain.ContentItem{{ID: "v1", AuthorID: "c1", Kind: domain.ItemKindShort, LikeCount: 3, CreatedAt: time.Unix(0, 0).UTC()}}, nil
}

func (s *stubEngagement) SavedSet(_ context.Context, _ string, itemIDs []string) (map[string]bool, error) {
	set := map[string]bool{}
	for _, id := range itemIDs {
		if id == "v1" {
			set[id] = true
		}
	}
	return set, nil
}

func (s *stubEngagement) RecordView(context.Context, string) (int64, error)   { return 7, nil }
func (s *stubEngagement) RecordShare(context.Context, string) (int64, error)  { return 8, nil }
func (s *stubEngagement) RecordReplay(context.Context, string) (int64, error) { return 9, nil }

type stubGraphService struct{}

func (s *stubGraphService) ToggleFollow(_ context.Context, followerID, followeeID string) (domain.FollowResult, error) {
	if followerID == followeeID {
		return domain.FollowResult{}, fmt.Errorf("подписка на себя: %w", domain.ErrInvalidOperation)
	}
	return domain.FollowResult{IsFollowing: true, FollowersCount: 1_200_000, Badge: domain.BadgeRed}, nil
}

func (s *stubGraphService) Badge(context.Context, string) (domain.FollowResult, error) {
	return domain.FollowResult{FollowersCount: 600_000, Badge: domain.BadgeYellow}, nil
}

func (s *stubGraphService) Suggested(context.Context, string, int) ([]domain.Creator, error) {
	return []domain.Creator{{ID: "c9", Followers: 11_000_000}}, nil
}

type stubReco struct{}

func (s *stubReco) Recommend(context.Context, string, int) ([]domain.ContentItem, error) {
	return []domain.ContentItem{{ID: "r1", AuthorID: "c1", Kind: domain.ItemKindVideo, LikeCount: 5}}, nil
}

func (s *stubReco) Feed(context.Context, string, int) ([]domain.ContentItem, error) {
	return nil, nil
}

func newTestRouter(eng domain.EngagementService) chi.Router {
	r := chi.NewRouter()
	NewHandler(eng, &stubGraphService{}, &stubReco{}, zerolog.Nop()).Mount(r)
	return r
}

func doRequest(t *testing.T, router chi.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("не удалось разобрать ответ: %v", err)
	}
	return payload
}

func TestToggleLikeResponse(t *testing.T) {
	router := newTestRouter(&stubEngagement{likes: 42})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/items/v1/like", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["isLiked"] != true {
		t.Fatalf("ожидали isLiked=true: %v", payload)
	}
	if payload["likes"] != float64(42) {
		t.Fatalf("ожидали likes=42: %v", payload)
	}
}

func TestItemEngagementResponse(t *testing.T) {
	router := newTestRouter(&stubEngagement{likes: 3})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/items/v1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["isLiked"] != true || payload["isSaved"] != false {
		t.Fatalf("неверное состояние вовлечённости: %v", payload)
	}
	item, ok := payload["item"].(map[string]any)
	if !ok || item["id"] != "v1" || item["likes"] != float64(3) {
		t.Fatalf("неверный контент: %v", payload)
	}
}

func TestMissingUserHeader(t *testing.T) {
	router := newTestRouter(&stubEngagement{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/items/v1/like", strings.NewReader(""))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("ожидали 401 без заголовка пользователя, получили %d", rec.Code)
	}
}

func TestToggleLikeNotFound(t *testing.T) {
	router := newTestRouter(&stubEngagement{notFound: true})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/items/ghost/like", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("ожидали 404, получили %d", rec.Code)
	}
}

func TestSelfFollowRejected(t *testing.T) {
	router := newTestRouter(&stubEngagement{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/users/u1/follow", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидали 400 при подписке на себя, получили %d", rec.Code)
	}
}

func TestToggleFollowResponse(t *testing.T) {
	router := newTestRouter(&stubEngagement{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/users/star/follow", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["isFollowing"] != true || payload["badge"] != "red" {
		t.Fatalf("неверное тело ответа: %v", payload)
	}
	if payload["followersCount"] != float64(1_200_000) {
		t.Fatalf("ожидали followersCount=1200000: %v", payload)
	}
}

func TestSavedCheckIncludesMisses(t *testing.T) {
	router := newTestRouter(&stubEngagement{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/saved/check", `{"itemIds":["v1","v2"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	saved, ok := payload["saved"].(map[string]any)
	if !ok {
		t.Fatalf("ожидали объект saved: %v", payload)
	}
	if saved["v1"] != true || saved["v2"] != false {
		t.Fatalf("ожидали v1=true v2=false: %v", saved)
	}
}

func TestRecordCounters(t *testing.T) {
	router := newTestRouter(&stubEngagement{})

	tests := []struct {
		path  string
		field string
		want  float64
	}{
		{"/api/v1/items/v1/view", "views", 7},
		{"/api/v1/items/v1/share", "shares", 8},
		{"/api/v1/items/v1/replay", "replays", 9},
	}
	for _, tt := range tests {
		rec := doRequest(t, router, http.MethodPost, tt.path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: ожидали 200, получили %d", tt.path, rec.Code)
		}
		payload := decodeBody(t, rec)
		if payload[tt.field] != tt.want {
			t.Fatalf("%s: ожидали %s=%v, получили %v", tt.path, tt.field, tt.want, payload)
		}
	}
}

func TestRecommendationsResponse(t *testing.T) {
	router := newTestRouter(&stubEngagement{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/recommendations?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	items, ok := payload["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("ожидали 1 элемент выдачи: %v", payload)
	}
	first := items[0].(map[string]any)
	if first["id"] != "r1" || first["likes"] != float64(5) {
		t.Fatalf("неверный элемент выдачи: %v", first)
	}
}

func TestBadgeResponse(t *testing.T) {
	router := newTestRouter(&stubEngagement{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/users/star/badge", "")
	payload := decodeBody(t, rec)
	if payload["badge"] != "yellow" || payload["followersCount"] != float64(600_000) {
		t.Fatalf("неверное тело ответа: %v", payload)
	}
}

func TestSuggestedResponse(t *testing.T) {
	router := newTestRouter(&stubEngagement{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/users/suggested", "")
	payload := decodeBody(t, rec)
	creators, ok := payload["creators"].([]any)
	if !ok || len(creators) != 1 {
		t.Fatalf("ожидали 1 автора: %v", payload)
	}
	first := creators[0].(map[string]any)
	if first["id"] != "c9" || first["badge"] != "white" {
		t.Fatalf("неверный автор: %v", first)
	}
}
