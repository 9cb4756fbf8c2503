package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/psousaj/nexo-ai-sub000/internal/domain"
)

// movie/TV genre ids per the TMDB catalog. Only the common ones are mapped;
// unknown ids are dropped from candidate genre lists.
var tmdbGenres = map[int]string{
	28: "Ação", 12: "Aventura", 16: "Animação", 35: "Comédia", 80: "Crime",
	99: "Documentário", 18: "Drama", 10751: "Família", 14: "Fantasia",
	36: "História", 27: "Terror", 10402: "Música", 9648: "Mistério",
	10749: "Romance", 878: "Ficção científica", 53: "Suspense",
	10752: "Guerra", 37: "Faroeste", 10759: "Ação e Aventura",
	10765: "Sci-Fi e Fantasia",
}

const tmdbPosterBase = "https://image.tmdb.org/t/p/w342"

// TMDB is a Searcher backed by The Movie Database v3 search endpoints.
type TMDB struct {
	apiKey  string
	baseURL string
	lang    string
	client  *http.Client
}

// TMDBOption customizes the client.
type TMDBOption func(*TMDB)

// WithTMDBHTTPClient replaces the underlying HTTP client (used in tests).
func WithTMDBHTTPClient(c *http.Client) TMDBOption {
	return func(t *TMDB) {
		if c != nil {
			t.client = c
		}
	}
}

// WithTMDBLanguage sets the language parameter sent on every search.
func WithTMDBLanguage(lang string) TMDBOption {
	return func(t *TMDB) {
		if strings.TrimSpace(lang) != "" {
			t.lang = lang
		}
	}
}

// NewTMDB builds a TMDB searcher. baseURL defaults to the public v3 API when
// empty.
func NewTMDB(apiKey, baseURL string, opts ...TMDBOption) *TMDB {
	t := &TMDB{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: strings.TrimRight(baseURL, "/"),
		lang:    "pt-BR",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	if t.baseURL == "" {
		t.baseURL = "https://api.themoviedb.org/3"
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

type tmdbResult struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`          // movies
	Name         string `json:"name"`           // tv
	ReleaseDate  string `json:"release_date"`   // movies
	FirstAirDate string `json:"first_air_date"` // tv
	Overview     string `json:"overview"`
	PosterPath   string `json:"poster_path"`
	GenreIDs     []int  `json:"genre_ids"`
}

type tmdbEnvelope struct {
	Results []tmdbResult `json:"results"`
}

// Search queries /search/movie or /search/tv depending on itemType and maps
// results into candidates, best-match first as returned by TMDB.
func (t *TMDB) Search(ctx context.Context, query string, itemType domain.ItemType, limit int) ([]domain.Candidate, error) {
	if t.apiKey == "" {
		return nil, ErrUnconfigured
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	var path string
	switch itemType {
	case domain.ItemMovie:
		path = "/search/movie"
	case domain.ItemTVShow:
		path = "/search/tv"
	default:
		// Catalog only covers movies and TV.
		return nil, nil
	}

	q := url.Values{}
	q.Set("api_key", t.apiKey)
	q.Set("query", query)
	q.Set("language", t.lang)
	q.Set("include_adult", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("enrich: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enrich: tmdb request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("enrich: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("tmdb search failed")
		return nil, fmt.Errorf("enrich: tmdb status %d", resp.StatusCode)
	}

	var env tmdbEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("enrich: decode response: %w", err)
	}

	out := make([]domain.Candidate, 0, limit)
	for _, r := range env.Results {
		if len(out) >= limit {
			break
		}
		title := r.Title
		date := r.ReleaseDate
		if itemType == domain.ItemTVShow {
			title = r.Name
			date = r.FirstAirDate
		}
		if strings.TrimSpace(title) == "" {
			continue
		}
		c := domain.Candidate{
			ExternalID: fmt.Sprintf("tmdb:%d", r.ID),
			Title:      title,
			Year:       yearOf(date),
			Overview:   clampOverview(r.Overview, 280),
		}
		for _, id := range r.GenreIDs {
			if g, ok := tmdbGenres[id]; ok {
				c.Genres = append(c.Genres, g)
			}
		}
		if r.PosterPath != "" {
			c.PosterURL = tmdbPosterBase + r.PosterPath
		}
		out = append(out, c)
	}
	return out, nil
}

func yearOf(date string) string {
	if len(date) >= 4 {
		return date[:4]
	}
	return ""
}

func clampOverview(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return strings.TrimSpace(string(r[:maxRunes-1])) + "…"
}
