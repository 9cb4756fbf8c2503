package enrich

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/psousaj/nexo-ai-sub000/internal/domain"
)

const tmdbMovieBody = `{
	"results": [
		{
			"id": 603,
			"title": "Matrix",
			"release_date": "1999-03-31",
			"overview": "Um hacker descobre a verdade sobre a realidade.",
			"poster_path": "/matrix.jpg",
			"genre_ids": [28, 878, 9999]
		},
		{
			"id": 604,
			"title": "Matrix Reloaded",
			"release_date": "2003-05-15",
			"overview": "",
			"genre_ids": []
		},
		{"id": 605, "title": "", "release_date": "2003-11-05"}
	]
}`

func newTMDBServer(t *testing.T, wantPath string, status int, body string) (*httptest.Server, *TMDB) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != wantPath {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("api_key") != "k" || q.Get("language") != "pt-BR" {
			t.Errorf("missing query params: %s", r.URL.RawQuery)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, NewTMDB("k", srv.URL)
}

func TestTMDBSearch_Movies(t *testing.T) {
	_, c := newTMDBServer(t, "/search/movie", http.StatusOK, tmdbMovieBody)

	got, err := c.Search(context.Background(), "matrix", domain.ItemMovie, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	// Untitled results are skipped.
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %+v", got)
	}
	first := got[0]
	if first.ExternalID != "tmdb:603" || first.Title != "Matrix" || first.Year != "1999" {
		t.Fatalf("unexpected first candidate: %+v", first)
	}
	if first.PosterURL != tmdbPosterBase+"/matrix.jpg" {
		t.Fatalf("unexpected poster url: %q", first.PosterURL)
	}
	// Unknown genre ids are dropped, known ones mapped.
	if len(first.Genres) != 2 || first.Genres[1] != "Ficção científica" {
		t.Fatalf("unexpected genres: %+v", first.Genres)
	}
	if got[1].PosterURL != "" || got[1].Year != "2003" {
		t.Fatalf("unexpected second candidate: %+v", got[1])
	}
}

func TestTMDBSearch_TVUsesNameAndFirstAirDate(t *testing.T) {
	body := `{"results":[{"id":66732,"name":"Stranger Things","first_air_date":"2016-07-15"}]}`
	_, c := newTMDBServer(t, "/search/tv", http.StatusOK, body)

	got, err := c.Search(context.Background(), "stranger things", domain.ItemTVShow, 5)
	if err != nil || len(got) != 1 {
		t.Fatalf("search: (%+v, %v)", got, err)
	}
	if got[0].Title != "Stranger Things" || got[0].Year != "2016" {
		t.Fatalf("unexpected candidate: %+v", got[0])
	}
}

func TestTMDBSearch_Limit(t *testing.T) {
	_, c := newTMDBServer(t, "/search/movie", http.StatusOK, tmdbMovieBody)

	got, err := c.Search(context.Background(), "matrix", domain.ItemMovie, 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("limit must cap candidates: (%+v, %v)", got, err)
	}
}

func TestTMDBSearch_Errors(t *testing.T) {
	t.Run("no api key", func(t *testing.T) {
		c := NewTMDB("", "")
		if _, err := c.Search(context.Background(), "matrix", domain.ItemMovie, 5); !errors.Is(err, ErrUnconfigured) {
			t.Fatalf("expected ErrUnconfigured, got %v", err)
		}
	})

	t.Run("empty query", func(t *testing.T) {
		c := NewTMDB("k", "http://unused.local")
		got, err := c.Search(context.Background(), "   ", domain.ItemMovie, 5)
		if err != nil || got != nil {
			t.Fatalf("expected (nil, nil), got (%+v, %v)", got, err)
		}
	})

	t.Run("uncatalogued type", func(t *testing.T) {
		c := NewTMDB("k", "http://unused.local")
		got, err := c.Search(context.Background(), "matrix", domain.ItemNote, 5)
		if err != nil || got != nil {
			t.Fatalf("notes are not searchable: (%+v, %v)", got, err)
		}
	})

	t.Run("upstream error status", func(t *testing.T) {
		_, c := newTMDBServer(t, "/search/movie", http.StatusUnauthorized, `{"status_message":"bad key"}`)
		if _, err := c.Search(context.Background(), "matrix", domain.ItemMovie, 5); err == nil {
			t.Fatal("non-200 must surface an error")
		}
	})

	t.Run("broken body", func(t *testing.T) {
		_, c := newTMDBServer(t, "/search/movie", http.StatusOK, `{"results": [`)
		if _, err := c.Search(context.Background(), "matrix", domain.ItemMovie, 5); err == nil {
			t.Fatal("undecodable body must surface an error")
		}
	})
}

func TestClampOverview(t *testing.T) {
	if got := clampOverview("curto", 280); got != "curto" {
		t.Fatalf("short text must pass through: %q", got)
	}
	long := ""
	for i := 0; i < 100; i++ {
		long += "ação "
	}
	got := clampOverview(long, 50)
	if len([]rune(got)) > 50 {
		t.Fatalf("clamp must respect the rune cap: %d runes", len([]rune(got)))
	}
	if got[len(got)-len("…"):] != "…" {
		t.Fatalf("clamped text must end with an ellipsis: %q", got)
	}
}
