package recordstore

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenbot/warden/moderation"
)

// fake site API, backed by a MemStore
func newFakeSiteAPI(t *testing.T, token string) *httptest.Server {
	mem := NewMemStore()
	mux := http.NewServeMux()
	var tokensMu sync.Mutex
	tokens := make(map[int64]string)

	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	toJSON := func(inf *moderation.Infraction) infractionJSON {
		reason := inf.Reason
		tokensMu.Lock()
		defer tokensMu.Unlock()
		return infractionJSON{
			ID:                inf.ID,
			Type:              inf.Kind.String(),
			User:              uint64(inf.Subject),
			Actor:             uint64(inf.Actor),
			Reason:            &reason,
			InsertedAt:        inf.CreatedAt,
			ExpiresAt:         inf.ExpiresAt,
			Active:            inf.Active,
			Hidden:            inf.Hidden,
			DeactivationToken: tokens[inf.ID],
		}
	}
	idParam := func(r *http.Request) int64 {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		return id
	}

	mux.HandleFunc("POST /bot/infractions", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Type      string     `json:"type"`
			User      uint64     `json:"user"`
			Actor     uint64     `json:"actor"`
			Reason    string     `json:"reason"`
			Hidden    bool       `json:"hidden"`
			Active    bool       `json:"active"`
			ExpiresAt *time.Time `json:"expires_at"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}
		inf, err := mem.Create(r.Context(), moderation.NewInfraction{
			Kind:      moderation.Kind(body.Type),
			Subject:   snowflake.ID(body.User),
			Actor:     snowflake.ID(body.Actor),
			Reason:    body.Reason,
			ExpiresAt: body.ExpiresAt,
			Hidden:    body.Hidden,
		})
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, toJSON(inf))
	})
	mux.HandleFunc("GET /bot/infractions", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := moderation.Filter{Kind: moderation.Kind(q.Get("type")), Search: q.Get("search")}
		if v := q.Get("active"); v != "" {
			b, _ := strconv.ParseBool(v)
			f.Active = &b
		}
		if v := q.Get("user__id"); v != "" {
			f.Subject = snowflake.MustParse(v)
		}
		if v := q.Get("actor__id"); v != "" {
			f.Actor = snowflake.MustParse(v)
		}
		f.NewestFirst = q.Get("ordering") == "-inserted_at"
		infs, _ := mem.List(r.Context(), f)
		out := []infractionJSON{}
		for i := range infs {
			out = append(out, toJSON(&infs[i]))
		}
		writeJSON(w, http.StatusOK, out)
	})
	mux.HandleFunc("GET /bot/infractions/{id}", func(w http.ResponseWriter, r *http.Request) {
		inf, err := mem.Get(r.Context(), idParam(r))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
			return
		}
		writeJSON(w, http.StatusOK, toJSON(inf))
	})
	mux.HandleFunc("PATCH /bot/infractions/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}
		id := idParam(r)
		if _, ok := body["active"]; ok {
			if r.URL.Query().Get("active") != "true" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "missing precondition"})
				return
			}
			inf, err := mem.Deactivate(r.Context(), id)
			if err == nil {
				var token string
				_ = json.Unmarshal(body["deactivation_token"], &token)
				tokensMu.Lock()
				tokens[id] = token
				tokensMu.Unlock()
			}
			switch {
			case err == moderation.ErrNotFound:
				writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
			case err == moderation.ErrNotActive:
				writeJSON(w, http.StatusPreconditionFailed, map[string]string{"detail": "not active"})
			default:
				writeJSON(w, http.StatusOK, toJSON(inf))
			}
			return
		}
		u := moderation.Update{}
		if raw, ok := body["expires_at"]; ok {
			u.SetExpiry = true
			var exp *time.Time
			_ = json.Unmarshal(raw, &exp)
			u.ExpiresAt = exp
		}
		if raw, ok := body["reason"]; ok {
			var reason string
			_ = json.Unmarshal(raw, &reason)
			u.Reason = &reason
		}
		inf, err := mem.Update(r.Context(), id, u)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
			return
		}
		writeJSON(w, http.StatusOK, toJSON(inf))
	})
	mux.HandleFunc("DELETE /bot/infractions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := mem.Delete(r.Context(), idParam(r)); err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token "+token {
			writeJSON(w, http.StatusForbidden, map[string]string{"detail": "bad token"})
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPStore(t *testing.T) {
	require := require.New(t)
	srv := newFakeSiteAPI(t, "sekrit")

	rs, err := NewHTTPStore(HTTPStoreConfig{
		Host:       srv.URL + "/",
		Token:      "sekrit",
		MaxRetries: 0,
		Timeout:    5 * time.Second,
	})
	require.NoError(err)

	testRecordStoreBasics(t, rs)
	testRecordStoreConcurrentDeactivate(t, rs)
}

func TestHTTPStoreErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := t.Context()
	srv := newFakeSiteAPI(t, "sekrit")

	_, err := NewHTTPStore(HTTPStoreConfig{Host: "site.example.com"})
	assert.Error(err)

	badAuth, err := NewHTTPStore(HTTPStoreConfig{Host: srv.URL, Token: "wrong", Timeout: time.Second})
	assert.NoError(err)
	_, err = badAuth.Get(ctx, 1)
	assert.ErrorIs(err, moderation.ErrPermissionDenied)
	var re *ResponseError
	assert.ErrorAs(err, &re)
	assert.Equal(http.StatusForbidden, re.StatusCode)
}

func TestHTTPStoreRetriesServerErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := t.Context()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	rs, err := NewHTTPStore(HTTPStoreConfig{Host: srv.URL, MaxRetries: 2, Timeout: 10 * time.Second})
	assert.NoError(err)

	_, err = rs.List(ctx, moderation.Filter{Active: moderation.ActiveOnly()})
	assert.ErrorIs(err, moderation.ErrTransient)
	assert.Equal(int32(3), hits.Load())

	// client errors are terminal, never retried
	hits.Store(0)
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer notFound.Close()
	rs.Host = notFound.URL
	_, err = rs.Get(ctx, 5)
	assert.ErrorIs(err, moderation.ErrNotFound)
	assert.Equal(int32(1), hits.Load())
}

// the first attempt commits the flip but its response is lost to a 502; the retry then sees 409
func TestHTTPStoreDeactivateCommittedBeforeRetry(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := t.Context()

	var mu sync.Mutex
	row := infractionJSON{ID: 7, Type: "mute", User: 42, Actor: 1, Active: true}
	var patches atomic.Int32
	var stolen atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodPatch:
			patches.Add(1)
			var body struct {
				Token string `json:"deactivation_token"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if !row.Active {
				w.WriteHeader(http.StatusConflict)
				return
			}
			row.Active = false
			row.DeactivationToken = body.Token
			if stolen.Load() {
				row.DeactivationToken = "someone-else"
			}
			w.WriteHeader(http.StatusBadGateway)
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(row)
		}
	}))
	defer srv.Close()

	rs, err := NewHTTPStore(HTTPStoreConfig{Host: srv.URL, MaxRetries: 2, Timeout: 10 * time.Second})
	require.NoError(err)

	inf, err := rs.Deactivate(ctx, 7)
	require.NoError(err)
	assert.Equal(int64(7), inf.ID)
	assert.False(inf.Active)
	assert.Equal(int32(2), patches.Load())

	// a flip committed by another caller stays a lost race
	mu.Lock()
	row.Active = true
	row.DeactivationToken = ""
	mu.Unlock()
	stolen.Store(true)
	_, err = rs.Deactivate(ctx, 7)
	assert.ErrorIs(err, moderation.ErrNotActive)
}
