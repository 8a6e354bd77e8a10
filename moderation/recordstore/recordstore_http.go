package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/wardenbot/warden/moderation"
)

// Client for the site API which holds infraction rows.
type HTTPStore struct {
	Client  *http.Client
	Host    string
	Token   string
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

var _ RecordStore = (*HTTPStore)(nil)

type HTTPStoreConfig struct {
	Host       string
	Token      string
	RateLimit  float64
	MaxRetries int
	Timeout    time.Duration
	Logger     *slog.Logger
}

func NewHTTPStore(config HTTPStoreConfig) (*HTTPStore, error) {
	if !strings.HasPrefix(config.Host, "http://") && !strings.HasPrefix(config.Host, "https://") {
		return nil, fmt.Errorf("record store host must include 'http://' or 'https://': %s", config.Host)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	return &HTTPStore{
		Client:  NewStoreHTTPClient(logger, config.MaxRetries, config.Timeout),
		Host:    strings.TrimSuffix(config.Host, "/"),
		Token:   config.Token,
		Limiter: limiter,
		Logger:  logger,
	}, nil
}

// Non-OK response from the record store API.
type ResponseError struct {
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("record store API: status %d: %s", e.StatusCode, e.Body)
}

func (e *ResponseError) Is(target error) bool {
	switch target {
	case moderation.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case moderation.ErrPermissionDenied:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case moderation.ErrNotActive:
		return e.StatusCode == http.StatusConflict || e.StatusCode == http.StatusPreconditionFailed
	case moderation.ErrTransient:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	}
	return false
}

// wire format of an infraction row
type infractionJSON struct {
	ID         int64      `json:"id"`
	Type       string     `json:"type"`
	User       uint64     `json:"user"`
	Actor      uint64     `json:"actor"`
	Reason     *string    `json:"reason"`
	InsertedAt time.Time  `json:"inserted_at"`
	ExpiresAt  *time.Time `json:"expires_at"`
	Active     bool       `json:"active"`
	Hidden     bool       `json:"hidden"`
	// set by the store on the conditional deactivation which flipped the row
	DeactivationToken string `json:"deactivation_token,omitempty"`
}

func (ij *infractionJSON) infraction() (*moderation.Infraction, error) {
	kind, err := moderation.ParseKind(ij.Type)
	if err != nil {
		return nil, err
	}
	inf := moderation.Infraction{
		ID:        ij.ID,
		Kind:      kind,
		Subject:   snowflake.ID(ij.User),
		Actor:     snowflake.ID(ij.Actor),
		CreatedAt: ij.InsertedAt,
		ExpiresAt: ij.ExpiresAt,
		Active:    ij.Active,
		Hidden:    ij.Hidden,
	}
	if ij.Reason != nil {
		inf.Reason = *ij.Reason
	}
	return &inf, nil
}

func (s *HTTPStore) endpoint(path string, params url.Values) string {
	u := s.Host + "/" + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// performs a single logical request (retries happen inside the client), decoding a JSON response body into out if non-nil
func (s *HTTPStore) do(ctx context.Context, method, path string, params url.Values, body any, out any) error {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.endpoint(path, params), reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.Token != "" {
		req.Header.Set("Authorization", "Token "+s.Token)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %v", moderation.ErrTransient, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ResponseError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding record store response: %w", err)
	}
	return nil
}

func (s *HTTPStore) Create(ctx context.Context, n moderation.NewInfraction) (*moderation.Infraction, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	payload := map[string]any{
		"type":   n.Kind.String(),
		"user":   uint64(n.Subject),
		"actor":  uint64(n.Actor),
		"reason": n.Reason,
		"hidden": n.Hidden,
		"active": n.Active(),
	}
	if n.ExpiresAt != nil {
		payload["expires_at"] = n.ExpiresAt.UTC().Format(time.RFC3339)
	}
	var out infractionJSON
	if err := s.do(ctx, http.MethodPost, "bot/infractions", nil, payload, &out); err != nil {
		return nil, fmt.Errorf("creating %s infraction: %w", n.Kind, err)
	}
	return out.infraction()
}

func (s *HTTPStore) Get(ctx context.Context, id int64) (*moderation.Infraction, error) {
	var out infractionJSON
	if err := s.do(ctx, http.MethodGet, "bot/infractions/"+strconv.FormatInt(id, 10), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("fetching infraction #%d: %w", id, err)
	}
	return out.infraction()
}

func filterParams(f moderation.Filter) url.Values {
	params := url.Values{}
	if f.Active != nil {
		params.Set("active", strconv.FormatBool(*f.Active))
	}
	if f.Kind != "" {
		params.Set("type", f.Kind.String())
	}
	if f.Subject != 0 {
		params.Set("user__id", f.Subject.String())
	}
	if f.Actor != 0 {
		params.Set("actor__id", f.Actor.String())
	}
	if f.Search != "" {
		params.Set("search", f.Search)
	}
	if f.NewestFirst {
		params.Set("ordering", "-inserted_at")
	}
	return params
}

func (s *HTTPStore) List(ctx context.Context, f moderation.Filter) ([]moderation.Infraction, error) {
	var out []infractionJSON
	if err := s.do(ctx, http.MethodGet, "bot/infractions", filterParams(f), nil, &out); err != nil {
		return nil, fmt.Errorf("listing infractions: %w", err)
	}
	infs := make([]moderation.Infraction, 0, len(out))
	for _, ij := range out {
		inf, err := ij.infraction()
		if err != nil {
			s.Logger.Warn("skipping unparseable infraction row", "id", ij.ID, "err", err)
			continue
		}
		infs = append(infs, *inf)
	}
	return infs, nil
}

func (s *HTTPStore) Update(ctx context.Context, id int64, u moderation.Update) (*moderation.Infraction, error) {
	payload := map[string]any{}
	if u.SetExpiry {
		if u.ExpiresAt == nil {
			payload["expires_at"] = nil
		} else {
			payload["expires_at"] = u.ExpiresAt.UTC().Format(time.RFC3339)
		}
	}
	if u.Reason != nil {
		payload["reason"] = *u.Reason
	}
	var out infractionJSON
	if err := s.do(ctx, http.MethodPatch, "bot/infractions/"+strconv.FormatInt(id, 10), nil, payload, &out); err != nil {
		return nil, fmt.Errorf("updating infraction #%d: %w", id, err)
	}
	return out.infraction()
}

// Conditional PATCH: the "active=true" precondition makes the API answer 409/412 when the row is already inactive.
//
// The request carries a fresh deactivation token which the API stores on the row. A retried request can see 409 for a flip its own earlier attempt committed (eg the first response was a 502), so a 409 is only final once the stored token is someone else's.
func (s *HTTPStore) Deactivate(ctx context.Context, id int64) (*moderation.Infraction, error) {
	path := "bot/infractions/" + strconv.FormatInt(id, 10)
	params := url.Values{}
	params.Set("active", "true")
	token := uuid.NewString()
	var out infractionJSON
	err := s.do(ctx, http.MethodPatch, path, params, map[string]any{"active": false, "deactivation_token": token}, &out)
	if errors.Is(err, moderation.ErrNotActive) {
		var row infractionJSON
		if gerr := s.do(ctx, http.MethodGet, path, nil, nil, &row); gerr != nil {
			return nil, fmt.Errorf("resolving deactivation of infraction #%d: %w", id, gerr)
		}
		if row.DeactivationToken != token {
			return nil, moderation.ErrNotActive
		}
		s.Logger.Info("conditional deactivation committed by an earlier attempt", "infraction", id)
		return row.infraction()
	}
	if err != nil {
		return nil, fmt.Errorf("deactivating infraction #%d: %w", id, err)
	}
	return out.infraction()
}

func (s *HTTPStore) Delete(ctx context.Context, id int64) error {
	if err := s.do(ctx, http.MethodDelete, "bot/infractions/"+strconv.FormatInt(id, 10), nil, nil, nil); err != nil {
		return fmt.Errorf("deleting infraction #%d: %w", id, err)
	}
	return nil
}
