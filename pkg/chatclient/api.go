package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation")
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api: %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthenticated:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrValidation:
		return e.Status == http.StatusBadRequest
	}
	return false
}

// TokenSource returns the current access token.
type TokenSource func() string

func StaticToken(tok string) TokenSource { return func() string { return tok } }

type API struct {
	base  string
	token TokenSource
	http  *http.Client
}

func NewAPI(baseURL string, token TokenSource, hc *http.Client) *API {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &API{base: strings.TrimRight(baseURL, "/"), token: token, http: hc}
}

// BaseURL is the HTTP origin the client talks to.
func (a *API) BaseURL() string { return a.base }

func (a *API) Token() string { return a.token() }

// GetOrCreateRoom opens the buyer's room for productID.
func (a *API) GetOrCreateRoom(ctx context.Context, productID string) (roomID string, created bool, err error) {
	var out struct {
		RoomID  string `json:"roomId"`
		Created bool   `json:"created"`
	}
	err = a.do(ctx, http.MethodPost, "/rooms", nil, map[string]string{"productId": productID}, &out)
	return out.RoomID, out.Created, err
}

func (a *API) ListRooms(ctx context.Context, limit int) ([]RoomSummary, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Items []RoomSummary `json:"items"`
	}
	err := a.do(ctx, http.MethodGet, "/rooms", q, nil, &out)
	return out.Items, err
}

func (a *API) GetRoom(ctx context.Context, roomID string) (RoomInfo, error) {
	var out RoomInfo
	err := a.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID), nil, nil, &out)
	return out, err
}

// ListMessages returns messages after the cursor; an empty cursor starts at the beginning.
func (a *API) ListMessages(ctx context.Context, roomID, after string, limit int) (Page, error) {
	q := url.Values{"roomId": {roomID}}
	if after != "" {
		q.Set("after", after)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out Page
	err := a.do(ctx, http.MethodGet, "/messages", q, nil, &out)
	return out, err
}

// ListAll pages from after until the server returns an empty page.
func (a *API) ListAll(ctx context.Context, roomID, after string) ([]Message, string, error) {
	var all []Message
	cursor := after
	for {
		page, err := a.ListMessages(ctx, roomID, cursor, 0)
		if err != nil {
			return all, cursor, err
		}
		if page.NextCursor != "" {
			cursor = page.NextCursor
		}
		if len(page.Items) == 0 {
			return all, cursor, nil
		}
		all = append(all, page.Items...)
	}
}

func (a *API) SendMessage(ctx context.Context, roomID string, d Draft) (Message, error) {
	body := struct {
		RoomID string `json:"roomId"`
		Draft
	}{RoomID: roomID, Draft: d}
	var out Message
	err := a.do(ctx, http.MethodPost, "/messages", nil, body, &out)
	return out, err
}

func (a *API) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	u := a.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := a.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env struct {
		Data  json.RawMessage `json:"data"`
		Error *struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("chat api: decode %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if env.Error != nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
