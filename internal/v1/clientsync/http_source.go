package clientsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/roomfabric/hub/internal/v1/wire"
)

// httpSourceTimeout bounds a single history-endpoint round trip so a slow
// or unreachable server never stalls room open indefinitely.
const httpSourceTimeout = 10 * time.Second

// HTTPHistorySource is a HistorySource backed by the HistoryAPI's
// message-ids and get-messages-by-id endpoints, for a Go-based client
// talking to a deployed hub over plain HTTP.
type HTTPHistorySource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPHistorySource builds an HTTPHistorySource against baseURL (e.g.
// "https://hub.example.com/api").
func NewHTTPHistorySource(baseURL string) *HTTPHistorySource {
	return &HTTPHistorySource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: httpSourceTimeout},
	}
}

// MessageIDs fetches GET /rooms/{room}/message-ids?daysOfHistory=N.
func (s *HTTPHistorySource) MessageIDs(ctx context.Context, room string, daysOfHistory int) ([]string, error) {
	endpoint := fmt.Sprintf("%s/rooms/%s/message-ids?daysOfHistory=%d", s.baseURL, url.PathEscape(room), daysOfHistory)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clientsync: message-ids request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clientsync: message-ids returned %s", resp.Status)
	}

	var out struct {
		MessageIDs []string `json:"messageIds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("clientsync: decode message-ids: %w", err)
	}
	return out.MessageIDs, nil
}

// MessagesByIDs fetches POST /rooms/{room}/get-messages-by-id.
func (s *HTTPHistorySource) MessagesByIDs(ctx context.Context, room string, ids []string) ([]wire.ChatMessage, error) {
	body, err := json.Marshal(struct {
		IDs []string `json:"ids"`
	}{IDs: ids})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/rooms/%s/get-messages-by-id", s.baseURL, url.PathEscape(room))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clientsync: get-messages-by-id request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clientsync: get-messages-by-id returned %s", resp.Status)
	}

	var out struct {
		Messages []wire.ChatMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("clientsync: decode get-messages-by-id: %w", err)
	}
	return out.Messages, nil
}

var _ HistorySource = (*HTTPHistorySource)(nil)
