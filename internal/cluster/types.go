package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// ServerID identifies one database server process in the cluster.
type ServerID string

// ShardID identifies one shard of a collection.
type ShardID string

// ServerInfo describes a registered database server.
type ServerInfo struct {
	ID   ServerID `json:"id" yaml:"id"`
	Addr string   `json:"addr" yaml:"addr"`
}

// RegisterRequest is the body a database server posts to the
// coordinator on boot.
type RegisterRequest struct {
	Server ServerInfo `json:"server"`
}

// ServerAddress renders the canonical server-addressed destination
// embedded in remote-fetch steps. Remote calls never address shards
// directly; the leader is resolved first and pinned.
func ServerAddress(id ServerID) string {
	return "server:" + string(id)
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

// PostJSON posts body as JSON to url and decodes the response into out
// when out is non-nil. Responses with status >= 300 are errors.
func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal request body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.Errorf("http %s: %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
