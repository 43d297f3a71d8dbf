// Package transport carries deployment bundles between the
// coordinator and database servers over HTTP/JSON: a client for the
// coordinator side and the handler a database server mounts.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/perchdb/perch/internal/cluster"
	"github.com/perchdb/perch/internal/shard"
)

// AddrResolver maps a server id to a dialable address. The live
// implementation is cluster.Topology.
type AddrResolver interface {
	ServerAddr(id cluster.ServerID) (string, bool)
}

// HTTPDeploymentClient ships deployment bundles to database servers.
// It satisfies shard.DeploymentClient.
type HTTPDeploymentClient struct {
	resolver AddrResolver
	client   *http.Client
}

// NewDeploymentClient builds a client resolving server ids through
// the given resolver. Timeouts come per call, not per client.
func NewDeploymentClient(resolver AddrResolver) *HTTPDeploymentClient {
	return &HTTPDeploymentClient{
		resolver: resolver,
		client:   &http.Client{},
	}
}

// SetupPath returns the snippet setup endpoint of a database.
func SetupPath(database string) string {
	return "/_db/" + url.PathEscape(database) + "/_internal/query/setup"
}

// EnginePath returns the teardown endpoint of one deployed engine.
func EnginePath(database string, id uint64) string {
	return "/_db/" + url.PathEscape(database) + "/_internal/query/engine/" + strconv.FormatUint(id, 10)
}

// Send posts one bundle and returns the raw response body. The
// timeout bounds the whole exchange including connection setup.
func (c *HTTPDeploymentClient) Send(ctx context.Context, server cluster.ServerID, database string, bundle *shard.DeploymentBundle, timeout time.Duration) ([]byte, error) {
	addr, ok := c.resolver.ServerAddr(server)
	if !ok {
		return nil, ErrUnknownServer.WithCausef("server:%s", server)
	}

	body, err := json.Marshal(bundle)
	if err != nil {
		return nil, errors.Wrap(err, "marshal deployment bundle")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(addr)+SetupPath(database), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build setup request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "post setup to %s", server)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read setup response from %s", server)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("setup on %s: http %d: %s",
			server, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

// DestroyEngine asks a server to drop one deployed engine before it
// ages out, used when a query finishes or is killed. A 404 means the
// sweeper got there first and is not an error.
func (c *HTTPDeploymentClient) DestroyEngine(ctx context.Context, server cluster.ServerID, database string, engineID uint64) error {
	addr, ok := c.resolver.ServerAddr(server)
	if !ok {
		return ErrUnknownServer.WithCausef("server:%s", server)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, baseURL(addr)+EnginePath(database, engineID), nil)
	if err != nil {
		return errors.Wrap(err, "build teardown request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "delete engine on %s", server)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return errors.Errorf("teardown on %s: http %d", server, resp.StatusCode)
	}
	return nil
}

// baseURL normalizes a registered address into a URL prefix;
// registration accepts bare host:port.
func baseURL(addr string) string {
	addr = strings.TrimSuffix(addr, "/")
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}
