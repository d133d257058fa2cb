package cas

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/blockvault/internal/config"
)

// IPFSClient pins blobs on a Kubo node through its RPC API.
type IPFSClient struct {
	sh         *shell.Shell
	gatewayURL string
}

// NewIPFSClient accepts api_url either as an http(s) URL or as a multiaddr
// such as /dns/localhost/tcp/5001/http.
func NewIPFSClient(cfg config.IPFSConfig) (*IPFSClient, error) {
	base, err := apiBase(cfg.APIURL)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: tokenTransport{token: cfg.APIToken, next: http.DefaultTransport},
	}
	return &IPFSClient{
		sh:         shell.NewShellWithClient(base, client),
		gatewayURL: strings.TrimRight(cfg.GatewayURL, "/"),
	}, nil
}

func (c *IPFSClient) Add(ctx context.Context, data []byte) (string, error) {
	var out struct {
		Hash string
	}
	err := c.sh.Request("add").
		Option("pin", true).
		Option("cid-version", 1).
		FileBody(bytes.NewReader(data)).
		Exec(ctx, &out)
	if err != nil {
		return "", fmt.Errorf("ipfs add: %w", err)
	}
	if out.Hash == "" {
		return "", fmt.Errorf("ipfs add: empty response")
	}
	return out.Hash, nil
}

func (c *IPFSClient) Cat(ctx context.Context, cid string) ([]byte, error) {
	resp, err := c.sh.Request("cat", cid).Send(ctx)
	if err != nil {
		return nil, fmt.Errorf("ipfs cat: %w", err)
	}
	defer resp.Close()
	if resp.Error != nil {
		return nil, fmt.Errorf("ipfs cat: %w", resp.Error)
	}
	return io.ReadAll(resp.Output)
}

func (c *IPFSClient) Unpin(ctx context.Context, cid string) error {
	if err := c.sh.Request("pin/rm", cid).Exec(ctx, nil); err != nil {
		return fmt.Errorf("ipfs pin/rm: %w", err)
	}
	return nil
}

func (c *IPFSClient) GatewayURL(cid string) string {
	if c.gatewayURL == "" || cid == "" {
		return ""
	}
	return c.gatewayURL + "/" + cid
}

func (c *IPFSClient) Enabled() bool { return true }

// apiBase turns a multiaddr API address into host:port form with a scheme.
// Plain URLs pass through.
func apiBase(raw string) (string, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return "", fmt.Errorf("ipfs api_url is empty")
	}
	if !strings.HasPrefix(raw, "/") {
		return raw, nil
	}

	addr, err := ma.NewMultiaddr(raw)
	if err != nil {
		return "", fmt.Errorf("invalid ipfs api multiaddr %q: %w", raw, err)
	}
	var host string
	for _, code := range []int{ma.P_DNS, ma.P_DNS4, ma.P_DNS6, ma.P_IP4, ma.P_IP6} {
		if v, err := addr.ValueForProtocol(code); err == nil {
			host = v
			break
		}
	}
	port, err := addr.ValueForProtocol(ma.P_TCP)
	if host == "" || err != nil {
		return "", fmt.Errorf("ipfs api multiaddr %q needs a host and a tcp port", raw)
	}

	scheme := "http"
	for _, p := range addr.Protocols() {
		if p.Code == ma.P_HTTPS || p.Code == ma.P_TLS {
			scheme = "https"
		}
	}
	return scheme + "://" + net.JoinHostPort(host, port), nil
}

// tokenTransport treats "user:pass" tokens as basic credentials and anything
// else as a bearer token.
type tokenTransport struct {
	token string
	next  http.RoundTripper
}

func (t tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token == "" {
		return t.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	if strings.Contains(t.token, ":") {
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(t.token)))
	} else {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	return t.next.RoundTrip(req)
}
