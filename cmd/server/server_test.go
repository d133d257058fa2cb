package main

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockvault/internal/cas"
	"github.com/blockvault/internal/config"
	"github.com/blockvault/internal/keywrap"
	"github.com/blockvault/internal/storage"
	"github.com/blockvault/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Mode: "test", MaxUploadBytes: 1 << 20},
		Auth: config.AuthConfig{
			JWTSecret:   "test-secret",
			TokenExpiry: time.Hour,
			NonceTTL:    5 * time.Minute,
		},
		RBAC: config.RBACConfig{DefaultRole: "owner"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	svc, err := newServices(cfg, store.NewMemoryStore(), blobs, cas.Disabled{}, logger)
	require.NoError(t, err)
	return newRouter(cfg, svc, logger)
}

type client struct {
	t       *testing.T
	handler http.Handler
	key     *ecdsa.PrivateKey
	address string
	token   string
}

func newClient(t *testing.T, h http.Handler) *client {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &client{t: t, handler: h, key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

func (c *client) do(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	return w
}

func (c *client) json(method, path string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(raw)
	}
	return c.do(method, path, r, "application/json")
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (c *client) login() {
	w := c.json(http.MethodPost, "/auth/get_nonce", map[string]string{"address": c.address})
	require.Equal(c.t, http.StatusOK, w.Code, w.Body.String())
	challenge := decode[map[string]string](c.t, w)

	sig, err := crypto.Sign(accounts.TextHash([]byte(challenge["message"])), c.key)
	require.NoError(c.t, err)
	sig[64] += 27

	w = c.json(http.MethodPost, "/auth/login", map[string]string{"address": c.address, "signature": hexutil.Encode(sig)})
	require.Equal(c.t, http.StatusOK, w.Code, w.Body.String())
	c.token = decode[map[string]any](c.t, w)["token"].(string)
}

func (c *client) upload(name, content, key string) string {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(c.t, err)
	_, err = part.Write([]byte(content))
	require.NoError(c.t, err)
	require.NoError(c.t, mw.WriteField("key", key))
	require.NoError(c.t, mw.Close())

	w := c.do(http.MethodPost, "/files", &buf, mw.FormDataContentType())
	require.Equal(c.t, http.StatusOK, w.Code, w.Body.String())
	return decode[map[string]any](c.t, w)["file_id"].(string)
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, w)["code"]
}

func TestHealthAndIndex(t *testing.T) {
	h := newTestServer(t, testConfig())
	c := newClient(t, h)

	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/health", nil, "").Code)

	w := c.do(http.MethodGet, "/", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "dev_token")
}

func TestLoginAndMe(t *testing.T) {
	h := newTestServer(t, testConfig())
	c := newClient(t, h)

	w := c.do(http.MethodGet, "/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthenticated", errorCode(t, w))

	c.login()
	w = c.do(http.MethodGet, "/auth/me", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[map[string]any](t, w)
	assert.Equal(t, c.address, me["address"])
	assert.Equal(t, "owner", me["role"])

	w = c.json(http.MethodPost, "/auth/get_nonce", map[string]string{"address": "0x12"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", errorCode(t, w))

	w = c.json(http.MethodPost, "/auth/login", map[string]string{"address": c.address, "signature": "0x00"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDevTokenRoute(t *testing.T) {
	c := newClient(t, newTestServer(t, testConfig()))
	w := c.json(http.MethodPost, "/auth/dev_token", map[string]string{"address": c.address})
	assert.Equal(t, http.StatusNotFound, w.Code)

	cfg := testConfig()
	cfg.Auth.DevMintEnabled = true
	c = newClient(t, newTestServer(t, cfg))
	w = c.json(http.MethodPost, "/auth/dev_token", map[string]string{"address": c.address})
	require.Equal(t, http.StatusOK, w.Code)
	c.token = decode[map[string]any](t, w)["token"].(string)
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/auth/me", nil, "").Code)

	cfg.Server.Mode = "release"
	c = newClient(t, newTestServer(t, cfg))
	w = c.json(http.MethodPost, "/auth/dev_token", map[string]string{"address": c.address})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFileLifecycle(t *testing.T) {
	h := newTestServer(t, testConfig())
	alice := newClient(t, h)
	alice.login()

	id := alice.upload("notes.txt", "top secret", "pw")

	w := alice.do(http.MethodGet, "/files?limit=10", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[map[string]any](t, w)
	assert.Len(t, list["items"], 1)
	assert.Equal(t, false, list["has_more"])

	w = alice.do(http.MethodGet, "/files?limit=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = alice.do(http.MethodGet, "/files/"+id+"?key=pw", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "top secret", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "notes.txt")

	w = alice.do(http.MethodGet, "/files/"+id+"?key=nope", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = alice.do(http.MethodGet, "/files/"+id+"/verify", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["has_encrypted_blob"])

	w = alice.do(http.MethodDelete, "/files/"+id, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = alice.do(http.MethodGet, "/files/"+id+"?key=pw", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSharingFlow(t *testing.T) {
	h := newTestServer(t, testConfig())
	alice := newClient(t, h)
	bob := newClient(t, h)
	alice.login()
	bob.login()

	id := alice.upload("plan.md", "the plan", "pw")
	shareReq := func(expiresAt *int64) map[string]any {
		return map[string]any{"recipient": bob.address, "passphrase": "pw", "note": "read me", "expires_at": expiresAt}
	}

	w := alice.json(http.MethodPost, "/files/"+id+"/share", shareReq(nil))
	assert.Equal(t, http.StatusBadRequest, w.Code, "bob has no key yet")

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemText, err := keywrap.EncodePublicKey(&key.PublicKey)
	require.NoError(t, err)
	w = bob.json(http.MethodPost, "/users/public_key", map[string]string{"public_key_pem": pemText})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = bob.do(http.MethodGet, "/users/profile?with_key=1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["has_public_key"])

	past := time.Now().Add(-time.Minute).UnixMilli()
	w = alice.json(http.MethodPost, "/files/"+id+"/share", shareReq(&past))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Nil(t, decode[map[string]any](t, w)["encrypted_key"])

	w = bob.do(http.MethodGet, "/files/shared", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[map[string][]any](t, w)["shares"])

	w = bob.do(http.MethodGet, "/files/"+id+"?key=pw", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = alice.do(http.MethodGet, "/files/"+id+"?key=pw", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = alice.json(http.MethodPost, "/files/"+id+"/share", shareReq(nil))
	require.Equal(t, http.StatusOK, w.Code)
	shareID := decode[map[string]any](t, w)["share_id"].(string)

	w = bob.do(http.MethodGet, "/files/shared", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	incoming := decode[map[string][]map[string]any](t, w)["shares"]
	require.Len(t, incoming, 1)
	wrapped, ok := incoming[0]["encrypted_key"].(string)
	require.True(t, ok)
	passphrase, err := keywrap.DecryptPassphrase(key, wrapped)
	require.NoError(t, err)
	assert.Equal(t, "pw", passphrase)

	req := httptest.NewRequest(http.MethodGet, "/files/"+id, nil)
	req.Header.Set("Authorization", "Bearer "+bob.token)
	req.Header.Set("X-File-Key", passphrase)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "the plan", rec.Body.String())

	w = alice.do(http.MethodGet, "/files/shares/outgoing", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	outgoing := decode[map[string][]map[string]any](t, w)["shares"]
	require.Len(t, outgoing, 1)
	assert.Nil(t, outgoing[0]["encrypted_key"])
	assert.Equal(t, "read me", outgoing[0]["note"])

	w = bob.do(http.MethodDelete, fmt.Sprintf("/files/shares/%s", shareID), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = bob.do(http.MethodGet, "/files/"+id+"?key=pw", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = alice.do(http.MethodDelete, "/files/shares/"+shareID, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxUploadBytes = 512
	h := newTestServer(t, cfg)
	c := newClient(t, h)
	c.login()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "big.bin")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("x"), 4096))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("key", "pw"))
	require.NoError(t, mw.Close())

	w := c.do(http.MethodPost, "/files", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
