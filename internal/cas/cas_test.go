package cas

import (
	"context"
	"encoding/base64"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockvault/internal/config"
)

func TestBadgerStore(t *testing.T) {
	s, err := OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	cid, err := s.Add(ctx, []byte("sealed bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cid, "bafkrei"), cid)

	again, err := s.Add(ctx, []byte("sealed bytes"))
	require.NoError(t, err)
	assert.Equal(t, cid, again, "same content, same cid")

	data, err := s.Cat(ctx, cid)
	require.NoError(t, err)
	assert.Equal(t, []byte("sealed bytes"), data)

	require.NoError(t, s.Unpin(ctx, cid))
	_, err = s.Cat(ctx, cid)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Cat(ctx, "not-a-cid")
	assert.Error(t, err)
	assert.Empty(t, s.GatewayURL(cid))
}

func TestDisabled(t *testing.T) {
	s, err := New(config.IPFSConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	_, err = s.Add(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrDisabled)
	assert.NoError(t, s.Unpin(context.Background(), "bafy"))
	assert.Empty(t, s.GatewayURL("bafy"))
}

func fakeKubo(t *testing.T, wantAuth string) *httptest.Server {
	pinned := map[string][]byte{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if wantAuth != "" && r.Header.Get("Authorization") != wantAuth {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/v0/add":
			assert.Equal(t, "true", r.URL.Query().Get("pin"))
			assert.Equal(t, "1", r.URL.Query().Get("cid-version"))
			data := firstFilePart(t, r)
			c, err := ComputeCID(data)
			require.NoError(t, err)
			pinned[c.String()] = data
			w.Write([]byte(`{"Name":"blob.bv","Hash":"` + c.String() + `","Size":"12"}` + "\n"))
		case "/api/v0/cat":
			data, ok := pinned[r.URL.Query().Get("arg")]
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"Message":"block was not found locally","Code":0,"Type":"error"}`))
				return
			}
			w.Write(data)
		case "/api/v0/pin/rm":
			delete(pinned, r.URL.Query().Get("arg"))
			w.Write([]byte(`{"Pins":["` + r.URL.Query().Get("arg") + `"]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func firstFilePart(t *testing.T, r *http.Request) []byte {
	t.Helper()
	mr, err := r.MultipartReader()
	require.NoError(t, err)
	for {
		part, err := mr.NextPart()
		require.NoError(t, err)
		if part.Header.Get("Content-Type") == "application/x-directory" {
			continue
		}
		data, err := io.ReadAll(part)
		require.NoError(t, err)
		return data
	}
}

func TestIPFSClient(t *testing.T) {
	srv := fakeKubo(t, "Bearer tok")
	s, err := New(config.IPFSConfig{Enabled: true, Mode: "http", APIURL: srv.URL + "/", APIToken: "tok", GatewayURL: "https://ipfs.io/ipfs/"})
	require.NoError(t, err)
	ctx := context.Background()

	cid, err := s.Add(ctx, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, "https://ipfs.io/ipfs/"+cid, s.GatewayURL(cid))

	data, err := s.Cat(ctx, cid)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	require.NoError(t, s.Unpin(ctx, cid))
	_, err = s.Cat(ctx, cid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "block was not found locally")
}

func TestIPFSBasicAuth(t *testing.T) {
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("user:pass"))
	srv := fakeKubo(t, want)
	s, err := NewIPFSClient(config.IPFSConfig{APIURL: srv.URL, APIToken: "user:pass"})
	require.NoError(t, err)

	_, err = s.Add(context.Background(), []byte("x"))
	assert.NoError(t, err)

	wrong, err := NewIPFSClient(config.IPFSConfig{APIURL: srv.URL, APIToken: "other"})
	require.NoError(t, err)
	_, err = wrong.Add(context.Background(), []byte("x"))
	assert.Error(t, err)
}

func TestIPFSMultiaddrAPI(t *testing.T) {
	srv := fakeKubo(t, "")
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)

	for _, addr := range []string{
		"/ip4/" + host + "/tcp/" + port + "/http",
		"/dns/localhost/tcp/" + port + "/http",
		"/ip4/" + host + "/tcp/" + port,
	} {
		t.Run(addr, func(t *testing.T) {
			s, err := NewIPFSClient(config.IPFSConfig{APIURL: addr})
			require.NoError(t, err)

			cid, err := s.Add(context.Background(), []byte("over multiaddr"))
			require.NoError(t, err)
			data, err := s.Cat(context.Background(), cid)
			require.NoError(t, err)
			assert.Equal(t, []byte("over multiaddr"), data)
		})
	}
}

func TestAPIBase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://localhost:5001/", "http://localhost:5001"},
		{"/dns/localhost/tcp/5001/http", "http://localhost:5001"},
		{"/dns4/ipfs.example.com/tcp/443/https", "https://ipfs.example.com:443"},
		{"/ip4/10.0.0.7/tcp/5001", "http://10.0.0.7:5001"},
		{"/ip6/::1/tcp/5001/http", "http://[::1]:5001"},
	}
	for _, tt := range tests {
		got, err := apiBase(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	for _, bad := range []string{"", "/dns/localhost", "/not/a/multiaddr"} {
		_, err := apiBase(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewRejectsUnknownMode(t *testing.T) {
	_, err := New(config.IPFSConfig{Enabled: true, Mode: "ftp"})
	assert.Error(t, err)
}
