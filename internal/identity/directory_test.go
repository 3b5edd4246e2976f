package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levelbot/levelbot/internal/logger"
	"github.com/levelbot/levelbot/internal/models"
)

func TestResolvePrefersCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDirectory(Options{APIBase: srv.URL}, logger.Discard())
	d.Remember(models.Identity{UserID: "1", Name: "cached"})

	ident, err := d.Resolve(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "cached", ident.Name)
	assert.Equal(t, int32(0), calls.Load())
}

func TestResolveFetchesAndCaches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/users/80351110224678912", r.URL.Path)
		assert.Equal(t, "Bot secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"80351110224678912","username":"nelly","avatar":"8342729096ea3675442027381ff50dfe"}`))
	}))
	defer srv.Close()

	d := NewDirectory(Options{APIBase: srv.URL, Token: "secret"}, logger.Discard())
	ctx := context.Background()

	ident, err := d.Resolve(ctx, "80351110224678912")
	require.NoError(t, err)
	assert.Equal(t, "nelly", ident.Name)
	require.NotNil(t, ident.AvatarURL)
	assert.Equal(t, "https://cdn.discordapp.com/avatars/80351110224678912/8342729096ea3675442027381ff50dfe.png", *ident.AvatarURL)

	_, err = d.Resolve(ctx, "80351110224678912")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestResolvePrefersGlobalName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/1":
			_, _ = w.Write([]byte(`{"id":"1","username":"nelly","global_name":"Nelly Furtado","avatar":null}`))
		default:
			_, _ = w.Write([]byte(`{"id":"2","username":"bob","global_name":""}`))
		}
	}))
	defer srv.Close()

	d := NewDirectory(Options{APIBase: srv.URL}, logger.Discard())
	ctx := context.Background()

	ident, err := d.Resolve(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Nelly Furtado", ident.Name)

	ident, err = d.Resolve(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "bob", ident.Name)
}

func TestResolveNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d := NewDirectory(Options{APIBase: srv.URL}, logger.Discard())
	_, err := d.Resolve(context.Background(), "2")
	require.ErrorIs(t, err, ErrNotFound)

	offline := NewDirectory(Options{}, logger.Discard())
	_, err = offline.Resolve(context.Background(), "2")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCacheExpires(t *testing.T) {
	d := NewDirectory(Options{CacheTTL: time.Minute}, logger.Discard())
	now := time.Unix(1_000, 0)
	d.SetNow(func() time.Time { return now })

	d.Remember(models.Identity{UserID: "1", Name: "x"})
	_, err := d.Resolve(context.Background(), "1")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = d.Resolve(context.Background(), "1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDefaultAvatar(t *testing.T) {
	assert.Equal(t, "https://cdn.discordapp.com/embed/avatars/0.png", AvatarURL("not-a-number", nil))
	empty := ""
	id := uint64(5) << 22
	assert.Equal(t, "https://cdn.discordapp.com/embed/avatars/5.png", AvatarURL(strconv.FormatUint(id, 10), &empty))
}
