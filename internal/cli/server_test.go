package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/config"
	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/infra/memory"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildServerWithoutBackendsUsesMemory(t *testing.T) {
	srv, err := buildServer(context.Background(), config.Config{}, clockwork.NewFakeClock())
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	assert.Nil(t, srv.redis)
	assert.Nil(t, srv.pool)
	assert.Nil(t, srv.relay)

	created, err := srv.service.Create(context.Background(), "quiz-1", "host-1")
	require.NoError(t, err)
	_, err = srv.service.Join(context.Background(), created.Session.JoinCode, "p1")
	require.NoError(t, err, "demo profiles are served without postgres")

	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMediaResolverSelection(t *testing.T) {
	resolver, err := mediaResolver(config.Config{})
	require.NoError(t, err)
	assert.Nil(t, resolver)

	var cfg config.Config
	cfg.Media.BaseURL = "https://cdn.example.com/media"
	resolver, err = mediaResolver(cfg)
	require.NoError(t, err)
	assert.IsType(t, &memory.BaseURLResolver{}, resolver)

	cfg.MinIO.Endpoint = "localhost:9000"
	cfg.MinIO.Bucket = "media"
	resolver, err = mediaResolver(cfg)
	require.NoError(t, err)
	url, err := resolver.ResolveURL(context.Background(), "media/q1.png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://localhost:9000/media/q1.png?"), url)
}

func TestSetupLoggingPrefersFlag(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var cfg config.Config
	cfg.Log.Level = "warn"
	setupLogging(cfg, "")
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	setupLogging(cfg, "debug")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	setupLogging(cfg, "loud")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := newRootCmd()
	names := []string{}
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "start")
	assert.Contains(t, names, "migrate")
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
}
