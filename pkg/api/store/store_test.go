package store_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/clientads/adserver/pkg/api/store"
	"github.com/clientads/adserver/pkg/config"
)

func setupTestStore(t *testing.T) store.Store {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:"},
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := store.NewStore(log, cfg)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func testAd(id, clientID string) *store.Ad {
	return &store.Ad{
		ID:         id,
		Title:      "Memory Game Power-Up!",
		Type:       store.AdTypeImage,
		ImageURL:   "https://cdn.example.com/" + id + ".png",
		ClickURL:   "https://example.com/" + id,
		Categories: store.StringList{"games"},
		Enabled:    true,
		ClientID:   clientID,
	}
}

func TestStore_AdRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ad := testAd("ad-1", "game-a")
	require.NoError(t, s.UpsertAd(ctx, ad))

	got, err := s.GetAd(ctx, "ad-1")
	require.NoError(t, err)
	assert.Equal(t, ad.Title, got.Title)
	assert.Equal(t, ad.Type, got.Type)
	assert.Equal(t, ad.ImageURL, got.ImageURL)
	assert.Equal(t, ad.ClickURL, got.ClickURL)
	assert.Equal(t, store.StringList{"games"}, got.Categories)
	assert.True(t, got.Enabled)
	assert.Equal(t, "game-a", got.ClientID)
}

func TestStore_UpsertAdOverwrites(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertAd(ctx, testAd("ad-1", "game-a")))

	// Re-create with the same id but different fields: the record is
	// replaced, not duplicated.
	updated := testAd("ad-1", "game-a")
	updated.Title = "New Title"
	updated.Enabled = false
	require.NoError(t, s.UpsertAd(ctx, updated))

	ads, err := s.ListAds(ctx, store.AdFilter{})
	require.NoError(t, err)
	require.Len(t, ads, 1)
	assert.Equal(t, "New Title", ads[0].Title)
	assert.False(t, ads[0].Enabled)
}

func TestStore_ListAdsFilters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	imageAd := testAd("ad-img", "game-a")

	videoAd := testAd("ad-vid", "game-a")
	videoAd.Type = store.AdTypeVideo
	videoAd.ImageURL = ""
	videoAd.VideoURL = "https://cdn.example.com/ad-vid.mp4"

	disabledAd := testAd("ad-off", "game-a")
	disabledAd.Enabled = false

	otherClientAd := testAd("ad-other", "game-b")

	for _, ad := range []*store.Ad{imageAd, videoAd, disabledAd, otherClientAd} {
		require.NoError(t, s.UpsertAd(ctx, ad))
	}

	enabled := true

	tests := []struct {
		name    string
		filter  store.AdFilter
		wantIDs []string
	}{
		{
			name:    "unrestricted",
			filter:  store.AdFilter{},
			wantIDs: []string{"ad-img", "ad-off", "ad-other", "ad-vid"},
		},
		{
			name:    "by client",
			filter:  store.AdFilter{ClientIDs: []string{"game-b"}},
			wantIDs: []string{"ad-other"},
		},
		{
			name:    "empty scope matches nothing",
			filter:  store.AdFilter{ClientIDs: []string{}},
			wantIDs: []string{},
		},
		{
			name:    "by type",
			filter:  store.AdFilter{Type: store.AdTypeVideo},
			wantIDs: []string{"ad-vid"},
		},
		{
			name:    "by type set",
			filter:  store.AdFilter{Types: []string{store.AdTypeImage}},
			wantIDs: []string{"ad-img", "ad-off", "ad-other"},
		},
		{
			name: "enabled only for client",
			filter: store.AdFilter{
				ClientIDs: []string{"game-a"},
				Enabled:   &enabled,
			},
			wantIDs: []string{"ad-img", "ad-vid"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ads, err := s.ListAds(ctx, tt.filter)
			require.NoError(t, err)

			ids := make([]string, 0, len(ads))
			for i := range ads {
				ids = append(ids, ads[i].ID)
			}

			assert.ElementsMatch(t, tt.wantIDs, ids)
		})
	}
}

func TestStore_UpdateAdFields(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertAd(ctx, testAd("ad-1", "game-a")))

	err := s.UpdateAdFields(ctx, "ad-1", map[string]any{
		"title":      "Updated",
		"enabled":    false,
		"categories": store.StringList{"sports", "news"},
	})
	require.NoError(t, err)

	got, err := s.GetAd(ctx, "ad-1")
	require.NoError(t, err)
	assert.Equal(t, "Updated", got.Title)
	assert.False(t, got.Enabled)
	assert.Equal(t, store.StringList{"sports", "news"}, got.Categories)

	// Untouched fields survive the partial update.
	assert.Equal(t, "game-a", got.ClientID)
	assert.Equal(t, store.AdTypeImage, got.Type)

	err = s.UpdateAdFields(ctx, "missing", map[string]any{"title": "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_DeleteAd(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertAd(ctx, testAd("ad-1", "game-a")))
	require.NoError(t, s.DeleteAd(ctx, "ad-1"))

	_, err := s.GetAd(ctx, "ad-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, s.DeleteAd(ctx, "ad-1"), store.ErrNotFound)
}

func TestStore_ClientConfigRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.GetConfig(ctx, "game-a")
	assert.ErrorIs(t, err, store.ErrNotFound)

	cfg := &store.ClientConfig{
		ClientID:          "game-a",
		AllowedTypes:      store.StringList{store.AdTypeVideo},
		AllowedCategories: store.StringList{"sports"},
	}
	require.NoError(t, s.UpsertConfig(ctx, cfg))

	got, err := s.GetConfig(ctx, "game-a")
	require.NoError(t, err)
	assert.Equal(t, store.StringList{store.AdTypeVideo}, got.AllowedTypes)
	assert.Equal(t, store.StringList{"sports"}, got.AllowedCategories)

	// Upsert replaces the stored policy.
	cfg.AllowedCategories = store.StringList{}
	require.NoError(t, s.UpsertConfig(ctx, cfg))

	got, err = s.GetConfig(ctx, "game-a")
	require.NoError(t, err)
	assert.Empty(t, got.AllowedCategories)
}

func TestStore_ClientIDInUse(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	inUse, err := s.ClientIDInUse(ctx, "game-a")
	require.NoError(t, err)
	assert.False(t, inUse)

	// Claimed by a config.
	require.NoError(t, s.UpsertConfig(
		ctx, store.DefaultClientConfig("game-a"),
	))

	inUse, err = s.ClientIDInUse(ctx, "game-a")
	require.NoError(t, err)
	assert.True(t, inUse)

	// Claimed by an ad only.
	require.NoError(t, s.UpsertAd(ctx, testAd("ad-1", "game-b")))

	inUse, err = s.ClientIDInUse(ctx, "game-b")
	require.NoError(t, err)
	assert.True(t, inUse)
}

func TestStore_Users(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	user := &store.User{
		Username:         "dev1",
		PasswordHash:     "hash",
		Role:             store.RoleDeveloper,
		AllowedClientIDs: store.StringList{"game-a"},
	}
	require.NoError(t, s.CreateUser(ctx, user))

	got, err := s.GetUser(ctx, "dev1")
	require.NoError(t, err)
	assert.Equal(t, store.RoleDeveloper, got.Role)
	assert.True(t, got.HasClientID("game-a"))
	assert.False(t, got.HasClientID("game-b"))

	// Duplicate usernames are rejected by the primary key.
	assert.Error(t, s.CreateUser(ctx, &store.User{
		Username:     "dev1",
		PasswordHash: "other",
		Role:         store.RoleDeveloper,
	}))

	// Scope grows through SaveUser.
	got.AllowedClientIDs = append(got.AllowedClientIDs, "game-b")
	require.NoError(t, s.SaveUser(ctx, got))

	got, err = s.GetUser(ctx, "dev1")
	require.NoError(t, err)
	assert.Equal(t, store.StringList{"game-a", "game-b"}, got.AllowedClientIDs)

	_, err = s.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_SeedAdmin(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SeedAdmin(ctx, "admin", "hunter2"))

	admin, err := s.GetUser(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, store.RoleAdmin, admin.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword(
		[]byte(admin.PasswordHash), []byte("hunter2"),
	))

	// Re-seeding with a new password updates the same record.
	require.NoError(t, s.SeedAdmin(ctx, "admin", "rotated"))

	admin, err = s.GetUser(ctx, "admin")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword(
		[]byte(admin.PasswordHash), []byte("rotated"),
	))
}
