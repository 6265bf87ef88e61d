package config

import (
	"context"
	"testing"

	"github.com/go-go-golems/waifu-coder/pkg/llm"
	"github.com/go-go-golems/waifu-coder/pkg/store"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	m, err := Load(context.Background(), store.NewInMemoryStore(), viper.New())
	require.NoError(t, err)

	s := m.Settings()
	assert.Equal(t, Defaults(), s)
	assert.Equal(t, "", m.APIKey())
	assert.Equal(t, llm.DefaultBaseURL, m.LLMSettings().BaseURL)
}

func TestLoad_Precedence(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	require.NoError(t, s.Set(ctx, store.KeyAPIKey, "csk-from-store-123"))
	require.NoError(t, s.Set(ctx, store.KeyCurrentModel, "llama3.1-70b"))
	require.NoError(t, s.Set(ctx, store.KeyAnimationsEnabled, "false"))

	v := viper.New()
	v.Set(FlagModel, "llama3.1-8b")
	v.Set(FlagTemperature, 2.0)

	m, err := Load(ctx, s, v)
	require.NoError(t, err)
	got := m.Settings()
	assert.Equal(t, "csk-from-store-123", got.APIKey)
	assert.Equal(t, "llama3.1-8b", got.Model)
	assert.False(t, got.AnimationsEnabled)
	assert.Equal(t, llm.MaxTemperature, m.LLMSettings().Temperature)
}

func TestManager_SetPersists(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	m, err := Load(ctx, s, nil)
	require.NoError(t, err)

	require.NoError(t, m.Set(ctx, FlagAPIKey, " csk-abcdef123456 "))
	require.NoError(t, m.Set(ctx, FlagModel, "llama3.1-70b"))
	require.NoError(t, m.Set(ctx, FlagTheme, "dark"))
	require.NoError(t, m.Set(ctx, FlagAnimations, "0"))

	reloaded, err := Load(ctx, s, nil)
	require.NoError(t, err)
	got := reloaded.Settings()
	assert.Equal(t, "csk-abcdef123456", got.APIKey)
	assert.Equal(t, "llama3.1-70b", got.Model)
	assert.Equal(t, "dark", got.Theme)
	assert.False(t, got.AnimationsEnabled)
}

func TestManager_SetRejects(t *testing.T) {
	ctx := context.Background()
	m, err := Load(ctx, store.NewInMemoryStore(), nil)
	require.NoError(t, err)

	assert.Error(t, m.Set(ctx, "colour", "x"))
	assert.Error(t, m.Set(ctx, FlagTheme, "neon"))
	assert.Error(t, m.Set(ctx, FlagAnimations, "maybe"))
	assert.Error(t, m.Set(ctx, FlagModel, ""))
	assert.Equal(t, Defaults(), m.Settings())
}

func TestManager_SetKeepsValueWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	m, err := Load(ctx, s, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.Error(t, m.Set(ctx, FlagModel, "llama3.1-8b"))
	assert.Equal(t, llm.DefaultModel, m.Settings().Model)
}

func TestIsValidAPIKey(t *testing.T) {
	assert.True(t, IsValidAPIKey("csk-1234567"))
	assert.False(t, IsValidAPIKey("csk-123"))
	assert.False(t, IsValidAPIKey("sk-1234567890"))
	assert.False(t, IsValidAPIKey(""))
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "", MaskAPIKey(""))
	assert.Equal(t, "****", MaskAPIKey("abcd"))
	assert.Equal(t, "csk-****5678", MaskAPIKey("csk-abcd5678"))
}

func TestLoad_Endpoint(t *testing.T) {
	ctx := context.Background()

	v := viper.New()
	v.Set(FlagEndpoint, "http://localhost:8080/v1")
	m, err := Load(ctx, store.NewInMemoryStore(), v)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/v1", m.LLMSettings().BaseURL)

	v = viper.New()
	v.Set(FlagEndpoint, "https://api.cerebras.ai/v1/chat/completions")
	m, err = Load(ctx, store.NewInMemoryStore(), v)
	require.NoError(t, err)
	assert.Equal(t, llm.DefaultBaseURL, m.LLMSettings().BaseURL)

	v = viper.New()
	v.Set(FlagEndpoint, "http://api.example.com/v1")
	_, err = Load(ctx, store.NewInMemoryStore(), v)
	require.ErrorIs(t, err, llm.ErrCleartextKey)

	v = viper.New()
	v.Set(FlagEndpoint, "ftp://example.com")
	_, err = Load(ctx, store.NewInMemoryStore(), v)
	require.Error(t, err)
}
