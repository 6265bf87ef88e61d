// Package config resolves the application settings from defaults, the
// persisted store and viper (flags, environment, config file).
package config

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/go-go-golems/waifu-coder/pkg/llm"
	"github.com/go-go-golems/waifu-coder/pkg/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Viper keys. They double as the names accepted by Manager.Set.
const (
	FlagAPIKey      = "api-key"
	FlagModel       = "model"
	FlagEndpoint    = "endpoint"
	FlagTemperature = "temperature"
	FlagMaxTokens   = "max-tokens"
	FlagTheme       = "theme"
	FlagAnimations  = "animations"
	FlagStore       = "store"
	FlagStorePath   = "store-path"
	FlagCatalog     = "catalog"
)

const DefaultTheme = "platinum"

var Themes = []string{"platinum", "dark", "pink"}

type Settings struct {
	APIKey            string        `json:"-" yaml:"-"`
	Model             string        `json:"model" yaml:"model"`
	Endpoint          string        `json:"endpoint" yaml:"endpoint"`
	Temperature       float64       `json:"temperature" yaml:"temperature"`
	MaxTokens         int           `json:"maxTokens" yaml:"max-tokens"`
	Theme             string        `json:"theme" yaml:"theme"`
	AnimationsEnabled bool          `json:"animationsEnabled" yaml:"animations"`
	StoreBackend      store.Backend `json:"store" yaml:"store"`
	StorePath         string        `json:"storePath" yaml:"store-path"`
	CatalogPath       string        `json:"catalog,omitempty" yaml:"catalog,omitempty"`
}

func Defaults() Settings {
	return Settings{
		Model:             llm.DefaultModel,
		Endpoint:          llm.DefaultBaseURL,
		Temperature:       llm.DefaultTemperature,
		MaxTokens:         llm.DefaultMaxTokens,
		Theme:             DefaultTheme,
		AnimationsEnabled: true,
		StoreBackend:      store.BackendSQLite,
	}
}

// IsValidAPIKey reports whether key looks like a Cerebras key. Keys that
// fail the check are still used.
func IsValidAPIKey(key string) bool {
	return strings.HasPrefix(key, "csk-") && len(key) > 10
}

// MaskAPIKey keeps the prefix and the last four characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// FromViper reads the bootstrap settings: everything that is needed before
// a store can be opened, plus whatever viper has explicitly set.
func FromViper(v *viper.Viper) Settings {
	s := Defaults()
	overlayViper(&s, v)
	return s
}

func overlayViper(s *Settings, v *viper.Viper) {
	if v == nil {
		return
	}
	if v.IsSet(FlagAPIKey) {
		s.APIKey = v.GetString(FlagAPIKey)
	}
	if v.IsSet(FlagModel) {
		s.Model = v.GetString(FlagModel)
	}
	if v.IsSet(FlagEndpoint) {
		s.Endpoint = v.GetString(FlagEndpoint)
	}
	if v.IsSet(FlagTemperature) {
		s.Temperature = v.GetFloat64(FlagTemperature)
	}
	if v.IsSet(FlagMaxTokens) {
		s.MaxTokens = v.GetInt(FlagMaxTokens)
	}
	if v.IsSet(FlagTheme) {
		s.Theme = v.GetString(FlagTheme)
	}
	if v.IsSet(FlagAnimations) {
		s.AnimationsEnabled = v.GetBool(FlagAnimations)
	}
	if v.IsSet(FlagStore) {
		s.StoreBackend = store.Backend(v.GetString(FlagStore))
	}
	if v.IsSet(FlagStorePath) {
		s.StorePath = v.GetString(FlagStorePath)
	}
	if v.IsSet(FlagCatalog) {
		s.CatalogPath = v.GetString(FlagCatalog)
	}
}

// Manager holds the resolved settings and writes changes back to the store.
type Manager struct {
	mu      sync.RWMutex
	store   store.Store
	current Settings
}

// Load resolves settings with the precedence viper > store > defaults.
func Load(ctx context.Context, s store.Store, v *viper.Viper) (*Manager, error) {
	settings := Defaults()

	if err := overlayStore(ctx, &settings, s); err != nil {
		return nil, err
	}
	overlayViper(&settings, v)

	endpoint, err := resolveEndpoint(settings.Endpoint)
	if err != nil {
		return nil, err
	}
	settings.Endpoint = endpoint
	if settings.APIKey != "" && !IsValidAPIKey(settings.APIKey) {
		log.Warn().Msg("API key does not look like a Cerebras key (csk-...)")
	}
	if !llm.IsAvailableModel(settings.Model) {
		log.Warn().Str("model", settings.Model).Msg("Unknown model, sending it anyway")
	}

	return &Manager{store: s, current: settings}, nil
}

// resolveEndpoint normalizes the endpoint. Local and plain HTTP endpoints
// are accepted with a warning, for self-hosted OpenAI compatible servers.
func resolveEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", nil
	}
	ep, err := llm.ResolveEndpoint(endpoint)
	if err != nil {
		return "", errors.Wrapf(err, "invalid endpoint %s", endpoint)
	}
	if ep.Local || !ep.Secure {
		log.Warn().
			Str("endpoint", ep.BaseURL).
			Bool("local", ep.Local).
			Bool("https", ep.Secure).
			Msg("Using a self-hosted endpoint")
	}
	return ep.BaseURL, nil
}

func overlayStore(ctx context.Context, settings *Settings, s store.Store) error {
	get := func(key string) (string, bool, error) {
		v, ok, err := s.Get(ctx, key)
		if err != nil {
			return "", false, errors.Wrapf(err, "could not read %s", key)
		}
		return v, ok && v != "", nil
	}

	if v, ok, err := get(store.KeyAPIKey); err != nil {
		return err
	} else if ok {
		settings.APIKey = v
	}
	if v, ok, err := get(store.KeyCurrentModel); err != nil {
		return err
	} else if ok {
		settings.Model = v
	}
	if v, ok, err := get(store.KeyTheme); err != nil {
		return err
	} else if ok {
		settings.Theme = v
	}
	if v, ok, err := get(store.KeyAnimationsEnabled); err != nil {
		return err
	} else if ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Warn().Str("value", v).Msg("Ignoring invalid animations setting")
		} else {
			settings.AnimationsEnabled = b
		}
	}
	return nil
}

func (m *Manager) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Manager) APIKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.APIKey
}

func (m *Manager) LLMSettings() llm.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return llm.Settings{
		APIKey:      m.current.APIKey,
		BaseURL:     m.current.Endpoint,
		Model:       m.current.Model,
		Temperature: m.current.Temperature,
		MaxTokens:   m.current.MaxTokens,
	}.Normalized()
}

// SettableKeys lists the keys Set accepts.
var SettableKeys = []string{FlagAPIKey, FlagModel, FlagTheme, FlagAnimations}

// Set changes a persisted setting. The in-memory value is only updated
// when the store write succeeds.
func (m *Manager) Set(ctx context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.current
	var storeKey string
	switch key {
	case FlagAPIKey:
		value = strings.TrimSpace(value)
		if !IsValidAPIKey(value) {
			log.Warn().Msg("API key does not look like a Cerebras key (csk-...)")
		}
		next.APIKey = value
		storeKey = store.KeyAPIKey
	case FlagModel:
		if value == "" {
			return errors.New("model cannot be empty")
		}
		if !llm.IsAvailableModel(value) {
			log.Warn().Str("model", value).Msg("Unknown model, sending it anyway")
		}
		next.Model = value
		storeKey = store.KeyCurrentModel
	case FlagTheme:
		if !isTheme(value) {
			return errors.Errorf("unknown theme %q (one of %s)", value, strings.Join(Themes, ", "))
		}
		next.Theme = value
		storeKey = store.KeyTheme
	case FlagAnimations:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errors.Wrapf(err, "invalid value for %s", key)
		}
		next.AnimationsEnabled = b
		value = strconv.FormatBool(b)
		storeKey = store.KeyAnimationsEnabled
	default:
		return errors.Errorf("unknown setting %q (one of %s)", key, strings.Join(SettableKeys, ", "))
	}

	if err := m.store.Set(ctx, storeKey, value); err != nil {
		return errors.Wrapf(err, "could not persist %s", key)
	}
	m.current = next
	return nil
}

func isTheme(t string) bool {
	for _, th := range Themes {
		if th == t {
			return true
		}
	}
	return false
}
