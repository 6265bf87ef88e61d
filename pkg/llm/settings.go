package llm

const (
	DefaultBaseURL     = "https://api.cerebras.ai/v1"
	DefaultModel       = "llama-4-scout-17b-16e-instruct"
	DefaultTemperature = 0.8
	DefaultMaxTokens   = 1500

	MinTemperature = 0.7
	MaxTemperature = 0.8
	MinMaxTokens   = 1000
	MaxMaxTokens   = 1500
)

// AvailableModels lists the models the endpoint is known to serve.
var AvailableModels = []string{
	"llama-4-scout-17b-16e-instruct",
	"llama3.1-70b",
	"llama3.1-8b",
}

// Settings configure one completion request.
type Settings struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// SettingsSource is read once per request, so changes apply to the next
// send.
type SettingsSource interface {
	LLMSettings() Settings
}

type StaticSettings Settings

func (s StaticSettings) LLMSettings() Settings {
	return Settings(s)
}

// Normalized fills in defaults and clamps temperature and max tokens to
// their supported ranges.
func (s Settings) Normalized() Settings {
	if s.BaseURL == "" {
		s.BaseURL = DefaultBaseURL
	}
	if s.Model == "" {
		s.Model = DefaultModel
	}
	switch {
	case s.Temperature == 0:
		s.Temperature = DefaultTemperature
	case s.Temperature < MinTemperature:
		s.Temperature = MinTemperature
	case s.Temperature > MaxTemperature:
		s.Temperature = MaxTemperature
	}
	switch {
	case s.MaxTokens == 0:
		s.MaxTokens = DefaultMaxTokens
	case s.MaxTokens < MinMaxTokens:
		s.MaxTokens = MinMaxTokens
	case s.MaxTokens > MaxMaxTokens:
		s.MaxTokens = MaxMaxTokens
	}
	return s
}

func IsAvailableModel(model string) bool {
	for _, m := range AvailableModels {
		if m == model {
			return true
		}
	}
	return false
}
