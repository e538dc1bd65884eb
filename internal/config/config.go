package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Dialogue holds the thresholds of the tracker and the policy.
type Dialogue struct {
	AcceptProb               float64
	AcceptProbLudait         float64
	AcceptProbBeingRequested float64
	AcceptProbBeingConfirmed float64
	AcceptProbBeingSelected  float64
	AcceptProbNoninformed    float64
	ConfirmProb              float64
	SelectProb               float64
	MinChangeProb            float64
	MaxTurns                 int
	SilenceTimeout           float64
	ContextHelp              bool
}

type Config struct {
	Server struct {
		GRPCAddr        string
		HTTPAddr        string
		ShutdownTimeout time.Duration
	}
	Log struct {
		Level  string
		Format string
	}
	Dialogue Dialogue
	Ontology struct {
		// Path is empty for the built-in ontology.
		Path string
	}
	Directions struct {
		Provider    string
		APIKey      string
		BaseURL     string
		FixturePath string
		Timeout     time.Duration
	}
	Weather struct {
		Provider string
		APIKey   string
		BaseURL  string
		Timeout  time.Duration
	}
	Session struct {
		Dir string
	}
	Journal struct {
		// Path is empty when journaling is disabled.
		Path string
	}
}

// Directions providers.
const (
	ProviderGoogle  = "google"
	ProviderFixture = "fixture"
)

// DefaultDialogue returns the stock thresholds.
func DefaultDialogue() Dialogue {
	return Dialogue{
		AcceptProb:               0.8,
		AcceptProbLudait:         0.5,
		AcceptProbBeingRequested: 0.8,
		AcceptProbBeingConfirmed: 0.8,
		AcceptProbBeingSelected:  0.8,
		AcceptProbNoninformed:    0.8,
		ConfirmProb:              0.4,
		SelectProb:               0.4,
		MinChangeProb:            0.1,
		MaxTurns:                 100,
		SilenceTimeout:           3,
		ContextHelp:              true,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_addr", ":9090")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	d := DefaultDialogue()
	v.SetDefault("dialogue.accept_prob", d.AcceptProb)
	v.SetDefault("dialogue.accept_prob_ludait", d.AcceptProbLudait)
	v.SetDefault("dialogue.accept_prob_being_requested", d.AcceptProbBeingRequested)
	v.SetDefault("dialogue.accept_prob_being_confirmed", d.AcceptProbBeingConfirmed)
	v.SetDefault("dialogue.accept_prob_being_selected", d.AcceptProbBeingSelected)
	v.SetDefault("dialogue.accept_prob_noninformed", d.AcceptProbNoninformed)
	v.SetDefault("dialogue.confirm_prob", d.ConfirmProb)
	v.SetDefault("dialogue.select_prob", d.SelectProb)
	v.SetDefault("dialogue.min_change_prob", d.MinChangeProb)
	v.SetDefault("dialogue.max_turns", d.MaxTurns)
	v.SetDefault("dialogue.silence_timeout", d.SilenceTimeout)
	v.SetDefault("dialogue.context_help", d.ContextHelp)

	v.SetDefault("ontology.path", "")

	v.SetDefault("directions.provider", ProviderGoogle)
	v.SetDefault("directions.timeout", "10s")

	v.SetDefault("weather.provider", "openweathermap")
	v.SetDefault("weather.timeout", "10s")

	v.SetDefault("session.dir", "sessions")
	v.SetDefault("journal.path", "")
}

// Load reads defaults, then the optional YAML file at path, then PTIDM_*
// environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PTIDM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// Provider keys also come from their conventional names.
	_ = v.BindEnv("directions.api_key", "PTIDM_DIRECTIONS_API_KEY", "GOOGLE_MAPS_API_KEY")
	_ = v.BindEnv("weather.api_key", "PTIDM_WEATHER_API_KEY", "OPENWEATHERMAP_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var c Config
	c.Server.GRPCAddr = v.GetString("server.grpc_addr")
	c.Server.HTTPAddr = v.GetString("server.http_addr")
	c.Server.ShutdownTimeout = v.GetDuration("server.shutdown_timeout")

	c.Log.Level = v.GetString("log.level")
	c.Log.Format = v.GetString("log.format")

	c.Dialogue = Dialogue{
		AcceptProb:               v.GetFloat64("dialogue.accept_prob"),
		AcceptProbLudait:         v.GetFloat64("dialogue.accept_prob_ludait"),
		AcceptProbBeingRequested: v.GetFloat64("dialogue.accept_prob_being_requested"),
		AcceptProbBeingConfirmed: v.GetFloat64("dialogue.accept_prob_being_confirmed"),
		AcceptProbBeingSelected:  v.GetFloat64("dialogue.accept_prob_being_selected"),
		AcceptProbNoninformed:    v.GetFloat64("dialogue.accept_prob_noninformed"),
		ConfirmProb:              v.GetFloat64("dialogue.confirm_prob"),
		SelectProb:               v.GetFloat64("dialogue.select_prob"),
		MinChangeProb:            v.GetFloat64("dialogue.min_change_prob"),
		MaxTurns:                 v.GetInt("dialogue.max_turns"),
		SilenceTimeout:           v.GetFloat64("dialogue.silence_timeout"),
		ContextHelp:              v.GetBool("dialogue.context_help"),
	}

	c.Ontology.Path = v.GetString("ontology.path")

	c.Directions.Provider = v.GetString("directions.provider")
	c.Directions.APIKey = v.GetString("directions.api_key")
	c.Directions.BaseURL = v.GetString("directions.base_url")
	c.Directions.FixturePath = v.GetString("directions.fixture_path")
	c.Directions.Timeout = v.GetDuration("directions.timeout")

	c.Weather.Provider = v.GetString("weather.provider")
	c.Weather.APIKey = v.GetString("weather.api_key")
	c.Weather.BaseURL = v.GetString("weather.base_url")
	c.Weather.Timeout = v.GetDuration("weather.timeout")

	c.Session.Dir = v.GetString("session.dir")
	c.Journal.Path = v.GetString("journal.path")

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects configurations a dialogue cannot start with.
func (c Config) Validate() error {
	switch c.Directions.Provider {
	case ProviderGoogle:
	case ProviderFixture:
		if c.Directions.FixturePath == "" {
			return fmt.Errorf("config: directions.fixture_path is required for the fixture provider")
		}
	default:
		return fmt.Errorf("config: unknown directions provider %q", c.Directions.Provider)
	}
	if c.Weather.Provider != "openweathermap" {
		return fmt.Errorf("config: unknown weather provider %q", c.Weather.Provider)
	}
	d := c.Dialogue
	if d.ConfirmProb > d.AcceptProb {
		return fmt.Errorf("config: dialogue.confirm_prob %.2f exceeds accept_prob %.2f", d.ConfirmProb, d.AcceptProb)
	}
	if d.MaxTurns <= 0 {
		return fmt.Errorf("config: dialogue.max_turns must be positive")
	}
	return nil
}

// InferDefaultStops reports whether the directions provider can resolve a
// city's main stop, which lets the policy fill a city-only endpoint.
func (c Config) InferDefaultStops() bool { return c.Directions.Provider == ProviderGoogle }
