package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/flow/pkg/flow/internalerr"
)

// Config holds every tunable of the refinement pipeline.
type Config struct {
	// Flagging
	MinEntropy      float64 `yaml:"min_entropy" validate:"gte=0"`
	MaxOriginalRank int     `yaml:"max_original_rank" validate:"gte=1"`

	// Acceptance
	MinPLLGain     float64 `yaml:"min_pll_gain"`
	MinSBERTCosine float64 `yaml:"min_sbert_cosine" validate:"gte=0,lte=1"`
	UseNLICheck    bool    `yaml:"use_nli_check"`

	// Scoring and generation
	PLLWindowSize  int    `yaml:"pll_window_size" validate:"gte=1"`
	PLLMethod      string `yaml:"pll_method" validate:"oneof=word-l2r standard"`
	TopKCandidates int    `yaml:"top_k_candidates" validate:"gte=1"`
	FragmentPrefix string `yaml:"fragment_prefix"`

	MaxEditsPerSentence int      `yaml:"max_edits_per_sentence" validate:"gte=0"`
	Workers             int      `yaml:"workers" validate:"gte=1"`
	KeepWords           []string `yaml:"keep_words"`

	Models Models `yaml:"models"`
	Cache  Cache  `yaml:"cache"`
	Store  Store  `yaml:"store"`
}

// Models locates the model services.
type Models struct {
	BaseURL     string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout     time.Duration `yaml:"timeout" validate:"gte=0"`
	GeminiModel string        `yaml:"gemini_model"`
}

// Cache sizes the model caches. An empty RedisAddr disables the
// embedding cache.
type Cache struct {
	InferenceSize int           `yaml:"inference_size" validate:"gte=0"`
	RedisAddr     string        `yaml:"redis_addr"`
	EmbeddingTTL  time.Duration `yaml:"embedding_ttl" validate:"gte=0"`
}

// Store locates the run log. An empty Path keeps runs in memory.
type Store struct {
	Path string `yaml:"path"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		MinEntropy:          4.0,
		MaxOriginalRank:     50,
		MinPLLGain:          2.0,
		MinSBERTCosine:      0.97,
		UseNLICheck:         false,
		PLLWindowSize:       3,
		PLLMethod:           "word-l2r",
		TopKCandidates:      10,
		FragmentPrefix:      "##",
		MaxEditsPerSentence: 2,
		Workers:             4,
		Models: Models{
			Timeout:     30 * time.Second,
			GeminiModel: "gemini-1.5-flash",
		},
		Cache: Cache{
			InferenceSize: 4096,
			EmbeddingTTL:  24 * time.Hour,
		},
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every field against its declared range. Out-of-range
// values are reported, never clamped.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", internalerr.ErrInvalidConfig, err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = describe(fe)
	}
	return fmt.Errorf("%w: %s", internalerr.ErrInvalidConfig, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("%s must be >= %s, got %v", field, fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s must be <= %s, got %v", field, fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "url":
		return fmt.Sprintf("%s must be a URL, got %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// Load reads a YAML file over the defaults and validates the result.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", internalerr.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// KeepList represents a protected-word file.
type KeepList struct {
	Terms []string `yaml:"terms"`
}

// LoadKeepList loads protected words from a YAML file.
func LoadKeepList(path string) (*KeepList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var kl KeepList
	if err := yaml.Unmarshal(data, &kl); err != nil {
		return nil, err
	}

	return &kl, nil
}
