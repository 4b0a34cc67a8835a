package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/facecloak/internal/constants"
)

//go:embed references.yaml
var referencesYAML []byte

const (
	BackendDlib   = "dlib"
	BackendRemote = "remote"

	// DefaultObfuscationFilter is the CSS filter applied to matched images.
	DefaultObfuscationFilter = "blur(5px) sepia(50%) hue-rotate(320deg)"
)

type Config struct {
	Assets     AssetsConfig
	Recognizer RecognizerConfig
	Embedding  EmbeddingConfig
	Proxy      ProxyConfig
	Observer   ObserverConfig
	Web        WebConfig
	Log        LogConfig
}

// AssetsConfig describes the bundled-resource namespace. Relative reference
// and model locations resolve against Dir.
type AssetsConfig struct {
	Dir            string
	ReferencesFile string // optional YAML file replacing the embedded references
	ModelsPath     string // defaults to "models"
}

type RecognizerConfig struct {
	Backend        string  // dlib or remote
	MatchThreshold float64 // 0 uses the backend default: Euclidean 0.6 for dlib, cosine 0.5 for remote
	MaxImageSize   int     // longest side after normalisation, defaults to 1024
}

type EmbeddingConfig struct {
	URL string // face embedding server for the remote backend
}

type ProxyConfig struct {
	URL string // optional remote fetch proxy; empty means in-process
}

type ObserverConfig struct {
	Filter string // CSS filter applied to matched images
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // CORS allow-list; localhost is always allowed
}

type LogConfig struct {
	Level  string
	Format string // console or json
}

// Reference is a labeled exemplar image.
type Reference struct {
	URL   string `yaml:"url"`
	Label string `yaml:"label"`
}

type referencesFile struct {
	References []Reference `yaml:"references"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated environment variable.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	return &Config{
		Assets: AssetsConfig{
			Dir:            envString("FACECLOAK_ASSETS_DIR", "assets"),
			ReferencesFile: os.Getenv("FACECLOAK_REFERENCES_FILE"),
			ModelsPath:     envString("FACECLOAK_MODELS_PATH", "models"),
		},
		Recognizer: RecognizerConfig{
			Backend:        strings.ToLower(envString("FACECLOAK_BACKEND", BackendDlib)),
			MatchThreshold: envFloat("FACECLOAK_MATCH_THRESHOLD", 0),
			MaxImageSize:   envInt("FACECLOAK_MAX_IMAGE_SIZE", constants.DefaultMaxImageSize),
		},
		Embedding: EmbeddingConfig{
			URL: os.Getenv("EMBEDDING_URL"),
		},
		Proxy: ProxyConfig{
			URL: os.Getenv("FACECLOAK_PROXY_URL"),
		},
		Observer: ObserverConfig{
			Filter: envString("FACECLOAK_FILTER", DefaultObfuscationFilter),
		},
		Web: WebConfig{
			Host: envString("WEB_HOST", "0.0.0.0"),
			Port: envInt("WEB_PORT", 8080),

			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "console"),
		},
	}
}

// Validate reports configuration errors that would make the pipeline unusable.
func (c *Config) Validate() error {
	switch c.Recognizer.Backend {
	case BackendDlib:
	case BackendRemote:
		if c.Embedding.URL == "" {
			return errors.New("EMBEDDING_URL is required for the remote backend")
		}
	default:
		return fmt.Errorf("unknown recognizer backend %q", c.Recognizer.Backend)
	}
	if c.Recognizer.MatchThreshold < 0 {
		return fmt.Errorf("match threshold must not be negative, got %f", c.Recognizer.MatchThreshold)
	}
	return nil
}

// ResolveResource maps a bundled-resource identifier to a URL the fetch proxy
// understands. Absolute URLs pass through; anything else is treated as a path
// under the assets directory and turned into a file URL.
func (c *Config) ResolveResource(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return ref
	}
	p := ref
	if !filepath.IsAbs(p) {
		p = filepath.Join(c.Assets.Dir, p)
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String()
}

// ModelsDir returns the filesystem location of the model artifacts.
func (c *Config) ModelsDir() string {
	if filepath.IsAbs(c.Assets.ModelsPath) {
		return c.Assets.ModelsPath
	}
	return filepath.Join(c.Assets.Dir, c.Assets.ModelsPath)
}

// LoadReferences returns the reference exemplars with URLs resolved against
// the bundled-resource namespace.
func (c *Config) LoadReferences() ([]Reference, error) {
	data := referencesYAML
	if c.Assets.ReferencesFile != "" {
		var err error
		data, err = os.ReadFile(c.Assets.ReferencesFile)
		if err != nil {
			return nil, fmt.Errorf("reading references file: %w", err)
		}
	}
	refs, err := parseReferences(data)
	if err != nil {
		return nil, err
	}
	for i := range refs {
		refs[i].URL = c.ResolveResource(refs[i].URL)
	}
	return refs, nil
}

func parseReferences(data []byte) ([]Reference, error) {
	var f referencesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing references: %w", err)
	}
	if len(f.References) == 0 {
		return nil, errors.New("no reference exemplars configured")
	}
	for i, r := range f.References {
		if strings.TrimSpace(r.URL) == "" || strings.TrimSpace(r.Label) == "" {
			return nil, fmt.Errorf("reference %d: url and label are required", i)
		}
	}
	return f.References, nil
}
