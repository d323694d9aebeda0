package zerolog_config

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.elastic.co/ecszerolog"
)

var appPrefix string
var setAppPrefixOnce *sync.Once = &sync.Once{}
var startupLoggerOnce *sync.Once = &sync.Once{}

// ElasticsearchWriter sends ECS log lines to an Elasticsearch index
type ElasticsearchWriter struct {
	URL    string
	Client *http.Client
}

func (ew ElasticsearchWriter) Write(p []byte) (n int, err error) {
	client := ew.Client
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}

	resp, err := client.Post(ew.URL+"/_doc", "application/json", bytes.NewReader(p))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("elasticsearch returned %d", resp.StatusCode)
	}

	return len(p), nil
}

// Options controls where and how the global logger writes
type Options struct {
	Level string
	// ElasticsearchURL enables shipping ECS documents to Index when set
	ElasticsearchURL string
	Index            string
	// JSON selects plain JSON on stdout instead of the console writer
	JSON bool
	Out  io.Writer
}

// ParseLevel maps a level name to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// NewLogger builds a logger for opts without touching the global one
func NewLogger(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	var local io.Writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	if opts.JSON {
		local = out
	}

	var w io.Writer = local
	if opts.ElasticsearchURL != "" {
		index := opts.Index
		if index == "" {
			index = "logs"
		}
		ecsLogger := ecszerolog.New(&ElasticsearchWriter{
			URL: strings.TrimRight(opts.ElasticsearchURL, "/") + "/" + index,
		})
		w = zerolog.MultiLevelWriter(ecsLogger, local)
	}

	return zerolog.New(w).Level(ParseLevel(opts.Level)).With().
		Str("app", appPrefix).
		Timestamp().
		Logger()
}

// SetAppPrefix sets the app prefix
func SetAppPrefix(name string) {
	setAppPrefixOnce.Do(func() {
		appPrefix = name
	})
}

// Startup installs the global logger once.
// Run SetAppPrefix before Startup.
func Startup(opts Options) error {
	if appPrefix == "" {
		return fmt.Errorf("app prefix is required")
	}
	startupLoggerOnce.Do(func() {
		zerolog.SetGlobalLevel(ParseLevel(opts.Level))
		log.Logger = NewLogger(opts)
	})
	return nil
}
