// memkitd serves the memory lifecycle engine over HTTP.
//
// Usage:
//
//	memkitd -config memkit.yaml
//
// Configuration layers defaults, the YAML file, and MEMKIT_-prefixed
// environment variables (MEMKIT_STORE__BACKEND=qdrant and so on).
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/becomeliminal/memkit/config"
	"github.com/becomeliminal/memkit/memory"
	"github.com/becomeliminal/memkit/memory/embedder/cached"
	"github.com/becomeliminal/memkit/memory/embedder/mock"
	"github.com/becomeliminal/memkit/memory/embedder/openai"
	"github.com/becomeliminal/memkit/memory/eventlog"
	"github.com/becomeliminal/memkit/memory/llm/anthropic"
	"github.com/becomeliminal/memkit/memory/llm/openrouter"
	chromemstore "github.com/becomeliminal/memkit/memory/store/chromem"
	qdrantstore "github.com/becomeliminal/memkit/memory/store/qdrant"
	"github.com/becomeliminal/memkit/server"
)

func main() {
	configPath := flag.String("config", "memkit.yaml", "path to the YAML config file")
	flag.Parse()

	// .env is a developer convenience; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[MEMKITD] Config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := newRegistry()

	embedder, err := reg.NewEmbedder(cfg.Embedder.Provider, memory.EmbedderOptions{
		APIKey:        cfg.Embedder.APIKey,
		BaseURL:       cfg.Embedder.BaseURL,
		Model:         cfg.Embedder.Model,
		Dimensions:    cfg.Embedder.Dimensions,
		ModelPath:     cfg.Embedder.ModelPath,
		TokenizerPath: cfg.Embedder.TokenizerPath,
	})
	if err != nil {
		log.Fatalf("[MEMKITD] Embedder: %v", err)
	}
	if cfg.Embedder.CacheSize > 0 {
		c, err := cached.New(embedder, cfg.Embedder.CacheSize)
		if err != nil {
			log.Fatalf("[MEMKITD] Embedding cache: %v", err)
		}
		defer c.Close()
		embedder = c
	}

	store, err := reg.NewStore(ctx, cfg.Store.Backend, embedder, memory.StoreOptions{
		URL:        cfg.Store.URL,
		APIKey:     cfg.Store.APIKey,
		Collection: cfg.Store.Collection,
	})
	if err != nil {
		log.Fatalf("[MEMKITD] Store: %v", err)
	}

	var collab memory.Collaborators
	if cfg.LLM.Provider != "" {
		collab, err = reg.NewLLM(cfg.LLM.Provider, memory.LLMOptions{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
		})
		if err != nil {
			log.Fatalf("[MEMKITD] LLM: %v", err)
		}
	}

	broadcaster := eventlog.NewBroadcaster()
	events := []memory.EventLogger{broadcaster}
	if cfg.EventLog.Path != "" {
		fileLog, err := eventlog.NewFile(cfg.EventLog.Path)
		if err != nil {
			log.Fatalf("[MEMKITD] Event log: %v", err)
		}
		defer fileLog.Close()
		events = append(events, fileLog)
	}

	mgr := memory.NewManager(store, &memory.Config{
		Threshold: cfg.Memory.SimilarityThreshold,
		Weights: memory.Weights{
			Alpha:     cfg.Memory.Alpha,
			Beta:      cfg.Memory.Beta,
			Gamma:     cfg.Memory.Gamma,
			DecayRate: cfg.Memory.DecayRate,
		},
		Summarizer:          collab.Summarizer,
		Merger:              collab.Merger,
		ContextBuilder:      collab.ContextBuilder,
		Events:              eventlog.NewMulti(events...),
		CollaboratorTimeout: cfg.Memory.CollaboratorTimeout,
		SerializeWrites:     cfg.Memory.SerializeWrites,
	})

	srv, err := server.New(server.Config{
		Manager: mgr,
		Events:  broadcaster,
	})
	if err != nil {
		log.Fatalf("[MEMKITD] Server: %v", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Run(cfg.Server.Addr) }()

	select {
	case err := <-errc:
		if err != nil {
			log.Fatalf("[MEMKITD] Serve: %v", err)
		}
	case <-ctx.Done():
		log.Println("[MEMKITD] Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[MEMKITD] Shutdown: %v", err)
		}
	}
}

// newRegistry wires every compiled-in backend. The onnx embedder joins
// only under its build tag.
func newRegistry() *memory.Registry {
	reg := memory.NewRegistry()

	reg.RegisterStore("chromem", func(_ context.Context, embedder memory.Embedder, opts memory.StoreOptions) (memory.Store, error) {
		return chromemstore.New(embedder, chromemstore.Config{Collection: opts.Collection})
	})
	reg.RegisterStore("qdrant", func(ctx context.Context, embedder memory.Embedder, opts memory.StoreOptions) (memory.Store, error) {
		host, port, err := splitHostPort(opts.URL)
		if err != nil {
			return nil, err
		}
		return qdrantstore.New(ctx, embedder, qdrantstore.Config{
			Host:       host,
			Port:       port,
			APIKey:     opts.APIKey,
			UseTLS:     opts.APIKey != "",
			Collection: opts.Collection,
		})
	})

	reg.RegisterEmbedder("mock", func(opts memory.EmbedderOptions) (memory.Embedder, error) {
		if opts.Dimensions > 0 {
			return mock.NewWithDimensions(opts.Dimensions), nil
		}
		return mock.New(), nil
	})
	reg.RegisterEmbedder("openai", func(opts memory.EmbedderOptions) (memory.Embedder, error) {
		return openai.New(openai.Config{
			APIKey:     opts.APIKey,
			BaseURL:    opts.BaseURL,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
		})
	})
	registerONNX(reg)

	reg.RegisterLLM("openrouter", func(opts memory.LLMOptions) (memory.Collaborators, error) {
		c, err := openrouter.New(openrouter.Config{
			APIKey:  opts.APIKey,
			BaseURL: opts.BaseURL,
			Model:   opts.Model,
		})
		if err != nil {
			return memory.Collaborators{}, err
		}
		return memory.Collaborators{Summarizer: c, Merger: c, ContextBuilder: c}, nil
	})
	reg.RegisterLLM("anthropic", func(opts memory.LLMOptions) (memory.Collaborators, error) {
		c, err := anthropic.New(anthropic.Config{
			APIKey: opts.APIKey,
			Model:  opts.Model,
		})
		if err != nil {
			return memory.Collaborators{}, err
		}
		return memory.Collaborators{Summarizer: c, Merger: c, ContextBuilder: c}, nil
	})

	return reg
}

func splitHostPort(url string) (string, int, error) {
	if url == "" {
		return "localhost", 6334, nil
	}
	host, portStr, err := net.SplitHostPort(url)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
