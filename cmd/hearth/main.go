// Command hearth runs a small scripted demo of the orchestration core:
// a static catalog, two local agents, and a canned routing model. It reads
// requests from stdin and prints replies plus live activity events.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	hearth "github.com/hearthkit/hearth"
	"github.com/hearthkit/hearth/bus"
	redcache "github.com/hearthkit/hearth/cache/redis"
	"github.com/hearthkit/hearth/internal/config"
	"github.com/hearthkit/hearth/observer"
	"github.com/hearthkit/hearth/store/sqlite"
)

func main() {
	cfg := config.Load(os.Getenv("HEARTH_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var tracer hearth.Tracer
	if cfg.Observer.Enabled {
		inst, shutdown, err := observer.Init(context.Background())
		if err != nil {
			log.Fatalf("observer init failed: %v", err)
		}
		defer shutdown(context.Background())
		_ = inst
		tracer = observer.NewTracer()
		log.Println("OTEL observability enabled")
	}

	engineCfg := hearth.EngineConfig{
		Registry: hearth.NewStaticRegistry(
			hearth.AgentCard{
				Name:          "light-agent",
				Description:   "Controls lights and switches",
				Capabilities:  []string{"on", "off", "dim"},
				SkillExamples: []string{"turn on the living room lights"},
			},
			hearth.AgentCard{
				Name:          "music-agent",
				Description:   "Plays and controls music",
				SkillExamples: []string{"play soft music"},
			},
			hearth.AgentCard{
				Name:        "general-assistant",
				Description: "Answers anything the specialists cannot",
			},
		),
		Agents: demoAgents{},
		Chat:   scriptedRouter{},
		Tracer: tracer,
		Logger: logger,
		Router: hearth.RouterOptions{
			ConfidenceThreshold: cfg.Routing.ConfidenceThreshold,
			MaxAttempts:         cfg.Routing.MaxAttempts,
			FallbackAgentID:     cfg.Routing.FallbackAgent,
		},
		InvokeTimeout: time.Duration(cfg.Session.InvokeTimeoutSeconds) * time.Second,
	}

	if cfg.Database.Driver == "sqlite" {
		store := sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger))
		if err := store.Init(context.Background()); err != nil {
			log.Fatalf("sqlite init failed: %v", err)
		}
		defer store.Close()
		engineCfg.Tasks = store
		engineCfg.Sessions = store
		engineCfg.Threads = store
	}

	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		engineCfg.RoutingCache = redcache.New(client, redcache.Options{Logger: logger})
	}

	activity := hearth.NewLiveActivityChannel(0)
	defer activity.Close()
	engineCfg.Observers = []hearth.Observer{activity.AsObserver()}

	if cfg.NATS.URL != "" {
		events, err := bus.NewNATSEventBus(bus.NATSConfig{
			URL:        cfg.NATS.URL,
			ClientName: cfg.NATS.ClientName,
		}, logger)
		if err != nil {
			log.Fatalf("nats connect failed: %v", err)
		}
		defer events.Close()
		engineCfg.Observers = append(engineCfg.Observers, bus.NewObserverBridge(events, logger))
	}

	engine, err := hearth.NewEngine(engineCfg)
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}

	go func() {
		for ev := range activity.Subscribe() {
			fmt.Fprintf(os.Stderr, "  [%s] task=%s\n", ev.Kind, ev.TaskID)
		}
	}()

	sessionID := hearth.NewID()
	fmt.Println("hearth demo - type a request (ctrl-d to quit)")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		result := engine.ProcessRequest(context.Background(), hearth.Request{
			Text:      scanner.Text(),
			SessionID: sessionID,
		})
		fmt.Println(result.Text)
	}
}

// scriptedRouter is a stand-in routing model: keyword matching dressed up
// as an LLM so the demo runs without credentials.
type scriptedRouter struct{}

func (scriptedRouter) Chat(_ context.Context, req hearth.ChatRequest) (hearth.ChatResponse, error) {
	text := strings.ToLower(req.Messages[len(req.Messages)-1].Content)
	agent := "general-assistant"
	confidence := 0.75
	switch {
	case strings.Contains(text, "light"):
		agent = "light-agent"
		confidence = 0.95
	case strings.Contains(text, "music") || strings.Contains(text, "play"):
		agent = "music-agent"
		confidence = 0.9
	}
	content := fmt.Sprintf(`{"agent_id":%q,"confidence":%v,"reasoning":"keyword match"}`, agent, confidence)
	return hearth.ChatResponse{Content: content}, nil
}

// demoAgents provides the two local specialists plus the fallback.
type demoAgents struct{}

func (demoAgents) Agents() []hearth.AIAgent {
	return []hearth.AIAgent{
		echoAgent{name: "light-agent", reply: "Done. Lights adjusted."},
		echoAgent{name: "music-agent", reply: "Playing Mellow Mix."},
		echoAgent{name: "general-assistant", reply: "I can help with lights and music."},
	}
}

type echoAgent struct {
	name  string
	reply string
}

type echoThread struct{}

func (echoThread) Serialize() ([]byte, error) { return []byte("{}"), nil }

func (a echoAgent) Name() string { return a.name }

func (a echoAgent) Run(_ context.Context, _ hearth.AgentThread, _ string) (hearth.AgentRunResponse, error) {
	return hearth.AgentRunResponse{Content: a.reply}, nil
}

func (a echoAgent) NewThread() hearth.AgentThread { return echoThread{} }

func (a echoAgent) DeserializeThread([]byte) (hearth.AgentThread, error) { return echoThread{}, nil }
