// Package aigen produces warm-up email content. A ring of provider
// API keys is walked in priority order, each attempt gated by the
// rate-limit ledger and a per-provider circuit breaker; when every key
// is denied or errors, a local template composer takes over so sending
// never stalls on upstream AI health.
package aigen

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"github.com/inboxforge/warmline/internal/config"
	"github.com/inboxforge/warmline/internal/pkg/httpretry"
	"github.com/inboxforge/warmline/internal/ratelimit"
)

// providerBaseURLs routes the shared OpenAI-compatible client to each
// provider's chat-completion endpoint
var providerBaseURLs = map[string]string{
	"openrouter": "https://openrouter.ai/api/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"openai":     "https://api.openai.com/v1",
}

// Content is one generated email plus its provenance
type Content struct {
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Prompt   string `json:"prompt"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
	KeyID    string `json:"key_id"`
}

// Request describes what to generate
type Request struct {
	IsReply         bool
	PreviousContent string
	SenderName      string
	Language        string
	Topic           string // optional override; otherwise drawn from the topic source
}

// chatClient is the slice of the OpenAI client the generator needs.
// Kept small so tests can stub completions without a network.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Generator walks the key ring and falls back to templates
type Generator struct {
	cfg     config.AIConfig
	ledger  ratelimit.Ledger
	keys    []config.ProviderKey
	clients map[string]chatClient
	breaker map[string]*gobreaker.CircuitBreaker
	topics  *TopicSource

	timeout time.Duration
	backoff time.Duration
	sleep   func(time.Duration)

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator wires the key ring. Keys whose provider has no known
// endpoint are dropped. The ring keeps discovery order (openrouter,
// groq, openai) but keys of the configured preferred provider move to
// the front.
func NewGenerator(cfg config.AIConfig, keys []config.ProviderKey, ledger ratelimit.Ledger, topics *TopicSource) *Generator {
	g := &Generator{
		cfg:     cfg,
		ledger:  ledger,
		clients: make(map[string]chatClient),
		breaker: make(map[string]*gobreaker.CircuitBreaker),
		topics:  topics,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		backoff: time.Second,
		sleep:   time.Sleep,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if g.timeout <= 0 {
		g.timeout = 30 * time.Second
	}

	for _, key := range orderKeys(keys, cfg.Provider) {
		baseURL, ok := providerBaseURLs[key.Provider]
		if !ok {
			log.Printf("[AIGen] unknown provider %s, dropping key %s", key.Provider, key.ID)
			continue
		}
		clientCfg := openai.DefaultConfig(key.Secret)
		clientCfg.BaseURL = baseURL
		clientCfg.HTTPClient = httpretry.NewClient(g.timeout, 2)
		g.clients[key.ID] = openai.NewClientWithConfig(clientCfg)
		g.keys = append(g.keys, key)

		if _, ok := g.breaker[key.Provider]; !ok {
			g.breaker[key.Provider] = newProviderBreaker(key.Provider)
		}
	}

	if len(g.keys) == 0 {
		log.Printf("[AIGen] no API keys configured, template fallback only")
	} else {
		log.Printf("[AIGen] %d API keys across %d providers", len(g.keys), len(g.breaker))
	}
	return g
}

// newProviderBreaker trips after sustained failures so a dead provider
// stops eating the 30s timeout on every attempt
func newProviderBreaker(provider string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[AIGen] circuit breaker %s: %s -> %s", name, from, to)
		},
	})
}

// orderKeys moves the preferred provider's keys to the front while
// keeping relative order within each provider
func orderKeys(keys []config.ProviderKey, preferred string) []config.ProviderKey {
	if preferred == "" {
		return keys
	}
	ordered := make([]config.ProviderKey, 0, len(keys))
	for _, k := range keys {
		if k.Provider == preferred {
			ordered = append(ordered, k)
		}
	}
	for _, k := range keys {
		if k.Provider != preferred {
			ordered = append(ordered, k)
		}
	}
	return ordered
}

// Generate produces email content, trying each usable key once before
// composing locally. It never returns an error: the template fallback
// is the floor.
func (g *Generator) Generate(ctx context.Context, req Request) *Content {
	language := normalizeLanguage(req.Language)
	prompt := g.buildPrompt(req, language)

	if len(g.keys) == 0 {
		log.Printf("[AIGen] no API client available, using local fallback")
		return g.fallback(req, language)
	}

	tried := make(map[string]bool)
	for cursor := 0; cursor < len(g.keys); cursor++ {
		key := g.keys[cursor]
		if tried[key.ID] {
			continue
		}
		tried[key.ID] = true

		if ok, reason := g.ledger.CanUse(ctx, key.ID); !ok {
			log.Printf("[AIGen] skipping %s: %s", key.ID, reason)
			continue
		}

		log.Printf("[AIGen] generating with %s (%s) - attempt %d/%d", key.ID, g.cfg.Model, len(tried), len(g.keys))
		raw, err := g.complete(ctx, key, systemPrompt(language), prompt)
		if err != nil {
			log.Printf("[AIGen] generation failed with %s: %v", key.ID, err)
			g.sleep(g.backoff)
			continue
		}

		g.ledger.Record(ctx, key.ID)

		subject, body := parseContent(raw, language)
		log.Printf("[AIGen] email generated: %s", truncate(subject, 50))
		return &Content{
			Subject:  subject,
			Body:     body,
			Prompt:   prompt,
			Model:    g.cfg.Model,
			Provider: key.Provider,
			KeyID:    key.ID,
		}
	}

	log.Printf("[AIGen] all API keys exhausted, using local fallback")
	return g.fallback(req, language)
}

// GenerateReply quotes the original message and generates a response
// to it
func (g *Generator) GenerateReply(ctx context.Context, originalSubject, originalBody, senderName, language string) *Content {
	prefix := "Subject:"
	if normalizeLanguage(language) == langIT {
		prefix = "Oggetto:"
	}
	previous := fmt.Sprintf("%s %s\n\n%s", prefix, originalSubject, originalBody)
	return g.Generate(ctx, Request{
		IsReply:         true,
		PreviousContent: previous,
		SenderName:      senderName,
		Language:        language,
	})
}

func (g *Generator) buildPrompt(req Request, language string) string {
	if req.IsReply && req.PreviousContent != "" {
		return replyPrompt(req.PreviousContent, g.pick(tones(language)), req.SenderName, language)
	}

	topic := req.Topic
	if topic == "" {
		topic = g.topics.Random(language)
	}
	return initialPrompt(topic, g.pick(tones(language)), g.pick(lengthBuckets), req.SenderName, language)
}

// complete runs one chat-completion call behind the provider's breaker
func (g *Generator) complete(ctx context.Context, key config.ProviderKey, system, user string) (string, error) {
	client, ok := g.clients[key.ID]
	if !ok {
		return "", fmt.Errorf("no client for key %s", key.ID)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.breaker[key.Provider].Execute(func() (interface{}, error) {
		resp, err := client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model: g.cfg.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
			Temperature: 0.8,
			MaxTokens:   500,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return nil, fmt.Errorf("empty response from %s", key.Provider)
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (g *Generator) fallback(req Request, language string) *Content {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fallbackEmail(g.rng, req.IsReply, req.SenderName, language)
}

func (g *Generator) pick(options []string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return pick(g.rng, options)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
