package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/lucasnobrega7/lobe-chat/internal/config"
	"github.com/lucasnobrega7/lobe-chat/internal/models"
)

const (
	xaiBaseURL  = "https://api.x.ai/v1"
	groqBaseURL = "https://api.groq.com/openai/v1"

	claudeMaxTokens = 3000
)

// StreamResult is the outcome of a fully drained model stream.
type StreamResult struct {
	Content string
	Usage   models.TokenUsage
}

// Service invokes the provider behind a resolved model option. Chat models
// are built lazily and reused per option id.
type Service struct {
	cfg      *config.Config
	registry *Registry
	tools    []tool.BaseTool

	mu      sync.Mutex
	clients map[string]model.ToolCallingChatModel
	agents  map[string]*react.Agent
}

// NewService builds the invocation service. Search and attachment tools are
// attached when the configuration enables them.
func NewService(cfg *config.Config, registry *Registry) *Service {
	var tools []tool.BaseTool
	if cfg.BasicConfig.EnableWebSearch {
		if ws := InitWebSearch(); ws != nil {
			tools = append(tools, ws)
		}
	}
	if ar := initAttachmentReader(); ar != nil {
		tools = append(tools, ar)
	}
	return &Service{
		cfg:      cfg,
		registry: registry,
		tools:    tools,
		clients:  make(map[string]model.ToolCallingChatModel),
		agents:   make(map[string]*react.Agent),
	}
}

// Registry exposes the model router the service resolves against.
func (s *Service) Registry() *Registry {
	return s.registry
}

// StreamChat invokes the model with the full message list and drains the
// token stream to completion, invoking onChunk for each text increment.
// A failing callback (client gone) stops further callbacks but never aborts
// the drain: the accumulated reply must survive a disconnect so it can be
// persisted.
func (s *Service) StreamChat(ctx context.Context, opt *Option, messages []*models.Message, onChunk func(string) error) (*StreamResult, error) {
	if opt == nil {
		return nil, errors.New("model option required")
	}
	if len(messages) == 0 {
		return nil, errors.New("messages are required")
	}

	streamReader, err := s.stream(ctx, opt, convertMessages(messages))
	if err != nil {
		return nil, fmt.Errorf("generate model stream: %w", err)
	}
	defer streamReader.Close()

	var (
		content      strings.Builder
		usage        models.TokenUsage
		callbackDead bool
	)
	for {
		chunk, err := streamReader.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("receive model stream: %w", err)
		}
		content.WriteString(chunk.Content)
		if chunk.ResponseMeta != nil && chunk.ResponseMeta.Usage != nil {
			usage = models.TokenUsage{
				PromptTokens:     chunk.ResponseMeta.Usage.PromptTokens,
				CompletionTokens: chunk.ResponseMeta.Usage.CompletionTokens,
				TotalTokens:      chunk.ResponseMeta.Usage.TotalTokens,
			}
		}
		if onChunk != nil && !callbackDead && chunk.Content != "" {
			if err := onChunk(chunk.Content); err != nil {
				callbackDead = true
			}
		}
	}
	return &StreamResult{Content: content.String(), Usage: usage}, nil
}

func (s *Service) stream(ctx context.Context, opt *Option, messages []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	if len(s.tools) > 0 {
		agent, err := s.agentFor(ctx, opt)
		if err != nil {
			return nil, err
		}
		return agent.Stream(ctx, messages)
	}
	chatModel, err := s.clientFor(ctx, opt)
	if err != nil {
		return nil, err
	}
	return chatModel.Stream(ctx, messages)
}

func (s *Service) clientFor(ctx context.Context, opt *Option) (model.ToolCallingChatModel, error) {
	s.mu.Lock()
	if client, ok := s.clients[opt.ID]; ok {
		s.mu.Unlock()
		return client, nil
	}
	s.mu.Unlock()

	client, err := s.buildChatModel(ctx, opt)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.clients[opt.ID] = client
	s.mu.Unlock()
	return client, nil
}

func (s *Service) agentFor(ctx context.Context, opt *Option) (*react.Agent, error) {
	s.mu.Lock()
	if agent, ok := s.agents[opt.ID]; ok {
		s.mu.Unlock()
		return agent, nil
	}
	s.mu.Unlock()

	chatModel, err := s.clientFor(ctx, opt)
	if err != nil {
		return nil, err
	}
	agent, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: chatModel,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: s.tools,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init react agent: %w", err)
	}

	s.mu.Lock()
	s.agents[opt.ID] = agent
	s.mu.Unlock()
	return agent, nil
}

func (s *Service) buildChatModel(ctx context.Context, opt *Option) (model.ToolCallingChatModel, error) {
	provCfg := s.cfg.Providers[opt.Provider]
	if provCfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s api key not configured", opt.Provider)
	}

	switch opt.Provider {
	case "openai", "xai", "groq":
		baseURL := provCfg.BaseURL
		if baseURL == "" {
			switch opt.Provider {
			case "xai":
				baseURL = xaiBaseURL
			case "groq":
				baseURL = groqBaseURL
			}
		}
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: baseURL,
			Model:   opt.Model,
			APIKey:  provCfg.APIKey,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     opt.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: claudeMaxTokens,
		})
	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  opt.Model,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", opt.Provider)
	}
}

func convertMessages(history []*models.Message) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		if msg == nil {
			continue
		}
		var role schema.RoleType
		switch msg.Role {
		case models.RoleUser:
			role = schema.User
		case models.RoleAssistant:
			role = schema.Assistant
		case models.RoleSystem:
			role = schema.System
		default:
			role = schema.User
		}
		messages = append(messages, &schema.Message{
			Role:    role,
			Content: msg.Content,
		})
	}
	return messages
}
