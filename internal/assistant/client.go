package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"

	"github.com/marcandre22/ready-mix-coach/internal/logger"
	"github.com/marcandre22/ready-mix-coach/internal/types"
)

const (
	DefaultModel   = "gpt-4o"
	DefaultTimeout = 30 * time.Second
)

// fallbackModels are tried, in order, after the configured model when the
// endpoint doesn't know it.
var fallbackModels = []string{"gpt-4o", "gpt-4o-mini"}

// Config for the OpenAI adapter. Timeout bounds the whole Ask, retries
// included; MaxElapsed bounds the retries of one model.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	Timeout      time.Duration
	MaxElapsed   time.Duration
	Temperature  float32
	HistoryTurns int
	Mock         bool
}

// New returns the OpenAI-backed assistant, or the Mock when cfg.Mock or
// USE_MOCK_LLM=true.
func New(cfg Config, log *logger.Logger) (Assistant, error) {
	if cfg.Mock || os.Getenv("USE_MOCK_LLM") == "true" {
		return &Mock{}, nil
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("assistant: OPENAI_API_KEY not configured")
	}
	return NewOpenAI(cfg, log), nil
}

type OpenAI struct {
	client *openai.Client
	cfg    Config
	models []string
	log    *logger.Logger
}

func NewOpenAI(cfg Config, log *logger.Logger) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = os.Getenv("OPENAI_MODEL")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = cfg.Timeout
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 6
	}
	if log == nil {
		log = logger.New()
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(oc),
		cfg:    cfg,
		models: modelChain(cfg.Model),
		log:    log.Component("assistant"),
	}
}

func modelChain(preferred string) []string {
	chain := []string{preferred}
	for _, m := range fallbackModels {
		if m != preferred {
			chain = append(chain, m)
		}
	}
	return chain
}

// Models is the order models are tried in.
func (o *OpenAI) Models() []string { return append([]string(nil), o.models...) }

func (o *OpenAI) Ask(ctx context.Context, systemContext string, history types.ConversationHistory, question string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	msgs := o.messages(systemContext, history, question)
	var lastErr error
	for _, model := range o.models {
		answer, err := o.complete(ctx, model, msgs)
		if err == nil {
			return answer, nil
		}
		lastErr = err
		if !isModelMissing(err) {
			break
		}
		o.log.WithField("model", model).Warn("model not available, trying next")
	}

	timeout := errors.Is(lastErr, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
	o.log.WithError(lastErr).WithField("timeout", timeout).Error("assistant call failed")
	return "", &UnavailableError{Cause: lastErr, Timeout: timeout}
}

func (o *OpenAI) messages(systemContext string, history types.ConversationHistory, question string) []openai.ChatCompletionMessage {
	msgs := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: systemContext}}
	for _, m := range history.Last(o.cfg.HistoryTurns) {
		role := openai.ChatMessageRoleUser
		if m.Role == types.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: question})
}

func (o *OpenAI) complete(ctx context.Context, model string, msgs []openai.ChatCompletionMessage) (string, error) {
	var answer string
	operation := func() error {
		resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       model,
			Messages:    msgs,
			Temperature: o.cfg.Temperature,
		})
		if err != nil {
			if permanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return backoff.Permanent(errors.New("empty completion"))
		}
		answer = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = o.cfg.MaxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", fmt.Errorf("model %s: %w", model, err)
	}
	return answer, nil
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// permanent: client errors other than rate limiting are not retried.
func permanent(err error) bool {
	code := statusCode(err)
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}

func isModelMissing(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok && code == "model_not_found" {
			return true
		}
		msg := strings.ToLower(apiErr.Message)
		if strings.Contains(msg, "model not found") || strings.Contains(msg, "does not exist") {
			return true
		}
	}
	return statusCode(err) == http.StatusNotFound
}
