// Package assistant — клиент OpenAI-совместимого чата (Ollama) для вопросов в техподдержку.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Spok95/attendance-web/internal/apperr"
)

const systemPrompt = "Ты — ИИ Ассистент техподдержки системы учёта посещаемости колледжа. " +
	"Отвечай вежливо, профессионально, кратко и по делу. " +
	"Помогай пользователям (администраторам, кураторам, старостам) с вопросами о работе сайта, " +
	"студентах, группах, пропусках, подтверждениях, статистике и настройках. " +
	"Если не знаешь — честно говори 'не могу ответить, обратитесь к администратору'."

const (
	temperature = 0.6
	maxTokens   = 1200
	serviceName = "ИИ Ассистент"
)

var (
	ErrDisabled      = errors.New("assistant disabled")
	ErrEmptyQuestion = errors.New("empty question")
)

type Config struct {
	Enabled bool
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

func (c *Client) Enabled() bool { return c != nil && c.cfg.Enabled }
func (c *Client) Model() string { return c.cfg.Model }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Ask отправляет вопрос и возвращает ответ модели. Пустой вопрос — ValidationError,
// выключенный ассистент и любые сбои сервиса — ExternalServiceError.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", apperr.Wrap(apperr.KindValidation, "Напишите ваш вопрос в техподдержку", ErrEmptyQuestion)
	}
	if !c.Enabled() {
		return "", apperr.Wrap(apperr.KindExternalService, "ИИ Ассистент временно недоступен", ErrDisabled)
	}
	answer, err := c.complete(ctx, question)
	if err != nil {
		return "", apperr.External(serviceName, err)
	}
	return answer, nil
}

func (c *Client) complete(ctx context.Context, question string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: question},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("chat completions: http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("chat completions: no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
