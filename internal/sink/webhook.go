package sink

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// 签名请求头
const (
	HeaderAPIKey    = "X-Api-Key"
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"
)

// WebhookConfig HTTP 回调目标
type WebhookConfig struct {
	URL     string
	APIKey  string
	Secret  string // 为空时不签名
	Retries int
	Backoff []time.Duration
	Client  *http.Client
}

// WebhookSink 以 JSON POST 投递信封，HMAC-SHA256 签名，5xx 与网络错误按退避重试
type WebhookSink struct {
	endpoint string
	path     string
	apiKey   string
	secret   string
	retries  int
	backoff  []time.Duration
	client   *http.Client
	now      func() time.Time
}

// NewWebhookSink 创建回调 sink；URL 非法时返回错误
func NewWebhookSink(cfg WebhookConfig) (*WebhookSink, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("webhook url: unsupported scheme %q", u.Scheme)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	backoff := cfg.Backoff
	if len(backoff) == 0 {
		backoff = []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, time.Second}
	}
	return &WebhookSink{
		endpoint: cfg.URL,
		path:     u.Path,
		apiKey:   cfg.APIKey,
		secret:   cfg.Secret,
		retries:  cfg.Retries,
		backoff:  backoff,
		client:   client,
		now:      time.Now,
	}, nil
}

func (s *WebhookSink) Name() string { return "webhook" }

// Canonical 签名原文: METHOD\npath\ntimestamp\nnonce\nsha256(body)
func Canonical(method, path string, ts int64, nonce string, body []byte) string {
	h := sha256.Sum256(body)
	return fmt.Sprintf("%s\n%s\n%d\n%s\n%s", strings.ToUpper(method), path, ts, nonce, hex.EncodeToString(h[:]))
}

// Sign HMAC-SHA256（hex）
func Sign(secret, canonical string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *WebhookSink) Deliver(ctx context.Context, env *Envelope) error {
	body, err := env.Marshal()
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		retry, err := s.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == s.retries {
			break
		}
		wait := s.backoff[min(attempt, len(s.backoff)-1)]
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}

// post 发送一次；返回值表示失败是否值得重试
func (s *WebhookSink) post(ctx context.Context, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set(HeaderAPIKey, s.apiKey)
	}
	if s.secret != "" {
		ts := s.now().Unix()
		nonce := uuid.NewString()
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(HeaderNonce, nonce)
		req.Header.Set(HeaderSignature, Sign(s.secret, Canonical(http.MethodPost, s.path, ts, nonce, body)))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("webhook: http %d", resp.StatusCode)
	}
	return false, fmt.Errorf("webhook: http %d", resp.StatusCode)
}

func (s *WebhookSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
