package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type SMSConfig struct {
	SignName     string
	TemplateCode string
}

// SMSClient 便于替换/注入的发送接口（适配真实网关 SDK）
type SMSClient interface {
	Send(ctx context.Context, phone, sign, template string, params map[string]string) error
}

type SMSNotifier struct {
	cfg SMSConfig
	cli SMSClient
}

func NewSMSNotifier(cfg SMSConfig, cli SMSClient) *SMSNotifier {
	return &SMSNotifier{cfg: cfg, cli: cli}
}

// NotifyAssignment 向帮助者发送新指派短信
func (s *SMSNotifier) NotifyAssignment(ctx context.Context, contact, caseSummary string) error {
	if s.cli == nil {
		return fmt.Errorf("SMSClient not configured")
	}
	params := map[string]string{"case": caseSummary}
	return s.cli.Send(ctx, contact, s.cfg.SignName, s.cfg.TemplateCode, params)
}

// HTTPSMSClient 经通用 HTTP 网关发送短信，POST JSON 到配置的地址
type HTTPSMSClient struct {
	endpoint string
	client   *http.Client
}

func NewHTTPSMSClient(endpoint string) *HTTPSMSClient {
	return &HTTPSMSClient{endpoint: endpoint, client: &http.Client{Timeout: 10 * time.Second}}
}

func (c *HTTPSMSClient) Send(ctx context.Context, phone, sign, template string, params map[string]string) error {
	body, err := json.Marshal(map[string]any{
		"phone": phone, "sign": sign, "template": template, "params": params,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("sms gateway returned %s", resp.Status)
	}
	return nil
}
