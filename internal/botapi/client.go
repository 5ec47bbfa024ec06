/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"stars-storefront-go/internal/models"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// APIError is a response with ok=false from the bot API
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bot api %s failed (%d): %s", e.Method, e.Code, e.Description)
}

// IsForbidden reports whether err means the user blocked the bot or never
// started a chat with it.
func IsForbidden(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden
}

type Client struct {
	httpClient http.Client
	baseUrl    string
	timeout    time.Duration
}

func NewClient(cfg models.BotConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot token cannot be empty")
	}

	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		httpClient: httpClient,
		baseUrl:    strings.TrimRight(cfg.ApiUrl, "/") + "/bot" + cfg.Token,
		timeout:    timeout,
	}, nil
}

func createCustomHttpClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

type apiResponse struct {
	Ok          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// call posts params as JSON to method and decodes the result into out when
// out is non-nil.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("unable to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseUrl+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("unable to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bot api %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("unable to read %s response: %w", method, err)
	}

	var decoded apiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("unable to decode %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !decoded.Ok {
		code := decoded.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Method: method, Code: code, Description: decoded.Description}
	}

	if out != nil {
		if err := json.Unmarshal(decoded.Result, out); err != nil {
			return fmt.Errorf("unable to decode %s result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) SendMessage(ctx context.Context, chatId int64, text string) error {
	return c.call(ctx, "sendMessage", sendMessageRequest{
		ChatId:    chatId,
		Text:      text,
		ParseMode: "HTML",
	}, nil)
}

// SendDocument sends a previously uploaded file by its file id
func (c *Client) SendDocument(ctx context.Context, chatId int64, document, caption string) error {
	return c.call(ctx, "sendDocument", sendDocumentRequest{
		ChatId:    chatId,
		Document:  document,
		Caption:   caption,
		ParseMode: "HTML",
	}, nil)
}

// SendPhoto sends a photo by file id or URL
func (c *Client) SendPhoto(ctx context.Context, chatId int64, photo, caption string) error {
	return c.call(ctx, "sendPhoto", sendPhotoRequest{
		ChatId:    chatId,
		Photo:     photo,
		Caption:   caption,
		ParseMode: "HTML",
	}, nil)
}

// AnswerPreCheckoutQuery approves or rejects a pending charge. The platform
// allows roughly ten seconds between the query and this answer.
func (c *Client) AnswerPreCheckoutQuery(ctx context.Context, queryId string, ok bool, errorMessage string) error {
	request := answerPreCheckoutRequest{PreCheckoutQueryId: queryId, Ok: ok}
	if !ok {
		request.ErrorMessage = errorMessage
	}

	err := c.call(ctx, "answerPreCheckoutQuery", request, nil)
	if err != nil {
		zap.L().Error("Failed to answer pre-checkout query",
			zap.String("query_id", queryId),
			zap.Bool("ok", ok),
			zap.Error(err))
	}
	return err
}

// SendInvoice presents an invoice in the platform currency. Payments in
// the in-app currency carry no provider token.
func (c *Client) SendInvoice(ctx context.Context, chatId int64, invoice models.Invoice) error {
	return c.call(ctx, "sendInvoice", sendInvoiceRequest{
		ChatId:      chatId,
		Title:       invoice.Title,
		Description: invoice.Description,
		Payload:     invoice.Payload,
		Currency:    invoice.Currency,
		Prices:      []labeledPrice{{Label: invoice.Title, Amount: invoice.Amount}},
		PhotoUrl:    invoice.PhotoUrl,
	}, nil)
}

// GetMe returns the bot's own identity, used as a startup credential check
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", struct{}{}, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// SetWebhook registers url as the update target. secret is echoed back by
// the platform in the X-Telegram-Bot-Api-Secret-Token header.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	return c.call(ctx, "setWebhook", setWebhookRequest{
		Url:            url,
		SecretToken:    secret,
		AllowedUpdates: []string{"message", "pre_checkout_query"},
	}, nil)
}
