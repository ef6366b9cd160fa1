// Package sms is the OTP delivery channel. Senders are treated as
// unreliable: a failure is surfaced to the caller, never retried here.
package sms

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sender dispatches a one-time code to a destination mobile number.
type Sender interface {
	Send(ctx context.Context, destination, code string) error
}

// Client sends OTP codes through a Fast2SMS-style gateway: a single GET
// with the code and destination as query parameters.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a gateway client. baseURL defaults to the Fast2SMS
// bulk endpoint when empty.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://www.fast2sms.com/dev/bulkV2"
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Send dispatches the code. Any transport error or non-2xx response is a
// delivery failure.
func (c *Client) Send(ctx context.Context, destination, code string) error {
	q := url.Values{}
	q.Set("authorization", c.apiKey)
	q.Set("route", "otp")
	q.Set("flash", "0")
	q.Set("variables_values", code)
	q.Set("numbers", destination)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// LogSender is the dev-mode sender: it logs that a code was issued with
// a masked destination. The code itself is never logged.
type LogSender struct{}

func (LogSender) Send(_ context.Context, destination, _ string) error {
	log.Printf("dev sms: OTP issued for %s", MaskNumber(destination))
	return nil
}

// MaskNumber masks a mobile number for logging (e.g. +4*******89).
func MaskNumber(number string) string {
	if len(number) <= 4 {
		return "****"
	}
	return number[:2] + strings.Repeat("*", len(number)-4) + number[len(number)-2:]
}
