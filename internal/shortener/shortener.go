// Package shortener сокращает ссылки через API сайтов-сокращателей
// вида https://<site>/api?api=<key>&url=<link>.
package shortener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"tgstream/internal/logger"
)

const maxResponseSize = 64 * 1024

type response struct {
	Status       string `json:"status"`
	ShortenedURL string `json:"shortenedUrl"`
	Message      any    `json:"message"`
}

type Client struct {
	http   *http.Client
	scheme string
}

// New создаёт клиента. Для запросов к сайтам пользователей стоит передавать
// клиента из protect.NewHTTPClient.
func New(client *http.Client) *Client {
	return &Client{http: client, scheme: "https"}
}

// Shorten возвращает сокращённую ссылку. При любой ошибке возвращается
// исходная ссылка: сокращатель не должен ломать выдачу файла.
func (c *Client) Shorten(ctx context.Context, baseSite, apiKey, link string) string {
	short, err := c.shorten(ctx, baseSite, apiKey, link)
	if err != nil {
		logger.FromContext(ctx).Warn("shorten link failed", "site", baseSite, "error", err)
		return link
	}
	return short
}

func (c *Client) shorten(ctx context.Context, baseSite, apiKey, link string) (string, error) {
	host := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(baseSite, "https://"), "http://"), "/")
	if host == "" || apiKey == "" {
		return "", fmt.Errorf("shortener is not configured")
	}

	q := url.Values{}
	q.Set("api", apiKey)
	q.Set("url", link)
	u := url.URL{Scheme: c.scheme, Host: host, Path: "/api", RawQuery: q.Encode()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	var r response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&r); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if r.Status != "success" || r.ShortenedURL == "" {
		return "", fmt.Errorf("shortener refused: status=%q message=%v", r.Status, r.Message)
	}

	logger.FromContext(ctx).Debug("link shortened", "site", host, "url", r.ShortenedURL)
	return r.ShortenedURL, nil
}
