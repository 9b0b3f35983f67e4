package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const apiBase = "https://api.telegram.org"

// RegisterWebhook registers the externally reachable callback URL with the
// Bot API. It is safe to call repeatedly with the same URL.
func RegisterWebhook(ctx context.Context, client *http.Client, token, publicURL string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("empty token")
	}
	if strings.TrimSpace(publicURL) == "" {
		return fmt.Errorf("empty webhook url")
	}
	form := url.Values{}
	form.Set("url", publicURL)
	return callBotAPI(ctx, client, token, "setWebhook", form)
}

// DeleteWebhook unregisters the webhook so the provider stops delivering
// updates to the callback URL.
func DeleteWebhook(ctx context.Context, client *http.Client, token string, dropPending bool) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("empty token")
	}
	form := url.Values{}
	form.Set("drop_pending_updates", fmt.Sprintf("%t", dropPending))
	return callBotAPI(ctx, client, token, "deleteWebhook", form)
}

func callBotAPI(ctx context.Context, client *http.Client, token, method string, form url.Values) error {
	if client == nil {
		client = http.DefaultClient
	}
	if ctx == nil {
		ctx = context.Background()
	}
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	endpoint := fmt.Sprintf("%s/bot%s/%s", apiBase, token, method)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s status: %s", method, resp.Status)
	}
	return nil
}
