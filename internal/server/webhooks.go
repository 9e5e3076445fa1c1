package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"execdesk/internal/config"
	"execdesk/internal/domain"
	"execdesk/internal/engine"
)

// webhookDispatcher tails the event log and POSTs matching events to the
// configured endpoints. One cursor per hook so a slow endpoint does not
// hold back the others.
type webhookDispatcher struct {
	engine   engine.Engine
	tenantID string
	webhooks []config.WebhookConfig
	client   *http.Client
	cursors  map[int]int64
}

// StartWebhookDispatcher begins delivering events for the tenant in cfg.
// It is a no-op when no webhooks are configured. Cancel ctx to stop.
func StartWebhookDispatcher(ctx context.Context, e engine.Engine) {
	if e.Config == nil || len(e.Config.Webhooks) == 0 {
		return
	}
	enabled := make([]config.WebhookConfig, 0, len(e.Config.Webhooks))
	for _, hook := range e.Config.Webhooks {
		if hook.URL == "" {
			continue
		}
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		enabled = append(enabled, hook)
	}
	if len(enabled) == 0 {
		return
	}
	d := &webhookDispatcher{
		engine:   e,
		tenantID: e.Config.Tenant.ID,
		webhooks: enabled,
		client:   &http.Client{Timeout: 10 * time.Second},
		cursors:  make(map[int]int64),
	}
	go d.run(ctx)
}

func (d *webhookDispatcher) run(ctx context.Context) {
	// Start each hook at the current tail; webhooks deliver new events only.
	last, err := d.engine.Repo.LatestEventID(ctx, d.tenantID)
	if err != nil {
		log.Printf("webhooks: reading event cursor: %v", err)
	}
	for i := range d.webhooks {
		d.cursors[i] = last
	}
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i := range d.webhooks {
				d.dispatchWebhook(ctx, i)
			}
		}
	}
}

func (d *webhookDispatcher) dispatchWebhook(ctx context.Context, idx int) {
	hook := d.webhooks[idx]
	for {
		events, err := d.engine.Repo.EventsAfter(ctx, 100, d.cursors[idx], d.tenantID)
		if err != nil {
			log.Printf("webhooks: polling events for %s: %v", hook.URL, err)
			return
		}
		if len(events) == 0 {
			return
		}
		for _, evt := range events {
			if !eventMatches(hook, evt) {
				d.cursors[idx] = evt.ID
				continue
			}
			if err := d.postEvent(ctx, hook, evt); err != nil {
				log.Printf("webhooks: delivering event %d to %s: %v", evt.ID, hook.URL, err)
				// Retry this event on the next tick.
				return
			}
			d.cursors[idx] = evt.ID
		}
		if len(events) < 100 {
			return
		}
	}
}

func eventMatches(hook config.WebhookConfig, evt domain.Event) bool {
	if len(hook.Events) == 0 {
		return true
	}
	for _, want := range hook.Events {
		if want == evt.Type || want == "*" {
			return true
		}
		// Prefix match on the entity kind, e.g. "crisis.*".
		if n := len(want); n > 2 && want[n-2:] == ".*" && len(evt.Type) >= n-1 && evt.Type[:n-1] == want[:n-2]+"." {
			return true
		}
	}
	return false
}

func (d *webhookDispatcher) postEvent(ctx context.Context, hook config.WebhookConfig, evt domain.Event) error {
	payload, err := json.Marshal(eventResponse(evt))
	if err != nil {
		return err
	}
	timeout := d.client.Timeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, hook.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Execdesk-Event", evt.Type)
	req.Header.Set("X-Execdesk-Delivery", fmt.Sprintf("%d", evt.ID))
	req.Header.Set("X-Execdesk-Tenant", evt.TenantID)
	if hook.Secret != "" {
		req.Header.Set("X-Execdesk-Secret", hook.Secret)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %s", resp.Status)
	}
	return nil
}
