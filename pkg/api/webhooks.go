// Webhook ingress: accepts raw platform deliveries and feeds them to the
// event dispatcher.
package api

import (
	"context"
	"io"
	"net/http"

	"github.com/yutakobayashidev/asobiba/pkg/chat"
	"github.com/yutakobayashidev/asobiba/pkg/logger"
)

// POST /api/webhooks/{platform}
//
// Body and headers are opaque bytes handed verbatim to the platform's
// adapter. An unknown platform or an unparseable payload yields 400; a
// parsed event is dispatched asynchronously, the platform gets its 200
// before handlers run.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	platform := r.PathValue("platform")
	adapter, ok := s.bot.Adapter(platform)
	if !ok {
		logger.WarnCF("api", "Webhook for unregistered platform", map[string]interface{}{
			"platform": platform,
		})
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("Unsupported platform"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	result, err := adapter.Parse(r.Context(), chat.WebhookRequest{Body: body, Header: r.Header})
	if err != nil {
		logger.ErrorCF("api", "Webhook parse failed", map[string]interface{}{
			"platform": platform, "error": err.Error(),
		})
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("Bad request"))
		return
	}

	if result.Event != nil {
		// Dispatch outlives this request; platforms retry deliveries that
		// do not ack quickly.
		dispatchCtx := context.WithoutCancel(r.Context())
		go func() {
			if err := s.bot.Dispatch(dispatchCtx, result.Event); err != nil {
				logger.ErrorCF("api", "Dispatch failed", map[string]interface{}{
					"platform": platform, "error": err.Error(),
				})
			}
		}()
	}

	if result.Ack != nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(result.Ack)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}
