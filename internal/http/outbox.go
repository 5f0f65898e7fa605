package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/jmehdipour/wallet-notifier/internal/worker"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// OutboxService is the operator view of the durable outbox.
type OutboxService interface {
	ListUnsent(ctx context.Context, limit int) ([]model.RenderedNotification, error)
	Resend(ctx context.Context, id string) (model.Outcome, error)
}

type outboxItem struct {
	ID        string     `json:"id"`
	EventID   string     `json:"eventId"`
	Kind      string     `json:"kind"`
	WalletID  string     `json:"walletId"`
	To        string     `json:"to"`
	Subject   string     `json:"subject"`
	Sent      bool       `json:"sent"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"lastError,omitempty"`
	CreatedOn time.Time  `json:"createdOn"`
	SentOn    *time.Time `json:"sentOn,omitempty"`
}

func toOutboxItem(n model.RenderedNotification) outboxItem {
	it := outboxItem{
		ID:        n.ID,
		EventID:   n.EventID,
		Kind:      n.Kind.String(),
		WalletID:  n.WalletID,
		To:        n.To,
		Subject:   n.Subject,
		Sent:      n.Sent,
		Attempts:  n.Attempts,
		LastError: n.LastError.String,
		CreatedOn: n.CreatedOn,
	}
	if n.SentOn.Valid {
		t := n.SentOn.Time
		it.SentOn = &t
	}
	return it
}

func listUnsentHandler(svc OutboxService) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 100
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}

		rows, err := svc.ListUnsent(c.Request().Context(), limit)
		if err != nil {
			log.Errorf("list unsent failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		items := make([]outboxItem, 0, len(rows))
		for _, n := range rows {
			items = append(items, toOutboxItem(n))
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"count":   len(items),
			"results": items,
		})
	}
}

func resendHandler(svc OutboxService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := strings.TrimSpace(c.Param("id"))
		if id == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		outcome, err := svc.Resend(c.Request().Context(), id)
		switch {
		case err == nil:
			return c.JSON(http.StatusOK, map[string]any{"id": id, "outcome": outcome.String()})
		case errors.Is(err, worker.ErrNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		case errors.Is(err, worker.ErrAlreadySent):
			return c.JSON(http.StatusConflict, map[string]string{"error": "already sent"})
		case errors.Is(err, worker.ErrLocked):
			return c.JSON(http.StatusConflict, map[string]string{"error": "delivery in progress"})
		case outcome == model.OutcomeUnsent:
			return c.JSON(http.StatusBadGateway, map[string]any{
				"id":      id,
				"outcome": outcome.String(),
				"error":   err.Error(),
			})
		default:
			log.Errorf("resend %s failed: %v", id, err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "resend failed"})
		}
	}
}
