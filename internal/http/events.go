package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/jmehdipour/wallet-notifier/internal/service/publisher"
	"github.com/labstack/echo/v4"
)

type EventPublisher interface {
	Publish(ctx context.Context, ev model.Event) (model.Event, error)
}

func publishEventHandler(pub EventPublisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		var ev model.Event
		if err := c.Bind(&ev); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		out, err := pub.Publish(c.Request().Context(), ev)
		if err != nil {
			if errors.Is(err, publisher.ErrInvalidEvent) {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
			}

			c.Logger().Errorf("publish failed: %v", err)

			return c.JSON(http.StatusBadGateway, map[string]string{"error": "publish failed"})
		}

		return c.JSON(http.StatusAccepted, map[string]any{
			"published": true,
			"id":        out.ID,
			"type":      out.Kind.String(),
			"walletId":  out.WalletID,
		})
	}
}
