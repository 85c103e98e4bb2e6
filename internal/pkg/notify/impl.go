package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/usdfg/arena/internal/pkg/common"
)

var ErrNotFound = errors.New("notification not found")

// Store persists the latest state of every notification.
type Store interface {
	// UpsertNotification reports whether the stored status changed.
	UpsertNotification(ctx context.Context, n Notification) (bool, error)
	Notification(ctx context.Context, id string) (*Notification, error)
}

// Publisher fans notifications out to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
	Subscribe(ctx context.Context) (<-chan Notification, error)
}

type NotifierService struct {
	Store     Store
	Publisher Publisher

	logger *slog.Logger
}

func New(store Store, publisher Publisher, logger *slog.Logger) *NotifierService {
	return &NotifierService{
		Store:     store,
		Publisher: publisher,
		logger:    logger,
	}
}

func NewNotifierService(i do.Injector) (*NotifierService, error) {
	store := do.MustInvokeAs[Store](i)
	publisher := do.MustInvoke[Publisher](i)

	result := New(store, publisher, common.Logger(i).With("service", "notify"))

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		apiGroup := e.Group("/api")

		notifyGroup := apiGroup.Group("/notifications")

		notifyGroup.GET("/stream", result.GetStream)
		notifyGroup.GET("/:id", result.GetNotification)
	})

	return result, nil
}

// Notify records the notification and publishes it only when its status
// changed, so repeated writes never re-trigger a seen event.
func (s *NotifierService) Notify(ctx context.Context, n Notification) (bool, error) {
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = time.Now()
	}

	changed, err := s.Store.UpsertNotification(ctx, n)
	if err != nil {
		return false, fmt.Errorf("failed to store notification %s: %w", n.ID, err)
	}

	if !changed {
		return false, nil
	}

	err = s.Publisher.Publish(ctx, n)
	if err != nil {
		// the record is stored; subscribers catch up from it
		s.logger.Warn("failed to publish notification", "id", n.ID, "error", err)
	}

	return true, nil
}

func (s *NotifierService) GetNotification(c echo.Context) error {
	n, err := s.Store.Notification(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "notification not found")
	}

	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read notification")
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, n)
}

// GetStream streams notifications for ?wallet= as server-sent events.
func (s *NotifierService) GetStream(c echo.Context) error {
	wallet := c.QueryParam("wallet")
	if wallet == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "wallet is required")
	}

	ctx := c.Request().Context()

	events, err := s.Publisher.Subscribe(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "notifications unavailable")
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	for n := range events {
		if !n.Concerns(wallet) {
			continue
		}

		payload, err := encode(n)
		if err != nil {
			continue
		}

		_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Kind, payload)
		if err != nil {
			return nil
		}

		w.Flush()
	}

	return nil
}
