package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "economy:idempotency:v1:"
	inProgressMarker     = "__in_progress__"
	redisTimeout         = 2 * time.Second
)

var errInProgress = errors.New("request in progress")

type storedResponse struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// replayStore keeps one response per idempotency key. A key is first
// reserved with a marker, then either replaced by the response or released.
type replayStore struct {
	cache *redis.Client
	ttl   time.Duration
}

// lookup returns the stored response for key, nil when the key is unused, or
// errInProgress while another request holds the reservation.
func (s replayStore) lookup(ctx context.Context, key string) (*storedResponse, error) {
	raw, err := s.cache.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, err
	case raw == inProgressMarker:
		return nil, errInProgress
	}
	var resp storedResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// reserve claims key and reports whether this request won it.
func (s replayStore) reserve(ctx context.Context, key string) (bool, error) {
	return s.cache.SetNX(ctx, key, inProgressMarker, s.ttl).Result()
}

func (s replayStore) save(key string, resp storedResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	return s.cache.Set(ctx, key, payload, s.ttl).Err()
}

func (s replayStore) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	s.cache.Del(ctx, key)
}

func capture(c *fiber.Ctx) storedResponse {
	resp := storedResponse{
		Status:  c.Response().StatusCode(),
		Body:    string(c.Response().Body()),
		Headers: map[string]string{},
	}
	c.Response().Header.VisitAll(func(k, v []byte) {
		resp.Headers[string(k)] = string(v)
	})
	return resp
}

func replay(c *fiber.Ctx, resp *storedResponse) error {
	for name, value := range resp.Headers {
		if strings.EqualFold(name, fiber.HeaderContentLength) {
			continue
		}
		c.Set(name, value)
	}
	return c.Status(resp.Status).SendString(resp.Body)
}

// Idempotency replays the stored response for a repeated balance mutation or
// transfer instead of applying it twice. Responses are kept in Redis keyed by
// the Idempotency-Key header together with the method and path, so one key
// cannot replay a response recorded for a different operation.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	store := replayStore{cache: cache, ttl: ttl}

	return func(c *fiber.Ctx) error {
		method := strings.ToUpper(c.Method())
		if method == fiber.MethodGet || method == fiber.MethodHead || method == fiber.MethodOptions {
			return c.Next()
		}

		header := c.Get(idempotencyKeyHeader)
		if header == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing Idempotency-Key header")
		}
		key := idempotencyPrefix + method + ":" + c.Path() + ":" + header
		log := logger.With(slog.String("idempotency_key", header))

		ctx, cancel := context.WithTimeout(c.UserContext(), redisTimeout)
		defer cancel()

		prev, err := store.lookup(ctx, key)
		switch {
		case errors.Is(err, errInProgress):
			return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
		case err != nil:
			log.Error("idempotency lookup failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		case prev != nil:
			return replay(c, prev)
		}

		won, err := store.reserve(ctx, key)
		if err != nil {
			log.Error("idempotency reservation failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency reservation failure")
		}
		if !won {
			return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
		}

		if err := c.Next(); err != nil {
			store.release(key)
			return err
		}
		// Server failures stay retryable under the same key.
		if c.Response().StatusCode() >= fiber.StatusInternalServerError {
			store.release(key)
			return nil
		}

		if err := store.save(key, capture(c)); err != nil {
			log.Error("failed to persist idempotent response", slog.Any("error", err))
			store.release(key)
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency persistence failure")
		}
		return nil
	}
}
