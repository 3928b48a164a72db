package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-booking/internal/logger"
)

const holdKeyPrefix = "booking_hold:"

// Hold leases a pending booking in Redis. The key's TTL is the payment
// window; when it expires without confirmation, the expiry reaper cancels the
// booking and the reserved seats flow back.
type Hold struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewHold(client *redis.Client, ttl time.Duration, log *logger.Logger) *Hold {
	return &Hold{Client: client, TTL: ttl, Logger: log}
}

// Place sets the lease for a freshly created booking. SetNX keeps a retried
// create from silently extending an existing lease.
func (h *Hold) Place(bookingID string) (bool, error) {
	key := holdKeyPrefix + bookingID
	ok, err := h.Client.SetNX(context.Background(), key, "held", h.TTL).Result()
	if err != nil {
		return false, err
	}
	if ok {
		h.Logger.LogBooking("HOLD_PLACED", bookingID, fmt.Sprintf("expires in %s", h.TTL))
	}
	return ok, nil
}

// Clear drops the lease once the booking is confirmed or cancelled. Clearing
// a lease that already expired is a no-op.
func (h *Hold) Clear(bookingID string) error {
	key := holdKeyPrefix + bookingID
	_, err := h.Client.Del(context.Background(), key).Result()
	return err
}

// Exists reports whether the payment window for a booking is still open.
func (h *Hold) Exists(bookingID string) (bool, error) {
	key := holdKeyPrefix + bookingID
	_, err := h.Client.Get(context.Background(), key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// BookingIDFromExpiredKey extracts the booking ID from a keyspace expiry
// notification, or "" when the key is not a hold lease.
func BookingIDFromExpiredKey(key string) string {
	if len(key) > len(holdKeyPrefix) && key[:len(holdKeyPrefix)] == holdKeyPrefix {
		return key[len(holdKeyPrefix):]
	}
	return ""
}
