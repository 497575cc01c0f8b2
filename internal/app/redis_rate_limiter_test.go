package app

import (
	"context"
	"testing"
	"time"
)

func TestParseRateLimitReply_DecodesCountAndRetryAfter(t *testing.T) {
	count, retryAfter, err := parseRateLimitReply([]interface{}{int64(7), int64(45000)}, 60000)
	if err != nil {
		t.Fatalf("parseRateLimitReply returned error: %v", err)
	}
	if count != 7 {
		t.Fatalf("expected count 7, got %d", count)
	}
	if retryAfter != 45 {
		t.Fatalf("expected retry-after of 45 seconds, got %d", retryAfter)
	}
}

func TestParseRateLimitReply_RoundsRetryAfterUpToAtLeastOneSecond(t *testing.T) {
	count, retryAfter, err := parseRateLimitReply([]interface{}{int64(1), int64(250)}, 60000)
	if err != nil {
		t.Fatalf("parseRateLimitReply returned error: %v", err)
	}
	if count != 1 || retryAfter != 1 {
		t.Fatalf("expected count 1 with a 1-second floor, got count=%d retryAfter=%d", count, retryAfter)
	}
}

func TestParseRateLimitReply_NegativeTTLFallsBackToWindow(t *testing.T) {
	_, retryAfter, err := parseRateLimitReply([]interface{}{int64(3), int64(-1)}, 60000)
	if err != nil {
		t.Fatalf("parseRateLimitReply returned error: %v", err)
	}
	if retryAfter != 60 {
		t.Fatalf("expected the full window as retry-after, got %d", retryAfter)
	}
}

func TestParseRateLimitReply_RejectsForeignShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  interface{}
	}{
		{"not a slice", "OK"},
		{"wrong length", []interface{}{int64(1)}},
		{"count not an integer", []interface{}{"1", int64(1000)}},
		{"ttl not an integer", []interface{}{int64(1), "1000"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := parseRateLimitReply(tc.raw, 60000); err == nil {
				t.Fatal("expected an error for a foreign reply shape")
			}
		})
	}
}

func TestNewRedisRequestRateLimiter_NormalizesPrefix(t *testing.T) {
	limiter := NewRedisRequestRateLimiter(nil, "  custom:prefix:  ")
	if limiter.prefix != "custom:prefix" {
		t.Fatalf("expected trimmed prefix without trailing colon, got %q", limiter.prefix)
	}

	limiter = NewRedisRequestRateLimiter(nil, "")
	if limiter.prefix != "buddypass:rate_limit" {
		t.Fatalf("expected the default prefix, got %q", limiter.prefix)
	}
}

func TestConsumeRateLimit_NoClientIsPassThrough(t *testing.T) {
	limiter := NewRedisRequestRateLimiter(nil, "")
	count, retryAfter, err := limiter.ConsumeRateLimit(context.Background(), "slot_request", "user", 30, time.Minute)
	if err != nil || count != 0 || retryAfter != 0 {
		t.Fatalf("expected a no-op without a client, got count=%d retryAfter=%d err=%v", count, retryAfter, err)
	}
}
