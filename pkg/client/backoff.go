package client

import (
	"math"
	"time"
)

// Backoff - политика переподключения: экспоненциальная задержка с потолком
// и ограниченным числом попыток. Попытки нумеруются с нуля.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	MaxAttempts int
}

// DefaultBackoff возвращает политику по умолчанию: 1s, 2s, 4s ... до 30s,
// не более 8 попыток подряд.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:     time.Second,
		Max:         30 * time.Second,
		Multiplier:  2,
		MaxAttempts: 8,
	}
}

// Delay возвращает задержку перед попыткой с номером attempt
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return b.Initial
	}
	d := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt))
	if d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}

// Exhausted сообщает, исчерпан ли лимит попыток
func (b Backoff) Exhausted(attempt int) bool {
	return b.MaxAttempts > 0 && attempt >= b.MaxAttempts
}
