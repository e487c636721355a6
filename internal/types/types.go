package types

import (
	"fmt"
	"time"
)

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Absolute alert conditions.
const (
	ConditionGTE = "gte"
	ConditionLTE = "lte"
)

// Relative alert directions.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Repeat modes. Once deactivates the alert after it fires; the others
// leave it active and rely on the cooldown interval.
const (
	RepeatOnce    = "once"
	RepeatDaily   = "daily"
	RepeatWeekly  = "weekly"
	RepeatMonthly = "monthly"
)

// User is a chat user. ChatID is nil until the user has contacted the
// bot through the chat transport.
type User struct {
	ID        int64
	ChatID    *int64
	Role      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stock is one row of the listed-equity catalogue. CorpCode is the
// disclosure source's issuer identifier and may be missing.
type Stock struct {
	Symbol   string
	Name     string
	Market   string
	CorpCode *string
}

// PriceAlert is a user-defined watch rule on one symbol. Rows returned
// by the store carry the joined user and stock columns the evaluator
// needs, so no further lookups happen per alert.
type PriceAlert struct {
	ID     int64
	UserID int64
	Symbol string

	TargetPrice *float64
	Condition   string

	ChangePercent   *float64
	ChangeDirection string

	NotifyOnDisclosure bool
	IsActive           bool

	IntervalHours     int
	LastNotifiedAt    *time.Time
	NotificationCount int
	RepeatMode        string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Joined columns.
	UserChatID *int64
	UserActive bool
	StockName  string
}

// Validate checks the alert configuration invariants. Invalid rows are
// treated as disabled by the evaluator; they are never self-healed.
func (a *PriceAlert) Validate() error {
	if a.TargetPrice == nil && a.ChangePercent == nil && !a.NotifyOnDisclosure {
		return fmt.Errorf("alert %d has no condition", a.ID)
	}
	if a.TargetPrice != nil && a.Condition != ConditionGTE && a.Condition != ConditionLTE {
		return fmt.Errorf("alert %d has target price but condition %q", a.ID, a.Condition)
	}
	if a.ChangePercent != nil && a.ChangeDirection != DirectionUp && a.ChangeDirection != DirectionDown {
		return fmt.Errorf("alert %d has change percent but direction %q", a.ID, a.ChangeDirection)
	}
	if a.ChangePercent == nil && a.ChangeDirection != "" {
		return fmt.Errorf("alert %d has change direction but no change percent", a.ID)
	}
	if a.IntervalHours < 1 {
		return fmt.Errorf("alert %d has interval_hours %d", a.ID, a.IntervalHours)
	}
	return nil
}

// InCooldown reports whether the alert's cooldown window still covers now.
func (a *PriceAlert) InCooldown(now time.Time) bool {
	if a.LastNotifiedAt == nil {
		return false
	}
	return now.Before(a.LastNotifiedAt.Add(time.Duration(a.IntervalHours) * time.Hour))
}

// DailyPrice is one OHLCV bar. Dates are YYYY-MM-DD strings.
type DailyPrice struct {
	Symbol string
	Date   string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// ClosePrice is the latest close observation for a symbol.
type ClosePrice struct {
	Date  string
	Close float64
}

// WatchedStock groups the subscribers of one symbol for the disclosure
// ingestor. CorpCode is always non-empty here.
type WatchedStock struct {
	Symbol   string
	Name     string
	CorpCode string
	UserIDs  []int64
}
