package events

import "time"

// EventType names a lifecycle event of an account or its jobs
type EventType string

const (
	// Credential lifecycle
	EventTypeAccountAuthorized EventType = "account.authorized"
	EventTypeAccountRejected   EventType = "account.rejected"
	EventTypeLoginEscalated    EventType = "account.login_escalated"
	EventTypeLoginReacquired   EventType = "account.login_reacquired"
	EventTypeAccountDead       EventType = "account.dead"
	EventTypeAccountBanned     EventType = "account.banned"
	EventTypeJobsStarted       EventType = "account.jobs_started"
	EventTypeJobsCanceled      EventType = "account.jobs_canceled"

	// Game activity
	EventTypeUpgradePurchased EventType = "upgrade.purchased"
	EventTypeMiningCycle      EventType = "mining.cycle_completed"
	EventTypeRewardClaimed    EventType = "reward.claimed"

	// Error events
	EventTypeError EventType = "error"
)

// AllEventTypes lists every event type, in declaration order.
var AllEventTypes = []EventType{
	EventTypeAccountAuthorized,
	EventTypeAccountRejected,
	EventTypeLoginEscalated,
	EventTypeLoginReacquired,
	EventTypeAccountDead,
	EventTypeAccountBanned,
	EventTypeJobsStarted,
	EventTypeJobsCanceled,
	EventTypeUpgradePurchased,
	EventTypeMiningCycle,
	EventTypeRewardClaimed,
	EventTypeError,
}

// Event represents a system event with metadata
type Event struct {
	Type      EventType              // Type of event
	Source    string                 // Component that emitted event (e.g., "credential", "miner")
	AccountID int64                  // Account the event concerns, 0 when none
	Timestamp time.Time              // When the event occurred
	Data      map[string]interface{} // Event-specific data
}

// EventHandler is a function that processes an event
type EventHandler func(Event)

// SubscriptionID uniquely identifies a subscription
type SubscriptionID int64

// EventBus defines the interface for event pub/sub
type EventBus interface {
	Subscribe(eventType EventType, handler EventHandler) SubscriptionID
	Unsubscribe(id SubscriptionID)
	Publish(event Event)
	PublishAsync(event Event)
	Stop()
}

// Helper functions to create common events

// NewAccountEvent creates an event about one account
func NewAccountEvent(t EventType, source string, accountID int64, data map[string]interface{}) Event {
	return Event{
		Type:      t,
		Source:    source,
		AccountID: accountID,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// NewAccountDeadEvent is published when an account's jobs are torn down for good
func NewAccountDeadEvent(accountID int64, phone, reason string) Event {
	return NewAccountEvent(EventTypeAccountDead, "credential", accountID, map[string]interface{}{
		"phone":  phone,
		"reason": reason,
	})
}

// NewUpgradePurchasedEvent is published after each successful upgrade purchase
func NewUpgradePurchasedEvent(accountID, cardID int64, name, cost, ratio string) Event {
	return NewAccountEvent(EventTypeUpgradePurchased, "upgrader", accountID, map[string]interface{}{
		"card_id": cardID,
		"name":    name,
		"cost":    cost,
		"ratio":   ratio,
	})
}

// NewMiningCycleEvent is published when a mining cycle finishes
func NewMiningCycleEvent(accountID int64, cycleID string, calls int, mined int64, next time.Duration) Event {
	return NewAccountEvent(EventTypeMiningCycle, "miner", accountID, map[string]interface{}{
		"cycle_id":   cycleID,
		"calls":      calls,
		"mined":      mined,
		"next_delay": next.String(),
	})
}

// NewErrorEvent wraps an error for subscribers
func NewErrorEvent(source string, accountID int64, err error) Event {
	return NewAccountEvent(EventTypeError, source, accountID, map[string]interface{}{
		"error": err.Error(),
	})
}
