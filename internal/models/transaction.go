package models

// TransactionRecord is one entry of the per-actor usage JSON stored in the
// daily and historical transaction cache slots. Entries are matched by
// (CHANNEL, MESSAGE_TYPE); counters absent from the JSON decode to zero.
type TransactionRecord struct {
	Channel     string `json:"CHANNEL"`
	MessageType string `json:"MESSAGE_TYPE"`
	SentCount   int    `json:"SENT_COUNT,omitempty"`
	WeeklySum   int    `json:"WEEKLY_SUM,omitempty"`
	MonthlySum  int    `json:"MONTHLY_SUM,omitempty"`
}

// Matches reports whether the entry belongs to the given channel/message-type
// tuple.
func (t TransactionRecord) Matches(channel, messageType string) bool {
	return t.Channel == channel && t.MessageType == messageType
}

// PolicyRule is one contact-policy rule resolved from the cache. Limits are
// per message-type tier; a negative limit disables that tier's check.
type PolicyRule struct {
	Priority     int
	DailyLimit   int
	WeeklyLimit  int
	MonthlyLimit int
	// SourceKey records which cache key the rule was discovered under.
	SourceKey string
}

// ContactPolicyLimits is the resolved view of the active rule combined with
// the actor's current usage. It is computed per evaluation, never persisted.
type ContactPolicyLimits struct {
	DailyLimit   int
	WeeklyLimit  int
	MonthlyLimit int
	DailyCount   int
	WeeklySum    int
	MonthlySum   int
}
