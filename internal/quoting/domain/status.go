// Package domain holds the quotation matching entities and the rules that
// govern how they change state. It has no storage or transport concerns.
package domain

// InviteStatus is the lifecycle state of a JobQuotationInvite.
// Values are part of the public contract and must not be renamed.
type InviteStatus string

const (
	InviteStatusInvited   InviteStatus = "INVITED"
	InviteStatusResponded InviteStatus = "RESPONDED"
	InviteStatusIgnored   InviteStatus = "IGNORED"
	InviteStatusExpired   InviteStatus = "EXPIRED"
)

// AllInviteStatuses lists every invite status in lifecycle order.
var AllInviteStatuses = []InviteStatus{
	InviteStatusInvited,
	InviteStatusResponded,
	InviteStatusIgnored,
	InviteStatusExpired,
}

var inviteTransitions = map[InviteStatus]map[InviteStatus]bool{
	InviteStatusInvited: {
		InviteStatusResponded: true,
		InviteStatusIgnored:   true,
		InviteStatusExpired:   true,
	},
}

// CanTransitionTo reports whether s may move to next.
func (s InviteStatus) CanTransitionTo(next InviteStatus) bool {
	return inviteTransitions[s][next]
}

// IsTerminal reports whether no further transition is possible.
func (s InviteStatus) IsTerminal() bool {
	return len(inviteTransitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s InviteStatus) Valid() bool {
	for _, v := range AllInviteStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// QuotationStatus is the lifecycle state of a Quotation.
type QuotationStatus string

const (
	QuotationStatusPending   QuotationStatus = "PENDING"
	QuotationStatusAccepted  QuotationStatus = "ACCEPTED"
	QuotationStatusRejected  QuotationStatus = "REJECTED"
	QuotationStatusCancelled QuotationStatus = "CANCELLED"
	QuotationStatusExpired   QuotationStatus = "EXPIRED"
)

// AllQuotationStatuses lists every quotation status.
var AllQuotationStatuses = []QuotationStatus{
	QuotationStatusPending,
	QuotationStatusAccepted,
	QuotationStatusRejected,
	QuotationStatusCancelled,
	QuotationStatusExpired,
}

var quotationTransitions = map[QuotationStatus]map[QuotationStatus]bool{
	QuotationStatusPending: {
		QuotationStatusAccepted:  true,
		QuotationStatusRejected:  true,
		QuotationStatusCancelled: true,
		QuotationStatusExpired:   true,
	},
}

// CanTransitionTo reports whether s may move to next.
func (s QuotationStatus) CanTransitionTo(next QuotationStatus) bool {
	return quotationTransitions[s][next]
}

// IsTerminal reports whether no further transition is possible.
func (s QuotationStatus) IsTerminal() bool {
	return len(quotationTransitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s QuotationStatus) Valid() bool {
	for _, v := range AllQuotationStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// EventType enumerates the audit record kinds written to the event log.
type EventType string

const (
	EventQuoteInvited    EventType = "QUOTE_INVITED"
	EventInviteExpired   EventType = "INVITE_EXPIRED"
	EventQuoteSubmitted  EventType = "QUOTE_SUBMITTED"
	EventQuoteUpdated    EventType = "QUOTE_UPDATED"
	EventQuoteWithdrawn  EventType = "QUOTE_WITHDRAWN"
	EventQuoteAccepted   EventType = "QUOTE_ACCEPTED"
	EventQuoteRejected   EventType = "QUOTE_REJECTED"
	EventQuoteExpired    EventType = "QUOTE_EXPIRED"
	EventProviderIgnored EventType = "PROVIDER_IGNORED"
)

// AllEventTypes lists every event type.
var AllEventTypes = []EventType{
	EventQuoteInvited,
	EventInviteExpired,
	EventQuoteSubmitted,
	EventQuoteUpdated,
	EventQuoteWithdrawn,
	EventQuoteAccepted,
	EventQuoteRejected,
	EventQuoteExpired,
	EventProviderIgnored,
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	for _, v := range AllEventTypes {
		if v == t {
			return true
		}
	}
	return false
}

// QuotationEventFor maps a quotation target status to the event recording it.
func QuotationEventFor(next QuotationStatus) EventType {
	switch next {
	case QuotationStatusAccepted:
		return EventQuoteAccepted
	case QuotationStatusRejected:
		return EventQuoteRejected
	case QuotationStatusCancelled:
		return EventQuoteWithdrawn
	case QuotationStatusExpired:
		return EventQuoteExpired
	default:
		return EventQuoteUpdated
	}
}

// InviteEventFor maps an invite target status to the event recording it.
// RESPONDED has no event of its own: the QUOTE_SUBMITTED event records it.
// A lapsed invite is recorded as an invite-scoped QUOTE_EXPIRED (no quote id).
// INVITE_EXPIRED is accepted on read but not produced here.
func InviteEventFor(next InviteStatus) (EventType, bool) {
	switch next {
	case InviteStatusIgnored:
		return EventProviderIgnored, true
	case InviteStatusExpired:
		return EventQuoteExpired, true
	default:
		return "", false
	}
}
