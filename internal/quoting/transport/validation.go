package transport

import (
	"marketplace_quotes_backend/internal/quoting/domain"
	"marketplace_quotes_backend/platform/validator"
)

// RegisterValidators adds the quoting enum tags used by the request DTOs.
func RegisterValidators(val *validator.Validator) error {
	quoteStatuses := make([]string, len(domain.AllQuotationStatuses))
	for i, s := range domain.AllQuotationStatuses {
		quoteStatuses[i] = string(s)
	}
	inviteStatuses := make([]string, len(domain.AllInviteStatuses))
	for i, s := range domain.AllInviteStatuses {
		inviteStatuses[i] = string(s)
	}
	eventTypes := make([]string, len(domain.AllEventTypes))
	for i, t := range domain.AllEventTypes {
		eventTypes[i] = string(t)
	}

	if err := val.RegisterEnum("quotestatus", quoteStatuses...); err != nil {
		return err
	}
	if err := val.RegisterEnum("invitestatus", inviteStatuses...); err != nil {
		return err
	}
	return val.RegisterEnum("eventtype", eventTypes...)
}
