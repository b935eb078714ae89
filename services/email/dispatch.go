package emailsvc

import (
	"net/mail"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/replay"
	"github.com/darasahq/darasa/core/script"
)

// IntentDispatcher turns the replay engine's delivery intents into outbound
// messages. Dispatch happens strictly after the ledger write: a slow or
// failing send can never stall the ledger or duplicate a delivery.
type IntentDispatcher struct {
	mailSvc core.EmailService
	logger  core.Logger
}

func NewIntentDispatcher(mailSvc core.EmailService, logger core.Logger) *IntentDispatcher {
	return &IntentDispatcher{mailSvc: mailSvc, logger: logger}
}

// Dispatch fans the intents out to their side channels. The rendered script
// line becomes the subject; the template key selects the mail body.
func (d *IntentDispatcher) Dispatch(intents ...replay.DeliveryIntent) {
	msgs := make([]*core.EmailMessage, 0, len(intents))
	for _, intent := range intents {
		switch intent.Channel {
		case script.ChannelEmail:
			msgs = append(msgs, &core.EmailMessage{
				To:           []mail.Address{{Name: intent.RecipientName, Address: intent.Recipient}},
				Subject:      intent.Vars["message"],
				TemplateName: intent.Template,
				TemplateData: intent.Vars,
			})
		case script.ChannelSMS:
			// no SMS provider wired yet; the host retries from its own queue
			d.logger.Warn("sms intent skipped: no provider configured for entry " + intent.EntryID)
		default:
			d.logger.Warn("unexpected delivery intent channel " + string(intent.Channel))
		}
	}
	if len(msgs) > 0 {
		d.mailSvc.SendMessages(msgs...)
	}
}
