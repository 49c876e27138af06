package payments

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/model"
)

// Metadata keys carried on the checkout session. They are part of the
// provider-side contract and must not be renamed.
const (
	MetaPrincipalID      = "principal_id"
	MetaDate             = "date"
	MetaTimeSlot         = "time_slot"
	MetaNotes            = "notes"
	MetaConsultationType = "consultation_type"
	MetaContactEmail     = "contact_email"
	MetaContactName      = "contact_name"
)

// MaxMetadataValue is the provider's per-value length limit.
const MaxMetadataValue = 500

func EncodeIntent(intent model.PendingBooking) map[string]string {
	return map[string]string{
		MetaPrincipalID:      intent.PrincipalID,
		MetaDate:             intent.Date,
		MetaTimeSlot:         intent.TimeSlot,
		MetaNotes:            intent.Notes,
		MetaConsultationType: intent.ConsultationType,
		MetaContactEmail:     intent.ContactEmail,
		MetaContactName:      intent.ContactName,
	}
}

// DecodeIntent reads a typed intent back from session metadata. Values that
// could never have passed submission are rejected here.
func DecodeIntent(meta map[string]string) (model.PendingBooking, error) {
	intent := model.PendingBooking{
		PrincipalID:      strings.TrimSpace(meta[MetaPrincipalID]),
		Date:             strings.TrimSpace(meta[MetaDate]),
		TimeSlot:         strings.TrimSpace(meta[MetaTimeSlot]),
		Notes:            meta[MetaNotes],
		ConsultationType: strings.TrimSpace(meta[MetaConsultationType]),
		ContactEmail:     strings.TrimSpace(meta[MetaContactEmail]),
		ContactName:      strings.TrimSpace(meta[MetaContactName]),
	}
	var missing []string
	for key, v := range map[string]string{
		MetaPrincipalID:  intent.PrincipalID,
		MetaDate:         intent.Date,
		MetaTimeSlot:     intent.TimeSlot,
		MetaContactEmail: intent.ContactEmail,
	} {
		if v == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return model.PendingBooking{}, fmt.Errorf("missing metadata %s", strings.Join(missing, ","))
	}
	if _, err := time.Parse(model.DateLayout, intent.Date); err != nil {
		return model.PendingBooking{}, fmt.Errorf("invalid metadata %s %q", MetaDate, intent.Date)
	}
	if len(intent.TimeSlot) > model.MaxTimeSlotLength {
		return model.PendingBooking{}, fmt.Errorf("invalid metadata %s: too long", MetaTimeSlot)
	}
	if utf8.RuneCountInString(intent.Notes) > MaxMetadataValue {
		return model.PendingBooking{}, fmt.Errorf("invalid metadata %s: too long", MetaNotes)
	}
	if intent.ConsultationType == "" {
		intent.ConsultationType = model.DefaultConsultationType
	}
	if len(intent.ConsultationType) > model.MaxConsultationTypeLength {
		return model.PendingBooking{}, fmt.Errorf("invalid metadata %s: too long", MetaConsultationType)
	}
	return intent, nil
}
