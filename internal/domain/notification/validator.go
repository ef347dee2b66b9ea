package notification

import (
	"fmt"
	"regexp"

	"herald/internal/common"
)

// SMSBodyLimit is the maximum rendered SMS body length, in characters.
// The limit applies after template rendering; oversized bodies are rejected,
// never truncated.
const SMSBodyLimit = 160

// Device token length bounds accepted by the push gateway. Enforced
// separately from the charset regexp: regexp repeat counts cap at 1000.
const (
	DeviceTokenMinLen = 16
	DeviceTokenMaxLen = 4096
)

var (
	emailRe = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

	// E.164: leading +, up to 15 digits, no leading zero.
	phoneRe = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

	// Opaque device token charset accepted by the push gateway.
	deviceTokenRe = regexp.MustCompile(`^[A-Za-z0-9_:.\-]+$`)
)

// Validate applies channel-specific structural constraints to rendered
// content. All violations are collected and returned together; an empty
// slice means the input is valid.
func Validate(channel Channel, recipient, subject, body string) []common.FieldError {
	var errs []common.FieldError

	switch channel {
	case ChannelEmail:
		if !emailRe.MatchString(recipient) {
			errs = append(errs, common.FieldError{Field: "recipient", Message: "must be a valid email address"})
		}
		if subject == "" {
			errs = append(errs, common.FieldError{Field: "subject", Message: "is required for email notifications"})
		}
		if body == "" {
			errs = append(errs, common.FieldError{Field: "body", Message: "is required"})
		}

	case ChannelSMS:
		if !phoneRe.MatchString(recipient) {
			errs = append(errs, common.FieldError{Field: "recipient", Message: "must be an E.164 phone number"})
		}
		if body == "" {
			errs = append(errs, common.FieldError{Field: "body", Message: "is required"})
		} else if n := len([]rune(body)); n > SMSBodyLimit {
			errs = append(errs, common.FieldError{
				Field:   "body",
				Message: fmt.Sprintf("too long: %d characters, limit is %d", n, SMSBodyLimit),
			})
		}

	case ChannelPush:
		if n := len(recipient); n < DeviceTokenMinLen || n > DeviceTokenMaxLen || !deviceTokenRe.MatchString(recipient) {
			errs = append(errs, common.FieldError{Field: "recipient", Message: "must be a valid device token"})
		}
		if body == "" {
			errs = append(errs, common.FieldError{Field: "body", Message: "is required"})
		}

	default:
		errs = append(errs, common.FieldError{Field: "channel", Message: fmt.Sprintf("unknown channel: %q", channel)})
	}

	return errs
}
