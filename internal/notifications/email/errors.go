// Package email delivers damage reports by email. It renders the embedded
// report templates, attaches the area's artifacts and sends through an
// external.EmailProvider.
package email

import (
	"errors"

	"roofalert/internal/types"
)

// ErrRecipientBlocked indicates the email provider has the recipient on a
// suppression list or has blocked delivery. Retrying will not help.
var ErrRecipientBlocked = errors.New("recipient blocked by provider")

// IsBlocklistError checks whether an error indicates the recipient is blocked
// by the email provider, either through ErrRecipientBlocked or an AppError
// carrying ErrCodeEmailBlocked.
func IsBlocklistError(err error) bool {
	if errors.Is(err, ErrRecipientBlocked) {
		return true
	}
	return types.CodeOf(err) == types.ErrCodeEmailBlocked
}
