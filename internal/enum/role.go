package enum

// RecipientRole records whether the monitored mailbox was addressed
// directly or only copied on the message.
type RecipientRole string

const (
	RoleTo      RecipientRole = "TO"
	RoleCc      RecipientRole = "CC"
	RoleUnknown RecipientRole = "UNKNOWN"
)

func (r RecipientRole) String() string {
	return string(r)
}
