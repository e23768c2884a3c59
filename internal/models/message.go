package models

// Recipient is a resolved delivery target. Virtual recipients carry only an
// address synthesized from event data; everything else comes from the users
// table.
type Recipient struct {
	UserID   uint64
	Name     string
	Email    string
	Phone    string
	Timezone string
	Virtual  bool
}

// Address returns the identifier delivery logs key on: the email for virtual
// recipients and concrete users alike, falling back to the phone number.
func (r Recipient) Address() string {
	if r.Email != "" {
		return r.Email
	}
	return r.Phone
}

// Message is one rendered notification bound for one recipient over one
// channel. PlainBody is the tag-stripped form used by plain-text transports.
type Message struct {
	Subject   string
	Body      string
	PlainBody string
	Channel   string
	Recipient Recipient
}
