package domain

// ReactionTally is the persisted count of one reaction symbol on one message.
// Me reports whether the bot's own reaction is included in Count. Tallies are
// written as reaction events arrive, so an open ballot survives a restart.
type ReactionTally struct {
	ChannelID string
	MessageID string
	Symbol    string
	Count     int
	Me        bool
}
