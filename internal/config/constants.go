package config

import "time"

const (
	// Watcher poll interval
	PollInterval = 3 * time.Second

	// Approval reaction per task type
	ApproveStandardSymbol = "✅"
	ApproveBonusSymbol    = "🏅"
)

// BallotSymbols is the fixed ordered set of single-choice voting reactions.
// A vote never has more options than this set has symbols.
var BallotSymbols = []string{
	"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣", "7️⃣", "8️⃣", "9️⃣",
}

// BallotIndex returns the option index of a ballot symbol, or -1 when the
// symbol is not a ballot.
func BallotIndex(symbol string) int {
	for i, s := range BallotSymbols {
		if s == symbol {
			return i
		}
	}
	return -1
}
