package service

// settlement classifies how a declareWinner call must settle a session,
// given which choices are present and whether the deadline has passed.
type settlement int

const (
	// settleIncomplete rejects the call; choices are missing and the
	// deadline has not passed yet.
	settleIncomplete settlement = iota
	// settleBoth resolves the two submitted choices against each other.
	settleBoth
	// settleForfeitOne awards the pot to playerOne, the only one who played.
	settleForfeitOne
	// settleForfeitTwo awards the pot to playerTwo, the only one who played.
	settleForfeitTwo
	// settleExpire closes a session nobody played; no escrow exists.
	settleExpire
)

// classifySettlement decides the settlement path. Before the deadline only
// a complete session may settle; after it, whoever played wins by
// forfeiture, and an untouched session simply expires.
func classifySettlement(hasChoiceOne, hasChoiceTwo, pastDeadline bool) settlement {
	switch {
	case hasChoiceOne && hasChoiceTwo:
		return settleBoth
	case !pastDeadline:
		return settleIncomplete
	case hasChoiceOne:
		return settleForfeitOne
	case hasChoiceTwo:
		return settleForfeitTwo
	default:
		return settleExpire
	}
}
