// Package game implements the pure resolution rules for the five-choice
// hand game (rock, paper, scissors, lizard, spock).
package game

// Choices are numbered 1..5.
const (
	Rock     = 1
	Paper    = 2
	Scissors = 3
	Lizard   = 4
	Spock    = 5

	MinChoice = Rock
	MaxChoice = Spock
)

// beats holds, for each choice, the two choices it defeats.
// Standard rock-paper-scissors-lizard-spock cycle.
var beats = map[int][2]int{
	Rock:     {Scissors, Lizard},
	Paper:    {Rock, Spock},
	Scissors: {Paper, Lizard},
	Lizard:   {Spock, Paper},
	Spock:    {Scissors, Rock},
}

// choiceNames for logging and display.
var choiceNames = map[int]string{
	Rock:     "rock",
	Paper:    "paper",
	Scissors: "scissors",
	Lizard:   "lizard",
	Spock:    "spock",
}

// ValidChoice reports whether c is inside [1,5].
func ValidChoice(c int) bool {
	return c >= MinChoice && c <= MaxChoice
}

// ChoiceName returns the display name of a choice, or "unknown".
func ChoiceName(c int) string {
	if name, ok := choiceNames[c]; ok {
		return name
	}
	return "unknown"
}

// Beats reports whether choice a defeats choice b.
// Both arguments must be valid choices.
func Beats(a, b int) bool {
	pair := beats[a]
	return pair[0] == b || pair[1] == b
}

// Verdict is the outcome of comparing two choices.
type Verdict int

const (
	TieGame Verdict = iota
	PlayerOneWins
	PlayerTwoWins
)

// Resolve compares playerOne's choice a against playerTwo's choice b.
// Equal choices tie; otherwise the beats relation decides.
func Resolve(a, b int) Verdict {
	if a == b {
		return TieGame
	}
	if Beats(a, b) {
		return PlayerOneWins
	}
	return PlayerTwoWins
}
