package models

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ChallengeQuestion is a trivia question used both for the admission gate
// and for in-queue games. Questions are content, not logic; the queue core
// only consumes the correct answer index and the difficulty.
type ChallengeQuestion struct {
	ID            string     `json:"id"`
	ArtistID      string     `json:"artist_id"`
	Question      string     `json:"question"`
	Options       []string   `json:"options"`
	CorrectAnswer int        `json:"-"`
	Difficulty    Difficulty `json:"difficulty"`
	Category      string     `json:"category,omitempty"`
}

// PollQuestion has no correct answer; answering at all is what counts.
type PollQuestion struct {
	ID       string   `json:"id"`
	ArtistID string   `json:"artist_id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}
