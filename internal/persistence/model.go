package persistence

import "github.com/MarcoPoloResearchLab/deckelo/internal/tracker"

// DeckRow stores one deck. Position keeps the insertion order of the store.
type DeckRow struct {
	ID       string `gorm:"column:id;primaryKey;size:190;not null"`
	Position int    `gorm:"column:position;not null;index:idx_decks_position"`
	Name     string `gorm:"column:name;type:text;not null"`
	Hero     string `gorm:"column:hero;size:190;not null"`
	Elo      int    `gorm:"column:elo;not null"`
	Wins     int    `gorm:"column:wins;not null;default:0"`
	Losses   int    `gorm:"column:losses;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (DeckRow) TableName() string {
	return "decks"
}

// MatchRow stores one canonical match. Sequence 0 is the most recent match.
type MatchRow struct {
	ID          string `gorm:"column:id;primaryKey;size:190;not null"`
	Sequence    int    `gorm:"column:sequence;not null;default:0;index:idx_matches_sequence"`
	Date        string `gorm:"column:date;size:32;not null"`
	Deck1ID     string `gorm:"column:deck1_id;size:190;not null"`
	Deck2ID     string `gorm:"column:deck2_id;size:190;not null"`
	Deck1OldElo int    `gorm:"column:deck1_old_elo;not null"`
	Deck2OldElo int    `gorm:"column:deck2_old_elo;not null"`
	WinnerID    string `gorm:"column:winner_id;size:190;not null"`
}

// TableName provides the explicit table binding for GORM.
func (MatchRow) TableName() string {
	return "matches"
}

func deckRows(decks []tracker.Deck) []DeckRow {
	rows := make([]DeckRow, len(decks))
	for index, deck := range decks {
		rows[index] = DeckRow{
			ID:       deck.ID,
			Position: index,
			Name:     deck.Name,
			Hero:     deck.Hero,
			Elo:      deck.Elo,
			Wins:     deck.Wins,
			Losses:   deck.Losses,
		}
	}
	return rows
}

func matchRows(matches []tracker.Match) []MatchRow {
	rows := make([]MatchRow, len(matches))
	for index, match := range matches {
		rows[index] = MatchRow{
			ID:          match.ID,
			Sequence:    index,
			Date:        match.Date,
			Deck1ID:     match.Deck1ID,
			Deck2ID:     match.Deck2ID,
			Deck1OldElo: match.Deck1OldElo,
			Deck2OldElo: match.Deck2OldElo,
			WinnerID:    match.WinnerID,
		}
	}
	return rows
}

func (row DeckRow) deck() tracker.Deck {
	return tracker.Deck{
		ID:     row.ID,
		Name:   row.Name,
		Hero:   row.Hero,
		Elo:    row.Elo,
		Wins:   row.Wins,
		Losses: row.Losses,
	}
}

func (row MatchRow) match() tracker.Match {
	return tracker.Match{
		ID:          row.ID,
		Date:        row.Date,
		Deck1ID:     row.Deck1ID,
		Deck2ID:     row.Deck2ID,
		Deck1OldElo: row.Deck1OldElo,
		Deck2OldElo: row.Deck2OldElo,
		WinnerID:    row.WinnerID,
	}
}
