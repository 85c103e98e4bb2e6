package challenge

import "strings"

const DefaultCategory = "Sports"

var exactCategories = map[string]string{
	"EA Sports UFC 6": "UFC",
	"EA Sports UFC 5": "UFC",
	"EA UFC 6":        "UFC",
	"EA UFC 5":        "UFC",

	"Madden NFL 26": "Football",
	"Madden NFL 24": "Football",
	"Retro Bowl":    "Football",
	"Axis Football": "Football",

	"Chess.com":     "BoardGames",
	"Lichess":       "BoardGames",
	"8 Ball Pool":   "BoardGames",
	"Checkers":      "BoardGames",
	"Backgammon":    "BoardGames",
	"Monopoly Plus": "BoardGames",

	"NBA 2K25": "Sports",
	"FIFA 24":  "Sports",

	"Street Fighter 6": "Fighting",
	"Tekken 8":         "Fighting",
	"Mortal Kombat 1":  "Fighting",

	"Call of Duty": "Shooting",
	"Valorant":     "Shooting",

	"Forza Horizon":    "Racing",
	"Gran Turismo 7":   "Racing",
	"Forza Motorsport": "Racing",
}

// keyword fallbacks, checked in order
var keywordCategories = []struct {
	category string
	keywords []string
}{
	{"UFC", []string{"ufc"}},
	{"Football", []string{"madden", "nfl", "retro bowl", "axis football", "mutant football"}},
	{"BoardGames", []string{"chess", "pool", "bowling", "checkers", "backgammon", "monopoly", "uno", "scrabble"}},
	{"Sports", []string{"nba", "fifa", "fc", "sports"}},
	{"Fighting", []string{"street fighter", "tekken", "mortal kombat", "guilty gear", "fighting"}},
	{"Shooting", []string{"call of duty", "cod", "valorant", "shooting"}},
	{"Racing", []string{"forza", "gran turismo", "f1", "mario kart", "racing"}},
}

// CategoryOf derives the leaderboard category from the game name.
func CategoryOf(game string) string {
	game = strings.TrimSpace(game)
	if game == "" || game == "Gaming" || game == "Other/Custom" {
		return DefaultCategory
	}

	if category, ok := exactCategories[game]; ok {
		return category
	}

	lower := strings.ToLower(game)
	for _, entry := range keywordCategories {
		for _, keyword := range entry.keywords {
			if strings.Contains(lower, keyword) {
				return entry.category
			}
		}
	}

	return DefaultCategory
}
