package tracker

// Heroes lists the heroes a deck can be registered with.
var Heroes = []string{
	"Arakni",
	"Aurora",
	"Azalea",
	"Benji",
	"Betsy",
	"Boltyn",
	"Bravo",
	"Briar",
	"Chane",
	"Cindra",
	"Dash",
	"Dorinthea",
	"Dromai",
	"Enigma",
	"Fai",
	"Fang",
	"Florian",
	"Gravy Bones",
	"Iyslander",
	"Jarl Vetreidi",
	"Kano",
	"Kassai",
	"Katsu",
	"Kayo",
	"Levia",
	"Lexi",
	"Marlynn",
	"Maxx Nitro",
	"Nuu",
	"Oldhim",
	"Olympia",
	"Prism",
	"Puffin",
	"Rhinar",
	"Riptide",
	"Teklovossen",
	"Uzuri",
	"Verdance",
	"Victor Goldmane",
	"Viserai",
	"Zen",
}

// IsHero reports whether name is one of the registered heroes.
func IsHero(name string) bool {
	for _, hero := range Heroes {
		if hero == name {
			return true
		}
	}
	return false
}
