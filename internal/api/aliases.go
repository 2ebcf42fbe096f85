package api

// classicNames seeds alias suggestions at registration. Deterministic order:
// the first free name wins, so two racing registrations resolve the same way
// every time.
var classicNames = []string{
	"alice", "bob", "charlie", "dave", "erin", "frank", "grace", "heidi",
	"ivan", "judy", "mallory", "niaj", "olivia", "peggy", "quentin", "rupert",
	"sybil", "trent", "ursula", "victor", "walter", "xena", "yara", "zane",
}

// aliasSuggestions returns candidates to try after preferred, optionally
// constrained to a prefix.
func aliasSuggestions(prefix string) []string {
	if prefix == "" {
		return classicNames
	}
	var out []string
	for _, name := range classicNames {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			out = append(out, name)
		}
	}
	// Numbered fallbacks keep the prefix when no classic name matches.
	for i := 2; i <= 9; i++ {
		out = append(out, prefix+"-"+string(rune('0'+i)))
	}
	return out
}
