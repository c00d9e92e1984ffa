package room

import "strings"

// Persona category identifiers understood by the video-session provider.
const (
	PersonaTechnology = "persona-technology"
	PersonaBusiness   = "persona-business"
	PersonaScience    = "persona-science"
	PersonaArts       = "persona-arts"
	PersonaLanguage   = "persona-language"
	PersonaDefault    = "persona-default"
)

// personaKeywords maps topic keywords to persona categories. Matching is
// case-insensitive substring matching against the course topic; first
// category with a hit wins, in the order listed here.
var personaKeywords = []struct {
	persona  string
	keywords []string
}{
	{PersonaTechnology, []string{"programming", "software", "computer", "coding", "engineering", "technology", "data", "cloud", "security"}},
	{PersonaBusiness, []string{"business", "management", "marketing", "finance", "economics", "entrepreneur", "accounting"}},
	{PersonaScience, []string{"physics", "chemistry", "biology", "science", "mathematics", "astronomy", "geology"}},
	{PersonaArts, []string{"art", "music", "design", "painting", "photography", "film", "theater"}},
	{PersonaLanguage, []string{"english", "spanish", "french", "german", "language", "writing", "literature"}},
}

// PersonaForTopic selects the persona category for a course topic,
// falling back to the default persona when no keyword matches.
func PersonaForTopic(topic string) string {
	t := strings.ToLower(topic)
	for _, pk := range personaKeywords {
		for _, kw := range pk.keywords {
			if strings.Contains(t, kw) {
				return pk.persona
			}
		}
	}
	return PersonaDefault
}
