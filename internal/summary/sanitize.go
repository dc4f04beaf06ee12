package summary

import "regexp"

const maxPromptInputLength = 5000

// Narrative answers are interpolated into the model prompt, so common
// instruction-injection phrasings are replaced before they get there. The
// XML-ish tag strip keeps user text from closing the data envelope.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|above|prior|earlier|system)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|above|prior|earlier|system)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|above|prior|earlier|system)`),
	regexp.MustCompile(`(?i)system\s*prompt`),
	regexp.MustCompile(`(?i)you\s+are\s+(now|a|an)`),
	regexp.MustCompile(`(?i)act\s+as\s+(if|a|an)`),
	regexp.MustCompile(`(?i)pretend\s+(to\s+be|you)`),
	regexp.MustCompile(`(?i)roleplay`),
	regexp.MustCompile(`(?i)jailbreak`),
}

var tagPattern = regexp.MustCompile(`(?i)</?[a-z_]+>`)

// sanitizeForPrompt neutralizes injection phrasings and caps length. The
// cap runs last so a replacement cannot push text past it.
func sanitizeForPrompt(input string) string {
	if input == "" {
		return ""
	}
	for _, p := range injectionPatterns {
		input = p.ReplaceAllString(input, "[filtered]")
	}
	input = tagPattern.ReplaceAllString(input, "")
	if len(input) > maxPromptInputLength {
		input = input[:maxPromptInputLength]
	}
	return input
}
