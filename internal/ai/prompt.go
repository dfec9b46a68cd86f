package ai

import (
	"fmt"
	"strings"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

// ChallengeBrief is everything a challenge prompt is built from
type ChallengeBrief struct {
	Category     domain.Category
	Difficulty   domain.Difficulty
	Requirements string
	// Flag, when set, is handed to the model verbatim; it is never asked to invent one.
	Flag          string
	Theme         string
	Algorithm     string
	Vulnerability string
	Framework     string
}

// BuildChallengePrompt renders the generation prompt for a category
func BuildChallengePrompt(brief ChallengeBrief) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Design a %s difficulty %s CTF challenge.\n\n", brief.Difficulty, brief.Category)
	b.WriteString("Requirements:\n")
	writeLine(&b, "Theme", orDefault(brief.Theme, "any"))
	if brief.Requirements != "" {
		writeLine(&b, "Details", brief.Requirements)
	}
	if brief.Flag != "" {
		writeLine(&b, "Flag (use exactly this value)", brief.Flag)
	}

	switch brief.Category {
	case domain.CategoryCrypto:
		writeLine(&b, "Cipher or algorithm", orDefault(brief.Algorithm, "choose a suitable one"))
		b.WriteString(`
Reply with a single JSON object:
{
  "title": "challenge title",
  "description": "story and the encrypted material the player receives",
  "encryption_method": "the algorithm used",
  "key_info": "key material or hints about it",
  "ciphertext": "the encrypted flag",
  "hints": ["hint 1", "hint 2"],
  "solution": "step by step solution"
}
`)
	case domain.CategoryWeb:
		writeLine(&b, "Vulnerability", orDefault(brief.Vulnerability, "choose a suitable one"))
		writeLine(&b, "Framework", orDefault(brief.Framework, "Flask"))
		b.WriteString(`
The application must listen on 0.0.0.0:5000 and read the flag from the FLAG environment variable.
Reply with a JSON metadata block followed by the source files, each in its own fenced block:

` + "```json" + `
{
  "title": "challenge title",
  "description": "story and entry point",
  "vulnerability_type": "vulnerability class",
  "flag_location": "where the flag is hidden",
  "hints": ["hint 1"],
  "solution": "step by step solution"
}
` + "```" + `

` + "```python" + `
# app.py
` + "```" + `

` + "```html" + `
<!-- templates/index.html -->
` + "```" + `

` + "```dockerfile" + `
# Dockerfile
` + "```" + `
`)
	default:
		var extra string
		if brief.Category == domain.CategoryMisc {
			writeLine(&b, "Hiding technique", orDefault(brief.Algorithm, "choose a suitable one"))
			extra = `  "hide_method": "how the flag is hidden, for example LSB steganography",
  "file_type": "image, archive or text",
`
		}
		b.WriteString(`
Reply with a single JSON object:
{
  "title": "challenge title",
  "description": "story and what the player is given",
  "flag": "the flag",
  "hints": ["hint 1", "hint 2"],
  "solution": "step by step solution",
  "dockerfile": "Dockerfile content if a runtime environment is needed, otherwise empty",
` + extra + `  "attachments": ["description of each attachment"]
}
`)
	}

	b.WriteString("\nThe challenge must be educational and follow common CTF conventions.\n")
	return b.String()
}

// BuildFlagPrompt asks for a flag that fits a challenge description
func BuildFlagPrompt(description string, category domain.Category) string {
	return fmt.Sprintf(`Create a flag for the following CTF challenge.
Category: %s
Description: %s

Use the format flag{content}, where the content relates to the challenge.
Reply with the flag only.`, category, description)
}

func writeLine(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
