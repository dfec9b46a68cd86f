package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

// GeneratedChallenge is a model reply decoded into challenge fields
type GeneratedChallenge struct {
	Title       string         `json:"title"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Hints       stringList     `json:"hints"`
	Solution    string         `json:"solution"`
	Dockerfile  string         `json:"dockerfile"`
	Attachments attachmentList `json:"attachments"`

	// Details holds the reply keys that have no challenge field, such as
	// encryption_method or hide_method
	Details map[string]interface{} `json:"-"`

	// Source files lifted from fenced code blocks of web replies
	AppSource string `json:"-"`
	IndexHTML string `json:"-"`

	// Degraded is set when the reply was unusable and the fallback structure was substituted
	Degraded bool `json:"-"`
}

// DetailString returns a string detail, or "" when absent
func (g *GeneratedChallenge) DetailString(key string) string {
	v, _ := g.Details[key].(string)
	return strings.TrimSpace(v)
}

// stringList accepts either a JSON array of strings or a single string
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	if single != "" {
		*s = []string{single}
	}
	return nil
}

// attachmentList accepts attachment objects or plain descriptions. A
// description becomes a content-less attachment with a numbered name.
type attachmentList []domain.Attachment

func (a *attachmentList) UnmarshalJSON(data []byte) error {
	var objects []domain.Attachment
	if err := json.Unmarshal(data, &objects); err == nil {
		*a = objects
		return nil
	}
	var described stringList
	if err := json.Unmarshal(data, &described); err != nil {
		return err
	}
	out := make(attachmentList, 0, len(described))
	for i, d := range described {
		if strings.TrimSpace(d) == "" {
			continue
		}
		out = append(out, domain.Attachment{
			Name:        fmt.Sprintf("attachment_%d", i+1),
			Description: d,
		})
	}
	*a = out
	return nil
}

// ParseChallenge decodes a generation reply. A reply without a usable JSON
// object degrades to a fallback carrying the raw text as the description.
// flag is the value the prompt supplied; the crypto fallback encrypts it.
func ParseChallenge(raw string, category domain.Category, flag string) *GeneratedChallenge {
	var result *GeneratedChallenge
	if parsed, ok := decodeChallengeJSON(raw); ok {
		result = parsed
	} else {
		result = fallbackChallenge(raw, category, flag)
	}

	if category == domain.CategoryWeb {
		blocks := ExtractCodeBlocks(raw)
		result.AppSource = blocks.App
		result.IndexHTML = blocks.IndexHTML
		if blocks.Dockerfile != "" {
			result.Dockerfile = blocks.Dockerfile
		}
	}
	if result.Hints == nil {
		result.Hints = stringList{}
	}
	return result
}

func decodeChallengeJSON(raw string) (*GeneratedChallenge, bool) {
	payload, ok := extractJSON(raw)
	if !ok {
		return nil, false
	}

	var out GeneratedChallenge
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, false
	}
	if out.Title == "" {
		out.Title = out.Name
	}
	if out.Title == "" && out.Description == "" {
		return nil, false
	}

	var details map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &details); err == nil {
		// a model-chosen flag is never kept
		for _, known := range []string{"title", "name", "description", "flag", "hints", "solution", "dockerfile", "attachments"} {
			delete(details, known)
		}
		if len(details) > 0 {
			out.Details = details
		}
	}
	return &out, true
}

func fallbackChallenge(raw string, category domain.Category, flag string) *GeneratedChallenge {
	out := &GeneratedChallenge{
		Title:       string(category) + " Challenge",
		Description: raw,
		Hints:       stringList{},
		Solution:    "See the challenge description",
		Degraded:    true,
	}
	switch category {
	case domain.CategoryCrypto:
		out.Hints = stringList{"This is a simple substitution cipher"}
		out.Solution = "Decrypt the ciphertext with a Caesar shift of 13"
		out.Details = map[string]interface{}{
			"encryption_method": CipherCaesar,
			"key_info":          "shift 13",
		}
		if flag != "" {
			out.Details["ciphertext"] = Caesar(flag, 13)
		}
	case domain.CategoryMisc:
		out.Hints = stringList{"Look closely at the file"}
		out.Solution = "Extract the hidden data with a suitable tool"
		out.Details = map[string]interface{}{
			"hide_method": HideLSB,
			"file_type":   FileTypeImage,
		}
	}
	return out
}

// extractJSON returns the JSON object in a reply. A fenced json block wins;
// otherwise the span from the first '{' to the last '}' is used.
func extractJSON(raw string) (string, bool) {
	if body, ok := fencedBlock(raw, "json"); ok {
		raw = body
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

func fencedBlock(raw, lang string) (string, bool) {
	open := "```" + lang
	i := strings.Index(raw, open)
	if i == -1 {
		return "", false
	}
	rest := raw[i+len(open):]
	j := strings.Index(rest, "```")
	if j == -1 {
		return "", false
	}
	return rest[:j], true
}

// CodeBlocks are the source files found in a web challenge reply
type CodeBlocks struct {
	App        string
	IndexHTML  string
	Dockerfile string
}

// ExtractCodeBlocks scans a reply line by line for python, html and
// dockerfile fences. Unterminated blocks are dropped.
func ExtractCodeBlocks(raw string) CodeBlocks {
	var (
		blocks  CodeBlocks
		current *string
		lines   []string
	)
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		switch {
		case current == nil && strings.HasPrefix(lower, "```python"):
			current, lines = &blocks.App, nil
		case current == nil && strings.HasPrefix(lower, "```html"):
			current, lines = &blocks.IndexHTML, nil
		case current == nil && strings.HasPrefix(lower, "```dockerfile"):
			current, lines = &blocks.Dockerfile, nil
		case current != nil && strings.HasPrefix(trimmed, "```"):
			*current = strings.TrimSpace(strings.Join(lines, "\n"))
			current = nil
		case current != nil:
			lines = append(lines, line)
		}
	}
	return blocks
}

// NormalizeFlag wraps a model reply in flag{...} unless it already is one
func NormalizeFlag(raw string) string {
	flag := strings.TrimSpace(raw)
	if strings.HasPrefix(flag, "flag{") && strings.HasSuffix(flag, "}") {
		return flag
	}
	return "flag{" + flag + "}"
}

// Caesar shifts ASCII letters by shift places, leaving everything else intact
func Caesar(text string, shift int) string {
	shift = ((shift % 26) + 26) % 26
	out := []byte(text)
	for i, c := range out {
		switch {
		case c >= 'a' && c <= 'z':
			out[i] = 'a' + (c-'a'+byte(shift))%26
		case c >= 'A' && c <= 'Z':
			out[i] = 'A' + (c-'A'+byte(shift))%26
		}
	}
	return string(out)
}
