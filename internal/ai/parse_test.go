package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

func TestParseChallenge_FencedJSON(t *testing.T) {
	raw := "Here you go:\n```json\n{\"title\": \"Rot Party\", \"description\": \"Decode it\", \"flag\": \"flag{abc}\", \"hints\": [\"rot\"], \"solution\": \"rot13\", \"ciphertext\": \"synt{nop}\"}\n```\nEnjoy {not json}"

	got := ParseChallenge(raw, domain.CategoryCrypto, "flag{abc}")

	assert.False(t, got.Degraded)
	assert.Equal(t, "Rot Party", got.Title)
	assert.Equal(t, "Decode it", got.Description)
	assert.Equal(t, []string{"rot"}, []string(got.Hints))
	assert.Equal(t, "synt{nop}", got.DetailString("ciphertext"))
	assert.NotContains(t, got.Details, "title")
	assert.NotContains(t, got.Details, "flag")
}

func TestParseChallenge_BareObjectAndNameFallback(t *testing.T) {
	raw := `Sure! {"name": "Stack Smash", "description": "overflow", "hints": "look at gets"} done`

	got := ParseChallenge(raw, domain.CategoryPwn, "")

	assert.False(t, got.Degraded)
	assert.Equal(t, "Stack Smash", got.Title)
	assert.Equal(t, []string{"look at gets"}, []string(got.Hints))
	assert.Nil(t, got.Details)
}

func TestParseChallenge_Fallback(t *testing.T) {
	t.Run("generic", func(t *testing.T) {
		got := ParseChallenge("just prose", domain.CategoryReverse, "flag{x}")

		assert.True(t, got.Degraded)
		assert.Equal(t, "Reverse Challenge", got.Title)
		assert.Equal(t, "just prose", got.Description)
		assert.NotNil(t, got.Hints)
		assert.Empty(t, got.Hints)
		assert.Nil(t, got.Details)
	})

	t.Run("crypto keeps the raw description", func(t *testing.T) {
		got := ParseChallenge("no json here", domain.CategoryCrypto, "flag{abc}")

		assert.True(t, got.Degraded)
		assert.Equal(t, "no json here", got.Description)
		assert.Len(t, got.Hints, 1)
		assert.Equal(t, "synt{nop}", got.DetailString("ciphertext"))
		assert.Equal(t, CipherCaesar, got.DetailString("encryption_method"))
	})

	t.Run("misc defaults to an LSB image", func(t *testing.T) {
		got := ParseChallenge("no json here", domain.CategoryMisc, "flag{abc}")

		assert.True(t, got.Degraded)
		assert.Equal(t, "no json here", got.Description)
		assert.Equal(t, HideLSB, got.DetailString("hide_method"))
		assert.Equal(t, FileTypeImage, got.DetailString("file_type"))
	})

	t.Run("object without title or description", func(t *testing.T) {
		got := ParseChallenge(`{"flag": "flag{x}"}`, domain.CategoryReverse, "")
		assert.True(t, got.Degraded)
	})
}

func TestParseChallenge_Attachments(t *testing.T) {
	t.Run("descriptions", func(t *testing.T) {
		got := ParseChallenge(`{"title": "T", "attachments": ["a pcap of the login", ""]}`, domain.CategoryPwn, "")

		require.Len(t, got.Attachments, 1)
		assert.Equal(t, "attachment_1", got.Attachments[0].Name)
		assert.Equal(t, "a pcap of the login", got.Attachments[0].Description)
		assert.Empty(t, got.Attachments[0].Content)
	})

	t.Run("objects", func(t *testing.T) {
		got := ParseChallenge(`{"title": "T", "attachments": [{"name": "notes.txt", "content": "hello"}]}`, domain.CategoryPwn, "")

		require.Len(t, got.Attachments, 1)
		assert.Equal(t, "notes.txt", got.Attachments[0].Name)
		assert.Equal(t, "hello", got.Attachments[0].Content)
	})
}

func TestParseChallenge_WebCodeBlocks(t *testing.T) {
	raw := "```json\n{\"title\": \"Login\", \"description\": \"sqli\"}\n```\n" +
		"```python\nfrom flask import Flask\napp = Flask(__name__)\n```\n" +
		"```html\n<h1>hi</h1>\n```\n" +
		"```dockerfile\nFROM python:3.11-slim\n```\n"

	got := ParseChallenge(raw, domain.CategoryWeb, "")

	assert.Equal(t, "Login", got.Title)
	assert.Equal(t, "from flask import Flask\napp = Flask(__name__)", got.AppSource)
	assert.Equal(t, "<h1>hi</h1>", got.IndexHTML)
	assert.Equal(t, "FROM python:3.11-slim", got.Dockerfile)
}

func TestExtractCodeBlocks_Unterminated(t *testing.T) {
	blocks := ExtractCodeBlocks("```python\nprint(1)\n")
	assert.Empty(t, blocks.App)
}

func TestNormalizeFlag(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"flag{done}", "flag{done}"},
		{"  flag{spaced}\n", "flag{spaced}"},
		{"abc123", "flag{abc123}"},
		{"CTF{x}", "flag{CTF{x}}"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeFlag(tt.in))
		})
	}
}

func TestCaesar(t *testing.T) {
	assert.Equal(t, "Uryyb, Jbeyq!", Caesar("Hello, World!", 13))
	assert.Equal(t, "Hello, World!", Caesar(Caesar("Hello, World!", 13), 13))
	assert.Equal(t, "zab", Caesar("abc", -1))
}

func TestBuildChallengePrompt(t *testing.T) {
	web := BuildChallengePrompt(ChallengeBrief{
		Category:   domain.CategoryWeb,
		Difficulty: domain.DifficultyHard,
		Flag:       "flag{w3b}",
	})
	assert.Contains(t, web, "Hard difficulty Web")
	assert.Contains(t, web, "flag{w3b}")
	assert.Contains(t, web, "0.0.0.0:5000")
	assert.Contains(t, web, "Flask")

	crypto := BuildChallengePrompt(ChallengeBrief{
		Category:   domain.CategoryCrypto,
		Difficulty: domain.DifficultyEasy,
		Algorithm:  "Vigenere",
	})
	assert.Contains(t, crypto, "Vigenere")
	assert.Contains(t, crypto, "ciphertext")

	assert.Contains(t, BuildFlagPrompt("a maze", domain.CategoryMisc), "a maze")
}
