package ai

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

func TestBuildAttachments_Crypto(t *testing.T) {
	tests := []struct {
		name    string
		details map[string]interface{}
		want    string
	}{
		{"caesar by default", nil, "synt{nop}"},
		{"caesar named", map[string]interface{}{"encryption_method": "caesar", "ciphertext": "ignored"}, "synt{nop}"},
		{"other cipher uses reply", map[string]interface{}{"encryption_method": "Vigenere", "ciphertext": "xyz"}, "xyz"},
		{"other cipher without ciphertext", map[string]interface{}{"encryption_method": "RSA"}, "flag{abc}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := BuildAttachments(domain.CategoryCrypto, &GeneratedChallenge{Details: tt.details}, "flag{abc}")
			require.NoError(t, err)
			require.Len(t, files, 1)
			assert.Equal(t, "cipher.txt", files[0].Name)
			assert.Equal(t, domain.AttachmentText, files[0].Encoding)
			assert.Equal(t, tt.want, files[0].Content)
		})
	}
}

func TestBuildAttachments_MiscImage(t *testing.T) {
	files, err := BuildAttachments(domain.CategoryMisc, &GeneratedChallenge{}, "flag{hidden}")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, domain.AttachmentBase64, files[0].Encoding)

	img, err := base64.StdEncoding.DecodeString(files[0].Content)
	require.NoError(t, err)
	msg, err := ReadLSB(img)
	require.NoError(t, err)
	assert.Equal(t, "flag{hidden}", msg)

	files, err = BuildAttachments(domain.CategoryMisc, &GeneratedChallenge{
		Details: map[string]interface{}{"hide_method": "zip password", "file_type": "archive"},
	}, "flag{hidden}")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestBuildAttachments_KeepsReplyAttachments(t *testing.T) {
	generated := &GeneratedChallenge{Attachments: attachmentList{
		{Name: "cipher.txt", Content: "duplicate"},
		{Description: "server log"},
		{Name: "key.pem", Content: "-----BEGIN-----"},
	}}

	files, err := BuildAttachments(domain.CategoryCrypto, generated, "flag{abc}")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "synt{nop}", files[0].Content)
	assert.Equal(t, "attachment_2", files[1].Name)
	assert.Empty(t, files[1].Encoding)
	assert.Equal(t, "key.pem", files[2].Name)
	assert.Equal(t, domain.AttachmentText, files[2].Encoding)
}
