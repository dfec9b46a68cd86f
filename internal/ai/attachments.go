package ai

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

// Defaults assumed when a reply leaves the method unstated
const (
	CipherCaesar  = "Caesar"
	HideLSB       = "LSB"
	FileTypeImage = "image"
)

const (
	cipherFileName = "cipher.txt"
	lsbFileName    = "hidden_message.png"
	lsbWidth       = 400
	lsbHeight      = 300
)

// lsbTerminator marks the end of an embedded message
const lsbTerminator = "1111111111111110"

var lsbBackground = color.RGBA{R: 173, G: 216, B: 230, A: 255}

// BuildAttachments returns the files a synthesized challenge ships with: the
// attachments named in the reply, plus the ciphertext for crypto and an LSB
// image carrying the flag for image-based misc challenges.
func BuildAttachments(category domain.Category, generated *GeneratedChallenge, flag string) ([]domain.Attachment, error) {
	out := make([]domain.Attachment, 0, len(generated.Attachments)+1)

	switch category {
	case domain.CategoryCrypto:
		out = append(out, domain.Attachment{
			Name:        cipherFileName,
			Description: "Ciphertext",
			Encoding:    domain.AttachmentText,
			Content:     cryptoCiphertext(generated, flag),
		})
	case domain.CategoryMisc:
		method := orDefault(generated.DetailString("hide_method"), HideLSB)
		fileType := orDefault(generated.DetailString("file_type"), FileTypeImage)
		if strings.EqualFold(fileType, FileTypeImage) && strings.Contains(strings.ToUpper(method), HideLSB) {
			img, err := LSBImage(flag)
			if err != nil {
				return nil, err
			}
			out = append(out, domain.Attachment{
				Name:        lsbFileName,
				Description: "Find the hidden message",
				Encoding:    domain.AttachmentBase64,
				Content:     base64.StdEncoding.EncodeToString(img),
			})
		}
	}

	taken := make(map[string]bool, len(out))
	for _, a := range out {
		taken[a.Name] = true
	}
	for i, a := range generated.Attachments {
		if a.Name == "" {
			a.Name = fmt.Sprintf("attachment_%d", i+1)
		}
		if taken[a.Name] {
			continue
		}
		if a.Content != "" && a.Encoding == "" {
			a.Encoding = domain.AttachmentText
		}
		taken[a.Name] = true
		out = append(out, a)
	}
	return out, nil
}

// cryptoCiphertext is ROT13 of the flag for Caesar challenges, otherwise the
// ciphertext from the reply, falling back to the flag itself
func cryptoCiphertext(generated *GeneratedChallenge, flag string) string {
	method := orDefault(generated.DetailString("encryption_method"), CipherCaesar)
	if strings.EqualFold(method, CipherCaesar) {
		return Caesar(flag, 13)
	}
	return orDefault(generated.DetailString("ciphertext"), flag)
}

// LSBImage renders a flat PNG whose red channel low bits spell message,
// most significant bit first, followed by a 16-bit terminator
func LSBImage(message string) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, lsbWidth, lsbHeight))
	for y := 0; y < lsbHeight; y++ {
		for x := 0; x < lsbWidth; x++ {
			img.SetRGBA(x, y, lsbBackground)
		}
	}

	var bits strings.Builder
	for _, c := range []byte(message) {
		fmt.Fprintf(&bits, "%08b", c)
	}
	bits.WriteString(lsbTerminator)

	for i, bit := range bits.String() {
		if i >= lsbWidth*lsbHeight {
			break
		}
		x, y := i%lsbWidth, i/lsbWidth
		px := img.RGBAAt(x, y)
		px.R = px.R&0xFE | byte(bit-'0')
		img.SetRGBA(x, y, px)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadLSB recovers a message embedded by LSBImage
func ReadLSB(data []byte) (string, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}
	bounds := img.Bounds()
	width := bounds.Dx()
	total := width * bounds.Dy()

	var bits strings.Builder
	for i := 0; i < total; i++ {
		r, _, _, _ := img.At(bounds.Min.X+i%width, bounds.Min.Y+i/width).RGBA()
		bits.WriteByte('0' + byte(r>>8)&1)
		if strings.HasSuffix(bits.String(), lsbTerminator) {
			break
		}
	}

	payload := strings.TrimSuffix(bits.String(), lsbTerminator)
	payload = payload[:len(payload)-len(payload)%8]
	out := make([]byte, 0, len(payload)/8)
	for i := 0; i < len(payload); i += 8 {
		var c byte
		for _, b := range payload[i : i+8] {
			c = c<<1 | byte(b-'0')
		}
		out = append(out, c)
	}
	return string(out), nil
}
