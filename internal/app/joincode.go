package app

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/url"

	"github.com/skip2/go-qrcode"
)

const (
	defaultJoinCodeLength   = 6
	defaultJoinCodeAttempts = 10
	joinQRSize              = 256
)

// JoinArtifact is the shareable form of a join code.
type JoinArtifact struct {
	Link  string `json:"link"`
	QRPNG string `json:"qrCode"` // data URI
}

// randomJoinCode returns a zero-padded numeric code of the given width.
func randomJoinCode(length int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

// joinLink encodes code and session into the configured join URL.
func joinLink(baseURL, code, sessionID string) string {
	q := url.Values{}
	q.Set("code", code)
	q.Set("session", sessionID)
	return baseURL + "?" + q.Encode()
}

func buildJoinArtifact(baseURL, code, sessionID string) (JoinArtifact, error) {
	link := joinLink(baseURL, code, sessionID)
	png, err := qrcode.Encode(link, qrcode.Medium, joinQRSize)
	if err != nil {
		return JoinArtifact{}, fmt.Errorf("encode join qr: %w", err)
	}
	return JoinArtifact{
		Link:  link,
		QRPNG: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}
