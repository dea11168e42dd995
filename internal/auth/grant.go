package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Grant is a signed authorization for one subscription attempt. It is never
// stored; it is only valid for establishing that single subscription.
type Grant struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data,omitempty"`
}

// Signer produces and verifies grants. The signature binds the socket
// identity, the channel name and the presence payload, so a grant issued
// for one subscription cannot be replayed for another.
type Signer struct {
	key    string
	secret string
}

// NewSigner creates a Signer from the app key and secret.
func NewSigner(key, secret string) *Signer {
	return &Signer{key: key, secret: secret}
}

// Enabled reports whether credentials are configured. A disabled signer
// degrades signing and verification to no-ops instead of failing.
func (s *Signer) Enabled() bool {
	return s.key != "" && s.secret != ""
}

// Sign produces a grant for a subscription attempt.
func (s *Signer) Sign(socketID, channel, channelData string) Grant {
	if !s.Enabled() {
		return Grant{}
	}
	return Grant{
		Auth:        s.key + ":" + s.signature(socketID, channel, channelData),
		ChannelData: channelData,
	}
}

// Verify checks a grant's auth string against a subscription attempt.
func (s *Signer) Verify(authString, socketID, channel, channelData string) bool {
	if !s.Enabled() {
		return true
	}
	expected := s.key + ":" + s.signature(socketID, channel, channelData)
	return hmac.Equal([]byte(authString), []byte(expected))
}

func (s *Signer) signature(socketID, channel, channelData string) string {
	payload := socketID + ":" + channel
	if channelData != "" {
		payload += ":" + channelData
	}

	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
