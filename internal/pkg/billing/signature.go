package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifyWebhookSignature checks the gateway's webhook signature header
// against an HMAC-SHA256 over the raw request body. The comparison is
// timing-safe and the expected signature is never exposed to callers.
func VerifyWebhookSignature(payload []byte, signatureHeader, webhookSecret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" || secret == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	return verifyHMAC(payload, decodedSig, []byte(secret))
}

// VerifyPaymentSignature checks the checkout callback signature, an
// HMAC-SHA256 over "orderID|paymentID" keyed with the gateway key secret.
func VerifyPaymentSignature(orderID, paymentID, signatureHex, keySecret string) bool {
	sig := strings.TrimSpace(signatureHex)
	secret := strings.TrimSpace(keySecret)
	if orderID == "" || paymentID == "" || sig == "" || secret == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	return verifyHMAC([]byte(orderID+"|"+paymentID), decodedSig, []byte(secret))
}

func verifyHMAC(payload, expectedSig, secret []byte) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expectedSig)
}
