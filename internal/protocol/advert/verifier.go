package advert

import "github.com/cloudflare/circl/sign/ed25519"

// Verifier 签名校验能力
type Verifier interface {
	Verify(message, signature, publicKey []byte) bool
}

// VerifierFunc 函数适配器
type VerifierFunc func(message, signature, publicKey []byte) bool

func (f VerifierFunc) Verify(message, signature, publicKey []byte) bool {
	return f(message, signature, publicKey)
}

// Ed25519 基于 circl 的 Ed25519 校验实现
type Ed25519 struct{}

func (Ed25519) Verify(message, signature, publicKey []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}
