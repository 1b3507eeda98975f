package evm

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/nemesis-gg/portal-relayer/config"
)

const keyDerivationLabel = "portal-relayer"

// preparePrivateKey fills in the plaintext signing key. Networks may carry
// either a plaintext private_key or an AES-GCM encrypted_key + key_nonce
// pair produced by the deploy tooling.
func preparePrivateKey(evmConfig *config.EvmNetworkConfig) error {
	if evmConfig.PrivateKey != "" {
		return nil
	}
	if evmConfig.EncryptedKey == "" || evmConfig.KeyNonce == "" {
		return fmt.Errorf("no private key configured for network %s", evmConfig.Name)
	}

	encryptedKey, err := base64.StdEncoding.DecodeString(evmConfig.EncryptedKey)
	if err != nil {
		return fmt.Errorf("failed to decode encrypted key: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(evmConfig.KeyNonce)
	if err != nil {
		return fmt.Errorf("failed to decode key nonce: %w", err)
	}

	hash := sha3.Sum256([]byte(keyDerivationLabel))
	decrypted, err := AESGCMDecrypt(hash[:], nonce, encryptedKey)
	if err != nil {
		return fmt.Errorf("failed to decrypt key for network %s: %w", evmConfig.Name, err)
	}
	evmConfig.PrivateKey = string(decrypted)
	return nil
}

func AESGCMDecrypt(key, nonce, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func AESGCMEncrypt(key, nonce, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nil
}
