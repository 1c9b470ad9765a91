package auth

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/crypto"

	"shogunrelay/internal/errs"
)

// RelayKey is the relay's own signing keypair (spec §6.2: "JSON file with
// the relay's signing keypair, 0600 permissions; must persist across
// restarts or all signed records become unverifiable"), grounded on the
// same secp256k1 primitives VerifyWalletSignature already uses for wallet
// auth.
type RelayKey struct {
	PrivateKeyHex string `json:"privateKeyHex"`
	Address       string `json:"address"`
}

// GenerateRelayKey mints a fresh secp256k1 keypair.
func GenerateRelayKey() (*RelayKey, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "relaykey-generate", "generate signing keypair", err)
	}
	return &RelayKey{
		PrivateKeyHex: hex.EncodeToString(crypto.FromECDSA(priv)),
		Address:       crypto.PubkeyToAddress(priv.PublicKey).Hex(),
	}, nil
}

// SaveRelayKey writes k to path with 0600 permissions, refusing to
// overwrite an existing file unless force is set so "relay keys generate"
// stays idempotent by default.
func SaveRelayKey(path string, k *RelayKey, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errs.New(errs.Conflict, "key-exists", "key file already exists; pass --force to overwrite")
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(errs.Backend, "relaykey-mkdir", "create key directory", err)
	}
	body, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return errs.Wrap(errs.Backend, "relaykey-encode", "encode key material", err)
	}
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return errs.Wrap(errs.Backend, "relaykey-write", "write key file", err)
	}
	return nil
}

// LoadRelayKey reads the key material at path.
func LoadRelayKey(path string) (*RelayKey, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.NotFound, "key-missing", "relay key file does not exist; run \"relay keys generate\" first")
		}
		return nil, errs.Wrap(errs.Backend, "relaykey-read", "read key file", err)
	}
	var k RelayKey
	if err := json.Unmarshal(body, &k); err != nil {
		return nil, errs.Wrap(errs.Invariant, "relaykey-decode", "corrupt key file", err)
	}
	return &k, nil
}
