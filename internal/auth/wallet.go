package auth

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"shogunrelay/internal/errs"
)

// eip191Hash reproduces the EIP-191 personal-message digest go-ethereum
// wallets sign with, following the usual SigToPub/VerifySignature/
// PubkeyToAddress verification sequence applied to a fixed challenge
// string instead of a transaction hash.
func eip191Hash(message string) []byte {
	prefixed := []byte("\x19Ethereum Signed Message:\n" + itoa(len(message)) + message)
	return crypto.Keccak256(prefixed)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// VerifyWalletSignature checks that signatureHex, over the fixed wallet
// message, recovers to claimedAddress (case-insensitive), per spec §4.4 and
// §8's "Signature authenticity" property.
func VerifyWalletSignature(message, claimedAddress, signatureHex string) error {
	sig, err := hexutil.Decode(signatureHex)
	if err != nil {
		return errs.Wrap(errs.Unauthenticated, "wallet-signature", "malformed signature encoding", err)
	}
	if len(sig) != 65 {
		return errs.New(errs.Unauthenticated, "wallet-signature", "signature must be 65 bytes")
	}
	// go-ethereum's V is 0/1 on the wire for ecrecover; wallets commonly
	// produce 27/28 for personal_sign, so normalize before SigToPub.
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	digest := eip191Hash(message)
	pubKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return errs.Wrap(errs.Unauthenticated, "wallet-signature", "signature recovery failed", err)
	}
	if !crypto.VerifySignature(crypto.FromECDSAPub(pubKey), digest, sig[:64]) {
		return errs.New(errs.Unauthenticated, "wallet-signature", "signature verification failed")
	}

	recovered := strings.ToLower(crypto.PubkeyToAddress(*pubKey).Hex())
	if recovered != strings.ToLower(claimedAddress) {
		return errs.New(errs.Unauthenticated, "wallet-signature", "recovered address does not match claimed address")
	}
	return nil
}
