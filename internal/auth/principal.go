// Package auth implements the Auth Multiplexer (spec §4.4): resolution of
// admin tokens, API keys, wallet signatures and sessions into a tagged
// Principal, plus the capability checks handlers branch on.
package auth

// Capability is one action a Principal may be granted.
type Capability string

const (
	CapUpload        Capability = "upload"
	CapDelete        Capability = "delete"
	CapAdminRead     Capability = "admin-read"
	CapAdminWrite    Capability = "admin-write"
	CapPinManage     Capability = "pin-manage"
	CapDealWrite     Capability = "deal-write"
	CapSubscribe     Capability = "subscribe"
)

// Variant tags which kind of Principal this is. Per spec §9 ("Polymorphism
// on principals"), handlers should branch on Capabilities, not on Variant —
// Variant exists for logging/audit and for the few call sites (ownerKey
// derivation) that genuinely need to know.
type Variant string

const (
	VariantAdmin  Variant = "admin"
	VariantApiKey Variant = "api-key"
	VariantWallet Variant = "wallet"
	VariantPublic Variant = "public"
)

// Principal is the resolved identity of a request.
type Principal struct {
	Variant Variant
	// Address is set for VariantWallet; lower-cased 0x-hex.
	Address string
	// KeyID is set for VariantApiKey.
	KeyID string
	// OwnerScope is set for VariantApiKey: the ownerKey ("admin" or a
	// wallet address) the key's rows are written under.
	OwnerScope string

	caps map[Capability]struct{}
}

func newPrincipal(v Variant, caps ...Capability) Principal {
	p := Principal{Variant: v, caps: make(map[Capability]struct{}, len(caps))}
	for _, c := range caps {
		p.caps[c] = struct{}{}
	}
	return p
}

// Can reports whether the principal holds the given capability.
func (p Principal) Can(c Capability) bool {
	_, ok := p.caps[c]
	return ok
}

// OwnerKey is the ledger ownerKey this principal writes under: the wallet
// address, the api key's owner scope, or the literal "admin" for the admin
// principal. Other variants have no owner key of their own.
func (p Principal) OwnerKey() string {
	switch p.Variant {
	case VariantAdmin:
		return "admin"
	case VariantWallet:
		return p.Address
	case VariantApiKey:
		return p.OwnerScope
	default:
		return ""
	}
}

// AdminPrincipal grants every capability (spec §4.4: "Admin -> all").
func AdminPrincipal() Principal {
	return newPrincipal(VariantAdmin,
		CapUpload, CapDelete, CapAdminRead, CapAdminWrite, CapPinManage, CapDealWrite, CapSubscribe)
}

// ApiKeyPrincipal grants every capability except admin-only config
// mutation (spec §4.4: "ApiKey -> all except admin-only config mutation").
func ApiKeyPrincipal(keyID, ownerScope string) Principal {
	p := newPrincipal(VariantApiKey,
		CapUpload, CapDelete, CapAdminRead, CapPinManage, CapDealWrite, CapSubscribe)
	p.KeyID = keyID
	p.OwnerScope = ownerScope
	return p
}

// WalletPrincipal grants upload/delete/subscribe/deal-write, scoped by the
// handler to rows whose ownerKey == address (spec §4.4).
func WalletPrincipal(address string) Principal {
	p := newPrincipal(VariantWallet, CapUpload, CapDelete, CapSubscribe, CapDealWrite)
	p.Address = address
	return p
}

// PublicPrincipal grants only anonymous read capabilities; public link and
// gateway cat handlers do not gate on a capability at all, so no
// capabilities are attached here.
func PublicPrincipal() Principal {
	return newPrincipal(VariantPublic)
}
