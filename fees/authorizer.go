package fees

import (
	"github.com/quartzledger/quartz/types"
)

// Authorization is the tri-state answer to "does the payer hold privileged
// authority for this functionality".
type Authorization uint8

const (
	// AuthorizationNotApplicable - the functionality is not privileged,
	// normal signature verification and fee charging applies.
	AuthorizationNotApplicable Authorization = iota
	Authorized
	Unauthorized
)

// Authorizer decides privileged-account authorization and fee waivers for
// system accounts performing administrative operations.
type Authorizer struct{}

func NewAuthorizer() *Authorizer {
	return &Authorizer{}
}

// isPrivilegedKind - functionality reserved for the network administration.
func isPrivilegedKind(kind types.TransactionKind) bool {
	switch kind {
	case types.KindFreeze, types.KindNodeStakeUpdate, types.KindFileUpdate:
		return true
	}
	return false
}

// HasPrivilegedAuthorization returns Authorized/Unauthorized for privileged
// functionality and NotApplicable for everything else.
func (a *Authorizer) HasPrivilegedAuthorization(payer types.AccountID, kind types.TransactionKind) Authorization {
	if !isPrivilegedKind(kind) {
		return AuthorizationNotApplicable
	}
	switch {
	case payer == types.TreasuryAccount, payer == types.SystemAdminAccount:
		return Authorized
	case kind == types.KindFileUpdate && (payer == types.AddressBookAdmin || payer == types.FeeSchedulesAdmin || payer == types.ThrottleAdmin):
		return Authorized
	default:
		return Unauthorized
	}
}

// HasFeeWaiver reports whether the payer is exempt from fees for the given
// functionality.
func (a *Authorizer) HasFeeWaiver(payer types.AccountID, kind types.TransactionKind) bool {
	if payer == types.TreasuryAccount || payer == types.SystemAdminAccount {
		return true
	}
	// admins updating their own system files pay nothing
	if kind == types.KindFileUpdate && (payer == types.AddressBookAdmin || payer == types.FeeSchedulesAdmin || payer == types.ThrottleAdmin) {
		return true
	}
	return false
}
