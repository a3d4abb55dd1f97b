package claimlink

import "errors"

// Category groups errors by the kind of precondition that failed.
type Category string

const (
	CategoryAuthorization Category = "authorization"
	CategoryRole          Category = "role"
	CategoryTemporal      Category = "temporal"
	CategoryState         Category = "state"
	CategoryValue         Category = "value"
	CategoryInternal      Category = "internal"
)

var (
	ErrInvalidReceiverSignature = errors.New("claimlink: invalid receiver signature")
	ErrInvalidSenderSignature   = errors.New("claimlink: invalid sender signature")
	ErrInvalidFeeAuthorization  = errors.New("claimlink: invalid fee authorization")
	ErrInvalidAuthorization     = errors.New("claimlink: authorization decode failed")
	ErrInvalidHookPayload       = errors.New("claimlink: invalid hook payload")
	ErrAuthorizationRecipient   = errors.New("claimlink: authorization recipient is not the escrow")
	ErrAuthorizationNonce       = errors.New("claimlink: authorization nonce does not bind deposit")
	ErrUnknownSelector          = errors.New("claimlink: unknown authorization selector")

	ErrNotRelayer = errors.New("claimlink: caller is not relayer")
	ErrNotOwner   = errors.New("claimlink: caller is not owner")

	ErrInvalidExpiration = errors.New("claimlink: depositing with invalid expiration")
	ErrDepositExpired    = errors.New("claimlink: deposit expired")
	ErrNotYetExpired     = errors.New("claimlink: deposit not yet expired")

	ErrDepositNotFound  = errors.New("claimlink: deposit not found")
	ErrDepositExists    = errors.New("claimlink: deposit already exists")
	ErrReentrantCall    = errors.New("claimlink: reentrant call")
	ErrBatchUnsupported = errors.New("claimlink: batch receipts not supported")

	ErrInvalidAmount    = errors.New("claimlink: invalid amount")
	ErrFeeExceedsAmount = errors.New("claimlink: fee exceeds amount")
	ErrValueMismatch    = errors.New("claimlink: attached value mismatch")
	ErrValueOverflow    = errors.New("claimlink: value exceeds field width")
	ErrFeeOverflow      = errors.New("claimlink: fee ledger overflow")
	ErrInvalidFeeAsset  = errors.New("claimlink: fee asset must be the deposited asset or native")
	ErrFeeNotAllowed    = errors.New("claimlink: fee cannot be paid on this path")
	ErrUnsupportedAsset = errors.New("claimlink: unsupported asset")
	ErrAssetKind        = errors.New("claimlink: asset kind not accepted by this entry point")
	ErrZeroAddress      = errors.New("claimlink: zero address")

	ErrStateUnavailable = errors.New("claimlink: state not configured")
	ErrTransferFailed   = errors.New("claimlink: asset transfer failed")
)

type classification struct {
	category Category
	reason   string
}

var classifications = []struct {
	err error
	classification
}{
	{ErrInvalidReceiverSignature, classification{CategoryAuthorization, "invalid_receiver_signature"}},
	{ErrInvalidSenderSignature, classification{CategoryAuthorization, "invalid_sender_signature"}},
	{ErrInvalidFeeAuthorization, classification{CategoryAuthorization, "invalid_fee_authorization"}},
	{ErrInvalidAuthorization, classification{CategoryAuthorization, "invalid_authorization"}},
	{ErrAuthorizationRecipient, classification{CategoryAuthorization, "authorization_recipient"}},
	{ErrAuthorizationNonce, classification{CategoryAuthorization, "authorization_nonce"}},
	{ErrUnknownSelector, classification{CategoryAuthorization, "unknown_selector"}},
	{ErrNotRelayer, classification{CategoryRole, "not_relayer"}},
	{ErrNotOwner, classification{CategoryRole, "not_owner"}},
	{ErrInvalidExpiration, classification{CategoryTemporal, "invalid_expiration"}},
	{ErrDepositExpired, classification{CategoryTemporal, "deposit_expired"}},
	{ErrNotYetExpired, classification{CategoryTemporal, "not_yet_expired"}},
	{ErrDepositNotFound, classification{CategoryState, "deposit_not_found"}},
	{ErrDepositExists, classification{CategoryState, "deposit_exists"}},
	{ErrReentrantCall, classification{CategoryState, "reentrant_call"}},
	{ErrInvalidHookPayload, classification{CategoryValue, "invalid_hook_payload"}},
	{ErrBatchUnsupported, classification{CategoryValue, "batch_unsupported"}},
	{ErrInvalidAmount, classification{CategoryValue, "invalid_amount"}},
	{ErrFeeExceedsAmount, classification{CategoryValue, "fee_exceeds_amount"}},
	{ErrValueMismatch, classification{CategoryValue, "value_mismatch"}},
	{ErrValueOverflow, classification{CategoryValue, "value_overflow"}},
	{ErrFeeOverflow, classification{CategoryValue, "fee_overflow"}},
	{ErrInvalidFeeAsset, classification{CategoryValue, "invalid_fee_asset"}},
	{ErrFeeNotAllowed, classification{CategoryValue, "fee_not_allowed"}},
	{ErrUnsupportedAsset, classification{CategoryValue, "unsupported_asset"}},
	{ErrAssetKind, classification{CategoryValue, "asset_kind"}},
	{ErrZeroAddress, classification{CategoryValue, "zero_address"}},
	{ErrStateUnavailable, classification{CategoryInternal, "state_unavailable"}},
	{ErrTransferFailed, classification{CategoryInternal, "transfer_failed"}},
}

func classify(err error) (classification, bool) {
	if err == nil {
		return classification{}, false
	}
	for _, c := range classifications {
		if errors.Is(err, c.err) {
			return c.classification, true
		}
	}
	return classification{CategoryInternal, "internal"}, true
}

// CategoryOf returns the category of err, or "" for nil.
func CategoryOf(err error) Category {
	c, ok := classify(err)
	if !ok {
		return ""
	}
	return c.category
}

// ReasonOf returns a stable machine-readable reason code for err.
func ReasonOf(err error) string {
	c, ok := classify(err)
	if !ok {
		return ""
	}
	return c.reason
}
