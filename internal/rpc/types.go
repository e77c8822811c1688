package rpc

import (
	"encoding/json"

	"github.com/monte1s/tokengate/pkg/types"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeRejected       = -32001 // Operation refused by a ledger rule.
	CodeUnauthorized   = -32002 // Missing or wrong request signature.
)

// Request is a JSON-RPC 2.0 request. Params stays raw: the auth signature
// covers the params bytes exactly as the caller transmitted them, so they
// must not be re-encoded before verification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Auth    *AuthParam      `json:"auth,omitempty"`
	ID      interface{}     `json:"id"`

	// origin is the recovered signer of a correctly authenticated
	// request, set during dispatch. Zero when no auth was supplied.
	origin types.Address
}

// AuthParam authenticates a mutating request: a recoverable signature by
// the originating identity over the request digest (method plus raw
// params). Read-only methods ignore it.
type AuthParam struct {
	Signer    string `json:"signer"`
	Signature string `json:"signature"` // hex, 65 bytes
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// AddressParam is used by endpoints that take a single address.
type AddressParam struct {
	Address string `json:"address"`
}

// RegisterParam is used by registry_register.
type RegisterParam struct {
	Address   string `json:"address"`
	Key       string `json:"key"`
	Signature string `json:"signature"` // hex, 65 bytes
}

// TransferParam is used by token_transfer and token_mint.
type TransferParam struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"` // decimal, base units
}

// TransferFromParam is used by token_transferFrom.
type TransferFromParam struct {
	Spender string `json:"spender"`
	From    string `json:"from"`
	To      string `json:"to"`
	Amount  string `json:"amount"`
}

// ApproveParam is used by token_approve.
type ApproveParam struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

// AllowanceParam is used by token_getAllowance.
type AllowanceParam struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
}

// BurnParam is used by token_burn.
type BurnParam struct {
	From   string `json:"from"`
	Amount string `json:"amount"`
}

// CallerParam is used by endpoints whose only input is the caller.
type CallerParam struct {
	Caller string `json:"caller"`
}

// RoleParam is used by roles_grant and roles_revoke.
type RoleParam struct {
	Caller  string `json:"caller"`
	Role    string `json:"role"`
	Address string `json:"address"`
}

// RoleMembersParam is used by roles_members.
type RoleMembersParam struct {
	Role string `json:"role"`
}

// TreasuryMoveParam is used by treasury_transfer and treasury_reclaim.
type TreasuryMoveParam struct {
	Caller string `json:"caller"`
	Spoke  string `json:"spoke"`
	Label  string `json:"label,omitempty"` // transfer only
	Amount string `json:"amount"`
}

// SaleStartParam is used by sale_start.
type SaleStartParam struct {
	Caller string `json:"caller"`
	Start  int64  `json:"start"` // unix seconds
}

// PurchaseParam is used by sale_purchase.
type PurchaseParam struct {
	Buyer        string `json:"buyer"`
	Key          string `json:"key"`
	StableAmount string `json:"stable_amount,omitempty"`
	Signature    string `json:"signature"` // hex, kyc approval
	NativeValue  string `json:"native_value,omitempty"`
}

// SaleSetParam is used by the sale_set* endpoints.
type SaleSetParam struct {
	Caller string `json:"caller"`
	Value  string `json:"value"` // decimal amount or hex address
}

// EventsParam is used by events_get.
type EventsParam struct {
	From  uint64 `json:"from"`
	Limit int    `json:"limit,omitempty"`
}

// CreditParam is used by bank_credit and stable_credit.
type CreditParam struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// ── Result types ────────────────────────────────────────────────────────

// RegistrationResult is returned by registry_isRegistered and registry_getKey.
type RegistrationResult struct {
	Address    string `json:"address"`
	Registered bool   `json:"registered"`
	Key        string `json:"key,omitempty"`
}

// BalanceResult is returned by balance queries.
type BalanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// SupplyResult is returned by token_getSupply.
type SupplyResult struct {
	TotalSupply string `json:"total_supply"`
	Restricted  bool   `json:"restricted"`
}

// AllowanceResult is returned by token_getAllowance.
type AllowanceResult struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance"`
}

// TreasuryEntryResult is returned by treasury_getEntry.
type TreasuryEntryResult struct {
	Spoke            string   `json:"spoke"`
	Label            string   `json:"label"`
	TotalTransferred string   `json:"total_transferred"`
	TotalReclaimed   string   `json:"total_reclaimed"`
	FailedReclaims   []string `json:"failed_reclaims"`
	BouncedReclaims  []string `json:"bounced_reclaims"`
}

// ReclaimResult is returned by treasury_reclaim.
type ReclaimResult struct {
	Executed string `json:"executed"`
}

// PurchaseResult is returned by sale_purchase.
type PurchaseResult struct {
	Buyer  string `json:"buyer"`
	Tokens string `json:"tokens"`
}
