package rpc

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/monte1s/tokengate/internal/events"
	"github.com/monte1s/tokengate/internal/roles"
	"github.com/monte1s/tokengate/pkg/types"
)

// ── Param helpers ───────────────────────────────────────────────────────

func parseAddr(field, value string) (types.Address, *Error) {
	if value == "" {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: field + " is required"}
	}
	addr, err := types.ParseAddress(value)
	if err != nil {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid %s: %v", field, err)}
	}
	return addr, nil
}

func parseAmountParam(field, value string) (*uint256.Int, *Error) {
	if value == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: field + " is required"}
	}
	amount, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid %s: %v", field, err)}
	}
	return amount, nil
}

func parseKeyParam(field, value string) (types.Key, *Error) {
	key, err := types.ParseKey(value)
	if err != nil {
		return types.Key{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid %s: %v", field, err)}
	}
	return key, nil
}

func parseSignature(value string) ([]byte, *Error) {
	if value == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "signature is required"}
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(value, "0x"))
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "signature must be hex"}
	}
	return sig, nil
}

// rejected wraps a ledger rule refusal as an RPC error.
func rejected(err error) *Error {
	return &Error{Code: CodeRejected, Message: err.Error()}
}

// requireOrigin ensures the request was signed by addr. Mutating
// endpoints still name their acting party in the params for readability,
// but only the auth signature vouches for the identity; an unsigned
// request or one signed by anyone else is refused before the engine runs.
func requireOrigin(req *Request, addr types.Address) *Error {
	if req.origin.IsZero() {
		return &Error{Code: CodeUnauthorized, Message: "signed request required"}
	}
	if req.origin != addr {
		return &Error{Code: CodeUnauthorized, Message: fmt.Sprintf("request signed by %s, not %s", req.origin, addr)}
	}
	return nil
}

// ── Registry endpoints ──────────────────────────────────────────────────

// handleRegistryRegister does not check the request auth: the
// registration payload carries its own signature over the key digest,
// which already proves control of the registering identity's key.
func (s *Server) handleRegistryRegister(req *Request) (interface{}, *Error) {
	var params RegisterParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddr("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	key, rpcErr := parseKeyParam("key", params.Key)
	if rpcErr != nil {
		return nil, rpcErr
	}
	sig, rpcErr := parseSignature(params.Signature)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if err := s.engine.Registry.Register(addr, key, sig); err != nil {
		return nil, rejected(err)
	}
	return &RegistrationResult{Address: addr.String(), Registered: true, Key: key.String()}, nil
}

func (s *Server) handleRegistryIsRegistered(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddr("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}

	ok, err := s.engine.Registry.IsRegistered(addr)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &RegistrationResult{Address: addr.String(), Registered: ok}, nil
}

func (s *Server) handleRegistryGetKey(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddr("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}

	key, err := s.engine.Registry.Lookup(addr)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	res := &RegistrationResult{Address: addr.String(), Registered: !key.IsZero()}
	if res.Registered {
		res.Key = key.String()
	}
	return res, nil
}

// ── Token endpoints ─────────────────────────────────────────────────────

func (s *Server) handleTokenGetBalance(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddr("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}

	bal, err := s.engine.Token.BalanceOf(addr)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &BalanceResult{Address: addr.String(), Balance: bal.Dec()}, nil
}

func (s *Server) handleTokenGetSupply(req *Request) (interface{}, *Error) {
	supply, err := s.engine.Token.TotalSupply()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	restricted, err := s.engine.Token.Restricted()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &SupplyResult{TotalSupply: supply.Dec(), Restricted: restricted}, nil
}

func (s *Server) handleTokenGetAllowance(req *Request) (interface{}, *Error) {
	var params AllowanceParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	owner, rpcErr := parseAddr("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	spender, rpcErr := parseAddr("spender", params.Spender)
	if rpcErr != nil {
		return nil, rpcErr
	}

	allowance, err := s.engine.Token.Allowance(owner, spender)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &AllowanceResult{Owner: owner.String(), Spender: spender.String(), Allowance: allowance.Dec()}, nil
}

func (s *Server) handleTokenTransfer(req *Request) (interface{}, *Error) {
	var params TransferParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	from, rpcErr := parseAddr("from", params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := parseAddr("to", params.To)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmountParam("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if rpcErr := requireOrigin(req, from); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Token.Transfer(from, to, amount); err != nil {
		return nil, rejected(err)
	}
	return true, nil
}

func (s *Server) handleTokenTransferFrom(req *Request) (interface{}, *Error) {
	var params TransferFromParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	spender, rpcErr := parseAddr("spender", params.Spender)
	if rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddr("from", params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := parseAddr("to", params.To)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmountParam("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if rpcErr := requireOrigin(req, spender); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Token.TransferFrom(spender, from, to, amount); err != nil {
		return nil, rejected(err)
	}
	return true, nil
}

func (s *Server) handleTokenApprove(req *Request) (interface{}, *Error) {
	var params ApproveParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	owner, rpcErr := parseAddr("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	spender, rpcErr := parseAddr("spender", params.Spender)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmountParam("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if rpcErr := requireOrigin(req, owner); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Token.Approve(owner, spender, amount); err != nil {
		return nil, rejected(err)
	}
	return true, nil
}

func (s *Server) handleTokenMint(req *Request) (interface{}, *Error) {
	var params TransferParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	caller, rpcErr := parseAddr("from", params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := parseAddr("to", params.To)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmountParam("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if rpcErr := requireOrigin(req, caller); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Token.Mint(caller, to, amount); err != nil {
		return nil, rejected(err)
	}
	return true, nil
}

func (s *Server) handleTokenBurn(req *Request) (interface{}, *Error) {
	var params BurnParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	from, rpcErr := parseAddr("from", params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmountParam("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if rpcErr := requireOrigin(req, from); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Token.Burn(from, amount); err != nil {
		return nil, rejected(err)
	}
	return true, nil
}

func (s *Server) handleTokenRemoveRestriction(req *Request) (interface{}, *Error) {
	var params CallerParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	caller, rpcErr := parseAddr("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if rpcErr := requireOrigin(req, caller); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Token.RemoveTransferRestriction(caller); err != nil {
		return nil, rejected(err)
	}
	return true, nil
}

// ── Role endpoints ──────────────────────────────────────────────────────

func (s *Server) handleRolesGrant(req *Request) (interface{}, *Error) {
	caller, role, addr, rpcErr := s.parseRoleParams(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := requireOrigin(req, caller); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Roles.Grant(caller, role, addr); err != nil {
		return nil, rejected(err)
	}
	return true, nil
}

func (s *Server) handleRolesRevoke(req *Request) (interface{}, *Error) {
	caller, role, addr, rpcErr := s.parseRoleParams(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := requireOrigin(req, caller); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Roles.Revoke(caller, role, addr); err != nil {
		return nil, rejected(err)
	}
	return true, nil
}

func (s *Server) parseRoleParams(req *Request) (types.Address, roles.Role, types.Address, *Error) {
	var params RoleParam
	if err := parseParams(req, &params); err != nil {
		return types.Address{}, "", types.Address{}, err
	}
	caller, rpcErr := parseAddr("caller", params.Caller)
	if rpcErr != nil {
		return types.Address{}, "", types.Address{}, rpcErr
	}
	addr, rpcErr := parseAddr("address", params.Address)
	if rpcErr != nil {
		return types.Address{}, "", types.Address{}, rpcErr
	}
	if params.Role == "" {
		return types.Address{}, "", types.Address{}, &Error{Code: CodeInvalidParams, Message: "role is required"}
	}
	return caller, roles.Role(params.Role), addr, nil
}

func (s *Server) handleRolesMembers(req *Request) (interface{}, *Error) {
	var params RoleMembersParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	members, err := s.engine.Roles.Members(roles.Role(params.Role))
	if err != nil {
		return nil, rejected(err)
	}
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.String()
	}
	return out, nil
}

// ── Treasury endpoints ──────────────────────────────────────────────────

func (s *Server) handleTreasuryTransfer(req *Request) (interface{}, *Error) {
	var params TreasuryMoveParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	caller, rpcErr := parseAddr("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	spoke, rpcErr := parseAddr("spoke", params.Spoke)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmountParam("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if rpcErr := requireOrigin(req, caller); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Treasury.TransferToSpoke(caller, spoke, params.Label, amount); err != nil {
		return nil, rejected(err)
	}
	return true, nil
}

func (s *Server) handleTreasuryReclaim(req *Request) (interface{}, *Error) {
	var params TreasuryMoveParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	caller, rpcErr := parseAddr("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	spoke, rpcErr := parseAddr("spoke", params.Spoke)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmountParam("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if rpcErr := requireOrigin(req, caller); rpcErr != nil {
		return nil, rpcErr
	}
	executed, err := s.engine.Treasury.ReclaimFromSpoke(caller, spoke, amount)
	if err != nil {
		return nil, rejected(err)
	}
	return &ReclaimResult{Executed: executed.Dec()}, nil
}

func (s *Server) handleTreasuryGetEntry(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	spoke, rpcErr := parseAddr("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}

	entry, err := s.engine.Treasury.Entry(spoke)
	if err != nil {
		return nil, &Error{Code: CodeNotFound, Message: err.Error()}
	}

	res := &TreasuryEntryResult{
		Spoke:            spoke.String(),
		Label:            entry.Label,
		TotalTransferred: entry.TotalTransferred.Dec(),
		TotalReclaimed:   entry.TotalReclaimed.Dec(),
		FailedReclaims:   make([]string, len(entry.FailedReclaims)),
		BouncedReclaims:  make([]string, len(entry.BouncedReclaims)),
	}
	for i, a := range entry.FailedReclaims {
		res.FailedReclaims[i] = a.Dec()
	}
	for i, a := range entry.BouncedReclaims {
		res.BouncedReclaims[i] = a.Dec()
	}
	return res, nil
}

func (s *Server) handleTreasuryGetRoster(req *Request) (interface{}, *Error) {
	roster, err := s.engine.Treasury.Roster()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	out := make([]string, len(roster))
	for i, a := range roster {
		out[i] = a.String()
	}
	return out, nil
}

// ── Sale endpoints ──────────────────────────────────────────────────────

func (s *Server) handleSaleStart(req *Request) (interface{}, *Error) {
	var params SaleStartParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	caller, rpcErr := parseAddr("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if params.Start == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "start is required"}
	}

	if rpcErr := requireOrigin(req, caller); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Sale.StartSale(caller, time.Unix(params.Start, 0)); err != nil {
		return nil, rejected(err)
	}
	return true, nil
}

func (s *Server) handleSalePause(req *Request) (interface{}, *Error) {
	var params CallerParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	caller, rpcErr := parseAddr("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if rpcErr := requireOrigin(req, caller); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Sale.PauseSale(caller); err != nil {
		return nil, rejected(err)
	}
	return true, nil
}

func (s *Server) handleSalePurchase(req *Request) (interface{}, *Error) {
	var params PurchaseParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	buyer, rpcErr := parseAddr("buyer", params.Buyer)
	if rpcErr != nil {
		return nil, rpcErr
	}
	key, rpcErr := parseKeyParam("key", params.Key)
	if rpcErr != nil {
		return nil, rpcErr
	}
	sig, rpcErr := parseSignature(params.Signature)
	if rpcErr != nil {
		return nil, rpcErr
	}

	var stableAmount, nativeValue *uint256.Int
	if params.StableAmount != "" {
		if stableAmount, rpcErr = parseAmountParam("stable_amount", params.StableAmount); rpcErr != nil {
			return nil, rpcErr
		}
	}
	if params.NativeValue != "" {
		if nativeValue, rpcErr = parseAmountParam("native_value", params.NativeValue); rpcErr != nil {
			return nil, rpcErr
		}
	}

	if req.origin.IsZero() {
		return nil, &Error{Code: CodeUnauthorized, Message: "signed request required"}
	}

	// The recovered request signer is the purchase originator; the engine
	// rejects an originator that differs from the claimed buyer.
	tokens, err := s.engine.Sale.Purchase(req.origin, buyer, key, stableAmount, sig, nativeValue)
	if err != nil {
		return nil, rejected(err)
	}
	return &PurchaseResult{Buyer: buyer.String(), Tokens: tokens.Dec()}, nil
}

func (s *Server) handleSaleGetInfo(req *Request) (interface{}, *Error) {
	snap, err := s.engine.Sale.Snapshot()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return snap, nil
}

func (s *Server) handleSaleGetPurchased(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddr("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}

	purchased, err := s.engine.Sale.Purchased(addr)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &BalanceResult{Address: addr.String(), Balance: purchased.Dec()}, nil
}

func (s *Server) handleSaleSetKycSigner(req *Request) (interface{}, *Error) {
	var params SaleSetParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	caller, rpcErr := parseAddr("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	value, rpcErr := parseAddr("value", params.Value)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := requireOrigin(req, caller); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Sale.SetKycSigner(caller, value); err != nil {
		return nil, rejected(err)
	}
	return true, nil
}

func (s *Server) handleSaleSetDeposit(req *Request) (interface{}, *Error) {
	var params SaleSetParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	caller, rpcErr := parseAddr("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	value, rpcErr := parseAddr("value", params.Value)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := requireOrigin(req, caller); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Sale.SetDepositAddress(caller, value); err != nil {
		return nil, rejected(err)
	}
	return true, nil
}

func (s *Server) handleSaleSetPriceNative(req *Request) (interface{}, *Error) {
	return s.saleSetAmount(req, s.engine.Sale.SetPriceNative)
}

func (s *Server) handleSaleSetPriceStable(req *Request) (interface{}, *Error) {
	return s.saleSetAmount(req, s.engine.Sale.SetPriceStable)
}

func (s *Server) handleSaleSetPurchaseLimit(req *Request) (interface{}, *Error) {
	return s.saleSetAmount(req, s.engine.Sale.SetPurchaseLimit)
}

func (s *Server) saleSetAmount(req *Request, set func(types.Address, *uint256.Int) error) (interface{}, *Error) {
	var params SaleSetParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	caller, rpcErr := parseAddr("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	value, rpcErr := parseAmountParam("value", params.Value)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := requireOrigin(req, caller); rpcErr != nil {
		return nil, rpcErr
	}
	if err := set(caller, value); err != nil {
		return nil, rejected(err)
	}
	return true, nil
}

// ── Bank endpoints ──────────────────────────────────────────────────────

func (s *Server) handleBankGetBalance(req *Request) (interface{}, *Error) {
	return s.bankBalance(req, s.engine.Bank)
}

func (s *Server) handleStableGetBalance(req *Request) (interface{}, *Error) {
	return s.bankBalance(req, s.engine.Stable)
}

func (s *Server) bankBalance(req *Request, ledger interface {
	Balance(types.Address) (*uint256.Int, error)
}) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddr("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	bal, err := ledger.Balance(addr)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &BalanceResult{Address: addr.String(), Balance: bal.Dec()}, nil
}

func (s *Server) handleBankCredit(req *Request) (interface{}, *Error) {
	return s.bankCredit(req, s.engine.Bank)
}

func (s *Server) handleStableCredit(req *Request) (interface{}, *Error) {
	return s.bankCredit(req, s.engine.Stable)
}

// bankCredit records an off-ledger deposit. Owner only: crediting is how
// external payments enter the books, not a user operation.
func (s *Server) bankCredit(req *Request, ledger interface {
	Credit(types.Address, *uint256.Int) error
}) (interface{}, *Error) {
	var params CreditParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	caller, rpcErr := parseAddr("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddr("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmountParam("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if rpcErr := requireOrigin(req, caller); rpcErr != nil {
		return nil, rpcErr
	}
	if !s.engine.Roles.Has(roles.RoleOwner, caller) {
		return nil, rejected(roles.ErrNotAuthorized)
	}
	if err := ledger.Credit(addr, amount); err != nil {
		return nil, rejected(err)
	}
	return true, nil
}

// ── Event endpoints ─────────────────────────────────────────────────────

func (s *Server) handleEventsGet(req *Request) (interface{}, *Error) {
	var params EventsParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	limit := params.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	out := make([]*events.Event, 0, limit)
	err := s.engine.Feed.Replay(params.From, func(ev *events.Event) error {
		out = append(out, ev)
		if len(out) >= limit {
			return errStopReplay
		}
		return nil
	})
	if err != nil && err != errStopReplay {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return out, nil
}

var errStopReplay = fmt.Errorf("stop")
