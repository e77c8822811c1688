// Package rpc implements the JSON-RPC 2.0 API server.
//
// Read methods are open to any host the IP filter admits. Mutating
// methods must be signed: the request carries an auth object whose
// recoverable signature over the method and params identifies the
// origin, and every handler checks its acting party against that
// recovered address rather than trusting the request body.
package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/monte1s/tokengate/config"
	"github.com/monte1s/tokengate/internal/engine"
	klog "github.com/monte1s/tokengate/internal/log"
	"github.com/monte1s/tokengate/pkg/crypto"
	"github.com/monte1s/tokengate/pkg/types"
	"github.com/rs/zerolog"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Server is the JSON-RPC 2.0 HTTP server.
type Server struct {
	addr        string
	engine      *engine.Engine
	server      *http.Server
	logger      zerolog.Logger
	ln          net.Listener
	allowedNets []*net.IPNet // Empty = allow all.
	corsOrigins []string     // Empty = no CORS headers.
}

// New creates a new RPC server. The rpcCfg parameter controls IP filtering
// and CORS. A zero-value RPCConfig allows all IPs and disables CORS.
func New(addr string, eng *engine.Engine, rpcCfg ...config.RPCConfig) *Server {
	s := &Server{
		addr:   addr,
		engine: eng,
		logger: klog.WithComponent("rpc"),
	}

	if len(rpcCfg) > 0 {
		s.allowedNets = parseAllowedIPs(rpcCfg[0].AllowedIPs)
		s.corsOrigins = rpcCfg[0].CORSOrigins
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		// Try as a single IP (add /32 or /128).
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Start begins listening and serving in a background goroutine.
// It returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()

	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// handleRequest is the main HTTP handler for JSON-RPC requests.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	// IP filtering.
	if len(s.allowedNets) > 0 {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		ip := net.ParseIP(host)
		if ip == nil || !s.isIPAllowed(ip) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	// CORS headers.
	s.setCORSHeaders(w, r)

	// Handle CORS preflight.
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, nil, CodeInvalidRequest, "only POST method is allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, CodeInvalidRequest, "request body too large")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}

	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\"")
		return
	}

	result, rpcErr := s.dispatch(&req)
	if rpcErr != nil {
		writeJSON(w, Response{
			JSONRPC: "2.0",
			Error:   rpcErr,
			ID:      req.ID,
		})
		return
	}

	writeJSON(w, Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	})
}

// authenticate recovers the signer of a request's auth signature. The
// signature covers the request digest, so it pins both the method and the
// exact params bytes; a signature lifted onto a different call fails
// recovery against the claimed signer.
func (s *Server) authenticate(req *Request) *Error {
	if req.Auth == nil {
		return nil
	}
	signer, err := types.ParseAddress(req.Auth.Signer)
	if err != nil {
		return &Error{Code: CodeUnauthorized, Message: fmt.Sprintf("invalid auth signer: %v", err)}
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(req.Auth.Signature, "0x"))
	if err != nil {
		return &Error{Code: CodeUnauthorized, Message: "auth signature must be hex"}
	}
	recovered, err := crypto.Recover(crypto.RequestDigest(req.Method, req.Params), sig)
	if err != nil {
		return &Error{Code: CodeUnauthorized, Message: fmt.Sprintf("auth signature: %v", err)}
	}
	if recovered != signer {
		return &Error{Code: CodeUnauthorized, Message: "auth signature does not match signer"}
	}
	req.origin = recovered
	return nil
}

// dispatch routes a request to the appropriate handler.
func (s *Server) dispatch(req *Request) (interface{}, *Error) {
	if rpcErr := s.authenticate(req); rpcErr != nil {
		return nil, rpcErr
	}
	switch req.Method {
	case "registry_register":
		return s.handleRegistryRegister(req)
	case "registry_isRegistered":
		return s.handleRegistryIsRegistered(req)
	case "registry_getKey":
		return s.handleRegistryGetKey(req)
	case "token_getBalance":
		return s.handleTokenGetBalance(req)
	case "token_getSupply":
		return s.handleTokenGetSupply(req)
	case "token_getAllowance":
		return s.handleTokenGetAllowance(req)
	case "token_transfer":
		return s.handleTokenTransfer(req)
	case "token_transferFrom":
		return s.handleTokenTransferFrom(req)
	case "token_approve":
		return s.handleTokenApprove(req)
	case "token_mint":
		return s.handleTokenMint(req)
	case "token_burn":
		return s.handleTokenBurn(req)
	case "token_removeRestriction":
		return s.handleTokenRemoveRestriction(req)
	case "roles_grant":
		return s.handleRolesGrant(req)
	case "roles_revoke":
		return s.handleRolesRevoke(req)
	case "roles_members":
		return s.handleRolesMembers(req)
	case "treasury_transfer":
		return s.handleTreasuryTransfer(req)
	case "treasury_reclaim":
		return s.handleTreasuryReclaim(req)
	case "treasury_getEntry":
		return s.handleTreasuryGetEntry(req)
	case "treasury_getRoster":
		return s.handleTreasuryGetRoster(req)
	case "sale_start":
		return s.handleSaleStart(req)
	case "sale_pause":
		return s.handleSalePause(req)
	case "sale_purchase":
		return s.handleSalePurchase(req)
	case "sale_getInfo":
		return s.handleSaleGetInfo(req)
	case "sale_getPurchased":
		return s.handleSaleGetPurchased(req)
	case "sale_setKycSigner":
		return s.handleSaleSetKycSigner(req)
	case "sale_setDeposit":
		return s.handleSaleSetDeposit(req)
	case "sale_setPriceNative":
		return s.handleSaleSetPriceNative(req)
	case "sale_setPriceStable":
		return s.handleSaleSetPriceStable(req)
	case "sale_setPurchaseLimit":
		return s.handleSaleSetPurchaseLimit(req)
	case "bank_getBalance":
		return s.handleBankGetBalance(req)
	case "bank_credit":
		return s.handleBankCredit(req)
	case "stable_getBalance":
		return s.handleStableGetBalance(req)
	case "stable_credit":
		return s.handleStableCredit(req)
	case "events_get":
		return s.handleEventsGet(req)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

// writeJSON writes a JSON-RPC response.
func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes a JSON-RPC error response.
func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeJSON(w, Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	})
}

// isIPAllowed checks if the IP is in the allowed networks list.
func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// setCORSHeaders adds CORS headers based on the configured origins.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsOrigins) == 0 {
		return
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	allowed := false
	for _, o := range s.corsOrigins {
		if o == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			allowed = true
			break
		}
		if o == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			allowed = true
			break
		}
	}

	if allowed {
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}
}

// parseParams unmarshals the request params into the given target.
func parseParams(req *Request, target interface{}) *Error {
	if len(req.Params) == 0 {
		return &Error{Code: CodeInvalidParams, Message: "params required"}
	}
	if err := json.Unmarshal(req.Params, target); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}
