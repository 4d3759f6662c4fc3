package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"gildchain/crypto"
	"gildchain/native/ledger"
	"gildchain/observability/metrics"
)

type route struct {
	write      bool
	capability string
	fn         func(caller []byte, params []json.RawMessage) (interface{}, *RPCError)
}

func (s *Server) routes() map[string]route {
	return map[string]route{
		"ledger_getBalance":   {fn: s.handleGetBalance},
		"ledger_getPrincipal": {fn: s.handleGetPrincipal},
		"ledger_getRate":      {fn: s.handleGetRate},
		"ledger_getUserRate":  {fn: s.handleGetUserRate},
		"ledger_totalSupply":  {fn: s.handleTotalSupply},
		"ledger_getAllowance": {fn: s.handleGetAllowance},

		"ledger_transfer":     {write: true, fn: s.handleTransfer},
		"ledger_transferFrom": {write: true, fn: s.handleTransferFrom},
		"ledger_approve":      {write: true, fn: s.handleApprove},
		"ledger_mint":         {write: true, capability: CapabilitySupply, fn: s.handleMint},
		"ledger_burn":         {write: true, capability: CapabilitySupply, fn: s.handleBurn},
		"ledger_setRate":      {write: true, capability: CapabilityRate, fn: s.handleSetRate},
	}
}

func decodeParams(params []json.RawMessage, target interface{}) *RPCError {
	if len(params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "expected a single parameter object"}
	}
	if err := json.Unmarshal(params[0], target); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "malformed parameter object", Data: err.Error()}
	}
	return nil
}

func parseAddress(field, value string) ([]byte, *RPCError) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return nil, &RPCError{
			Code:    codeInvalidParams,
			Message: fmt.Sprintf("invalid %s address", field),
			Data:    err.Error(),
		}
	}
	return addr.Bytes(), nil
}

// parseAmount accepts a decimal string, or "max" for the entire-balance
// sentinel.
func parseAmount(field, value string) (*big.Int, *RPCError) {
	trimmed := strings.TrimSpace(value)
	if strings.EqualFold(trimmed, "max") {
		return new(big.Int).Set(ledger.MaxTransferAmount), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, &RPCError{
			Code:    codeInvalidParams,
			Message: fmt.Sprintf("invalid %s: expected a non-negative decimal string", field),
		}
	}
	return amount, nil
}

type addressParam struct {
	Address string `json:"address"`
}

type allowanceParam struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
}

type transferParams struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type transferFromParams struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type approveParams struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type mintParams struct {
	To         string `json:"to"`
	Amount     string `json:"amount"`
	RateToLock string `json:"rateToLock"`
}

type burnParams struct {
	From   string `json:"from"`
	Amount string `json:"amount"`
}

type setRateParams struct {
	Rate string `json:"rate"`
}

type balanceResult struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type rateResult struct {
	Rate string `json:"rate"`
}

type ackResult struct {
	Status string `json:"status"`
}

var okResult = ackResult{Status: "ok"}

func (s *Server) handleGetBalance(_ []byte, params []json.RawMessage) (interface{}, *RPCError) {
	var p addressParam
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress("account", p.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := s.engine.BalanceOf(addr)
	if err != nil {
		return nil, errorFor(err)
	}
	return balanceResult{Address: p.Address, Amount: balance.String()}, nil
}

func (s *Server) handleGetPrincipal(_ []byte, params []json.RawMessage) (interface{}, *RPCError) {
	var p addressParam
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress("account", p.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	principal, err := s.engine.PrincipalOf(addr)
	if err != nil {
		return nil, errorFor(err)
	}
	return balanceResult{Address: p.Address, Amount: principal.String()}, nil
}

func (s *Server) handleGetRate(_ []byte, _ []json.RawMessage) (interface{}, *RPCError) {
	current, err := s.engine.BaseRate()
	if err != nil {
		return nil, errorFor(err)
	}
	return rateResult{Rate: current.String()}, nil
}

func (s *Server) handleGetUserRate(_ []byte, params []json.RawMessage) (interface{}, *RPCError) {
	var p addressParam
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress("account", p.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	userRate, err := s.engine.UserRate(addr)
	if err != nil {
		return nil, errorFor(err)
	}
	return rateResult{Rate: userRate.String()}, nil
}

func (s *Server) handleTotalSupply(_ []byte, _ []json.RawMessage) (interface{}, *RPCError) {
	supply, err := s.engine.TotalSupply()
	if err != nil {
		return nil, errorFor(err)
	}
	return balanceResult{Amount: supply.String()}, nil
}

func (s *Server) handleGetAllowance(_ []byte, params []json.RawMessage) (interface{}, *RPCError) {
	var p allowanceParam
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddress("owner", p.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	spender, rpcErr := parseAddress("spender", p.Spender)
	if rpcErr != nil {
		return nil, rpcErr
	}
	allowance, err := s.engine.Allowance(owner, spender)
	if err != nil {
		return nil, errorFor(err)
	}
	return balanceResult{Amount: allowance.String()}, nil
}

func (s *Server) handleTransfer(caller []byte, params []json.RawMessage) (interface{}, *RPCError) {
	var p transferParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := parseAddress("to", p.To)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", p.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Transfer(caller, to, amount); err != nil {
		return nil, errorFor(err)
	}
	return okResult, nil
}

func (s *Server) handleTransferFrom(caller []byte, params []json.RawMessage) (interface{}, *RPCError) {
	var p transferFromParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddress("from", p.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := parseAddress("to", p.To)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", p.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.TransferFrom(caller, from, to, amount); err != nil {
		return nil, errorFor(err)
	}
	return okResult, nil
}

func (s *Server) handleApprove(caller []byte, params []json.RawMessage) (interface{}, *RPCError) {
	var p approveParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	spender, rpcErr := parseAddress("spender", p.Spender)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", p.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Approve(caller, spender, amount); err != nil {
		return nil, errorFor(err)
	}
	return okResult, nil
}

func (s *Server) handleMint(caller []byte, params []json.RawMessage) (interface{}, *RPCError) {
	var p mintParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := parseAddress("to", p.To)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", p.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	rateToLock, rpcErr := parseAmount("rateToLock", p.RateToLock)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Mint(caller, to, amount, rateToLock); err != nil {
		return nil, errorFor(err)
	}
	if supply, err := s.engine.TotalSupply(); err == nil {
		metrics.Ledger().SetTotalSupply(supply)
	}
	return okResult, nil
}

func (s *Server) handleBurn(caller []byte, params []json.RawMessage) (interface{}, *RPCError) {
	var p burnParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddress("from", p.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", p.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Burn(caller, from, amount); err != nil {
		return nil, errorFor(err)
	}
	if supply, err := s.engine.TotalSupply(); err == nil {
		metrics.Ledger().SetTotalSupply(supply)
	}
	return okResult, nil
}

func (s *Server) handleSetRate(caller []byte, params []json.RawMessage) (interface{}, *RPCError) {
	var p setRateParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	newRate, rpcErr := parseAmount("rate", p.Rate)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.SetBaseRate(caller, newRate); err != nil {
		return nil, errorFor(err)
	}
	metrics.Ledger().SetBaseRate(newRate)
	return okResult, nil
}
