package rpc

import (
	"encoding/hex"
	"fmt"
	"strings"

	"datamarket/native/accounts"
)

type accountsCreateParams struct {
	Owner string `json:"owner"`
}

type accountsTemporaryParams struct {
	IdentityHash string `json:"identityHash"`
}

type accountsUnlockParams struct {
	IdentityPreimage  string `json:"identityPreimage"`
	NewOwner          string `json:"newOwner"`
	PasswordSignature string `json:"passwordSignature"`
}

type accountsFromSignatureParams struct {
	MessageHash string `json:"messageHash"`
	Signature   string `json:"signature"`
}

type accountsGetParams struct {
	ID string `json:"id"`
}

type accountJSON struct {
	ID           string `json:"id"`
	Owner        string `json:"owner,omitempty"`
	IdentityHash string `json:"identityHash,omitempty"`
	Temporary    bool   `json:"temporary"`
	CreatedAt    uint64 `json:"createdAt"`
}

func accountToJSON(account *accounts.Account) *accountJSON {
	out := &accountJSON{
		ID:        hex.EncodeToString(account.ID[:]),
		Temporary: account.Status == accounts.AccountTemporary,
		CreatedAt: account.CreatedAt,
	}
	if account.Status == accounts.AccountActive {
		out.Owner = formatAddress(account.Owner)
	}
	if account.IdentityHash != ([32]byte{}) {
		out.IdentityHash = hex.EncodeToString(account.IdentityHash[:])
	}
	return out
}

func parseHash32(value string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if err != nil || len(raw) != len(out) {
		return out, fmt.Errorf("expected %d hex bytes", len(out))
	}
	copy(out[:], raw)
	return out, nil
}

func parseAccountID(value string) (accounts.AccountID, error) {
	var id accounts.AccountID
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if err != nil || len(raw) != len(id) {
		return id, fmt.Errorf("account id must be %d hex bytes", len(id))
	}
	copy(id[:], raw)
	return id, nil
}

func (s *Server) handleAccountsCreate(req *RPCRequest) (interface{}, *RPCError) {
	var params accountsCreateParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	account, err := s.node.CreateAccount(owner)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return accountToJSON(account), nil
}

func (s *Server) handleAccountsCreateTemporary(req *RPCRequest) (interface{}, *RPCError) {
	var params accountsTemporaryParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	hash, err := parseHash32(params.IdentityHash)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	account, err := s.node.CreateTemporaryAccount(hash)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return accountToJSON(account), nil
}

func (s *Server) handleAccountsUnlockTemporary(req *RPCRequest) (interface{}, *RPCError) {
	var params accountsUnlockParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	preimage, err := parseHash32(params.IdentityPreimage)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	newOwner, err := parseAddress(params.NewOwner)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	signature, err := parseHexBytes(params.PasswordSignature)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: "signature must be hex"}
	}
	account, err := s.node.UnlockTemporaryAccount(preimage, newOwner, signature)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return accountToJSON(account), nil
}

func (s *Server) handleAccountsFromSignature(req *RPCRequest) (interface{}, *RPCError) {
	var params accountsFromSignatureParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	hash, err := parseHash32(params.MessageHash)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	signature, err := parseHexBytes(params.Signature)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: "signature must be hex"}
	}
	id, err := s.node.AccountIDFromSignature(hash, signature)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return hex.EncodeToString(id[:]), nil
}

func (s *Server) handleAccountsGet(req *RPCRequest) (interface{}, *RPCError) {
	var params accountsGetParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	id, err := parseAccountID(params.ID)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	account, err := s.node.GetAccountRecord(id)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return accountToJSON(account), nil
}
