package rpc

import (
	"encoding/hex"

	"datamarket/native/registry"
)

type registryRegisterParams struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

type registryTransferParams struct {
	Name     string `json:"name"`
	Caller   string `json:"caller"`
	NewOwner string `json:"newOwner"`
}

type registryNameParams struct {
	Name string `json:"name"`
}

type registryIsOwnerParams struct {
	Name     string `json:"name"`
	Identity string `json:"identity"`
}

type appJSON struct {
	Name         string `json:"name"`
	Owner        string `json:"owner"`
	HashedName   string `json:"hashedName"`
	RegisteredAt uint64 `json:"registeredAt"`
}

func appToJSON(app *registry.App) *appJSON {
	return &appJSON{
		Name:         app.Name,
		Owner:        formatAddress(app.Owner),
		HashedName:   hex.EncodeToString(app.HashedName[:]),
		RegisteredAt: app.RegisteredAt,
	}
}

func (s *Server) handleRegistryRegister(req *RPCRequest) (interface{}, *RPCError) {
	var params registryRegisterParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	app, err := s.node.RegisterApplication(params.Name, owner)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return appToJSON(app), nil
}

func (s *Server) handleRegistryTransfer(req *RPCRequest) (interface{}, *RPCError) {
	var params registryTransferParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	newOwner, err := parseAddress(params.NewOwner)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	app, err := s.node.TransferApplication(params.Name, caller, newOwner)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return appToJSON(app), nil
}

func (s *Server) handleRegistryExists(req *RPCRequest) (interface{}, *RPCError) {
	var params registryNameParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	exists, err := s.node.ApplicationExists(params.Name)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return exists, nil
}

func (s *Server) handleRegistryGet(req *RPCRequest) (interface{}, *RPCError) {
	var params registryNameParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	app, err := s.node.GetApplication(params.Name)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return appToJSON(app), nil
}

func (s *Server) handleRegistryIsOwner(req *RPCRequest) (interface{}, *RPCError) {
	var params registryIsOwnerParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	identity, err := parseAddress(params.Identity)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	ok, err := s.node.IsApplicationOwner(params.Name, identity)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return ok, nil
}
