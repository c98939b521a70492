package rpc

import (
	"encoding/hex"
	"fmt"
	"strings"

	"datamarket/crypto"
	"datamarket/native/market"
)

type marketPrepareParams struct {
	Caller   string   `json:"caller"`
	Provider string   `json:"provider"`
	Consumer string   `json:"consumer"`
	Handler  string   `json:"escrowHandler"`
	Selector string   `json:"escrowSelector"`
	Args     string   `json:"escrowArgs,omitempty"`
	Nonce    uint64   `json:"nonce,omitempty"`
	DataIDs  []string `json:"dataIds,omitempty"`
}

type marketOfferParams struct {
	Caller string `json:"caller"`
	ID     string `json:"id"`
}

type marketAddDataIDsParams struct {
	Caller  string   `json:"caller"`
	ID      string   `json:"id"`
	DataIDs []string `json:"dataIds"`
}

type marketIDParams struct {
	ID string `json:"id"`
}

type offerJSON struct {
	ID       string   `json:"id"`
	Provider string   `json:"provider"`
	Consumer string   `json:"consumer"`
	DataIDs  []string `json:"dataIds"`
	Handler  string   `json:"escrowHandler"`
	Selector string   `json:"escrowSelector"`
	Args     string   `json:"escrowArgs,omitempty"`
	At       uint64   `json:"at"`
	Until    uint64   `json:"until"`
	Status   string   `json:"status"`
}

type settleResultJSON struct {
	Settled bool   `json:"settled"`
	Receipt string `json:"receipt,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type offerMembersJSON struct {
	Provider string `json:"provider"`
	Consumer string `json:"consumer"`
}

func parseAddress(value string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, fmt.Errorf("invalid address: %w", err)
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.DXPrefix, addr[:]).String()
}

func parseOfferID(value string) (market.OfferID, error) {
	var id market.OfferID
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if err != nil || len(raw) != len(id) {
		return id, fmt.Errorf("offer id must be %d hex bytes", len(id))
	}
	copy(id[:], raw)
	return id, nil
}

func parseDataIDs(values []string) ([]market.DataID, error) {
	out := make([]market.DataID, 0, len(values))
	for _, value := range values {
		raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
		if err != nil || len(raw) != 20 {
			return nil, fmt.Errorf("data id must be 20 hex bytes")
		}
		var id market.DataID
		copy(id[:], raw)
		out = append(out, id)
	}
	return out, nil
}

func parseSelector(value string) ([4]byte, error) {
	var sel [4]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if err != nil || len(raw) != len(sel) {
		return sel, fmt.Errorf("selector must be %d hex bytes", len(sel))
	}
	copy(sel[:], raw)
	return sel, nil
}

func parseHexBytes(value string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return nil, nil
	}
	return hex.DecodeString(trimmed)
}

func offerToJSON(offer *market.Offer) *offerJSON {
	dataIDs := make([]string, 0, len(offer.DataIDs))
	for _, id := range offer.DataIDs {
		dataIDs = append(dataIDs, hex.EncodeToString(id[:]))
	}
	return &offerJSON{
		ID:       hex.EncodeToString(offer.ID[:]),
		Provider: offer.Provider,
		Consumer: formatAddress(offer.Consumer),
		DataIDs:  dataIDs,
		Handler:  formatAddress(offer.Escrow.Handler),
		Selector: hex.EncodeToString(offer.Escrow.Selector[:]),
		Args:     hex.EncodeToString(offer.Escrow.Args),
		At:       offer.At,
		Until:    offer.Until,
		Status:   offer.Status.String(),
	}
}

func (s *Server) handleMarketPrepare(req *RPCRequest) (interface{}, *RPCError) {
	var params marketPrepareParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	consumer, err := parseAddress(params.Consumer)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	handler, err := parseAddress(params.Handler)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	selector, err := parseSelector(params.Selector)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	args, err := parseHexBytes(params.Args)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: "escrow args must be hex"}
	}
	dataIDs, err := parseDataIDs(params.DataIDs)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	escrow := market.EscrowCall{Handler: handler, Selector: selector, Args: args}
	offer, err := s.node.PrepareOffer(caller, params.Provider, consumer, escrow, params.Nonce, dataIDs)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return offerToJSON(offer), nil
}

func (s *Server) handleMarketAddDataIDs(req *RPCRequest) (interface{}, *RPCError) {
	var params marketAddDataIDsParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	id, err := parseOfferID(params.ID)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	dataIDs, err := parseDataIDs(params.DataIDs)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	if err := s.node.AddDataIDs(caller, id, dataIDs); err != nil {
		return nil, errorToRPC(err)
	}
	return true, nil
}

func (s *Server) offerAction(req *RPCRequest, action func(caller [20]byte, id market.OfferID) error) (interface{}, *RPCError) {
	var params marketOfferParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	id, err := parseOfferID(params.ID)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	if err := action(caller, id); err != nil {
		return nil, errorToRPC(err)
	}
	return true, nil
}

func (s *Server) handleMarketOrder(req *RPCRequest) (interface{}, *RPCError) {
	return s.offerAction(req, s.node.OrderOffer)
}

func (s *Server) handleMarketCancel(req *RPCRequest) (interface{}, *RPCError) {
	return s.offerAction(req, s.node.CancelOffer)
}

func (s *Server) handleMarketReject(req *RPCRequest) (interface{}, *RPCError) {
	return s.offerAction(req, s.node.RejectOffer)
}

func (s *Server) handleMarketSettle(req *RPCRequest) (interface{}, *RPCError) {
	var params marketOfferParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	id, err := parseOfferID(params.ID)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	result, err := s.node.SettleOffer(caller, id)
	if err != nil {
		return nil, errorToRPC(err)
	}
	out := &settleResultJSON{Settled: result.Settled, Reason: result.Reason}
	if result.Settled {
		out.Receipt = hex.EncodeToString(result.Receipt)
	}
	return out, nil
}

func (s *Server) handleMarketOfferExists(req *RPCRequest) (interface{}, *RPCError) {
	var params marketIDParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	id, err := parseOfferID(params.ID)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	exists, err := s.node.OfferExists(id)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return exists, nil
}

func (s *Server) handleMarketGetOffer(req *RPCRequest) (interface{}, *RPCError) {
	var params marketIDParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	id, err := parseOfferID(params.ID)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	offer, err := s.node.GetOffer(id)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return offerToJSON(offer), nil
}

func (s *Server) handleMarketGetOfferMembers(req *RPCRequest) (interface{}, *RPCError) {
	var params marketIDParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	id, err := parseOfferID(params.ID)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	provider, consumer, err := s.node.GetOfferMembers(id)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return &offerMembersJSON{
		Provider: formatAddress(provider),
		Consumer: formatAddress(consumer),
	}, nil
}

func (s *Server) handleMarketEvents(req *RPCRequest) (interface{}, *RPCError) {
	if len(req.Params) != 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "market_events takes no parameters"}
	}
	return s.node.Events(), nil
}
