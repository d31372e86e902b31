package rpc

import (
	"encoding/hex"
	"strings"

	"cipherex/crypto"
	"cipherex/native/assets"
)

type collectionCreateParams struct {
	Collection string `json:"collection"`
	Creator    string `json:"creator"`
	Name       string `json:"name"`
	Symbol     string `json:"symbol"`
}

type tokenMintParams struct {
	Collection string `json:"collection"`
	Caller     string `json:"caller"`
	Owner      string `json:"owner"`
	ID         uint64 `json:"id"`
	MetaHash   string `json:"metaHash,omitempty"`
	MetaURI    string `json:"metaUri,omitempty"`
}

type tokenApproveParams struct {
	Collection string `json:"collection"`
	Caller     string `json:"caller"`
	Operator   string `json:"operator"`
	ID         uint64 `json:"id"`
}

type contentAssignParams struct {
	Collection string `json:"collection"`
	Caller     string `json:"caller"`
	ID         uint64 `json:"id"`
	MetaHash   string `json:"metaHash"`
}

type tokenLookupParams struct {
	Collection string `json:"collection"`
	ID         uint64 `json:"id"`
}

type tokenJSON struct {
	Collection      string `json:"collection"`
	ID              uint64 `json:"id"`
	Owner           string `json:"owner"`
	Approved        string `json:"approved,omitempty"`
	MetaHash        string `json:"metaHash,omitempty"`
	MetaURI         string `json:"metaUri,omitempty"`
	ContentAssigned bool   `json:"contentAssigned"`
}

func tokenToJSON(t *assets.Token) *tokenJSON {
	out := &tokenJSON{
		Collection:      crypto.MustNewAddress(t.Collection).String(),
		ID:              t.ID,
		Owner:           crypto.MustNewAddress(t.Owner).String(),
		MetaURI:         t.MetaURI,
		ContentAssigned: t.ContentAssigned,
	}
	if t.ApprovedSet {
		out.Approved = crypto.MustNewAddress(t.Approved).String()
	}
	if t.MetaHash != [32]byte{} {
		out.MetaHash = hex.EncodeToString(t.MetaHash[:])
	}
	return out
}

func (s *Server) handleAssetsCreateCollection(req *RPCRequest) (interface{}, *RPCError) {
	var params collectionCreateParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	collection, err := parseBech32Address(params.Collection)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	creator, err := parseBech32Address(params.Creator)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, invalidParams("name must not be empty")
	}
	if err := s.ledger.CreateCollection(collection, creator, name, strings.TrimSpace(params.Symbol)); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleAssetsMint(req *RPCRequest) (interface{}, *RPCError) {
	var params tokenMintParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	collection, err := parseBech32Address(params.Collection)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	owner, err := parseBech32Address(params.Owner)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	metaHash, err := parseHash(params.MetaHash)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	if err := s.ledger.Mint(collection, caller, owner, params.ID, metaHash, params.MetaURI); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleAssetsApprove(req *RPCRequest) (interface{}, *RPCError) {
	var params tokenApproveParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	collection, err := parseBech32Address(params.Collection)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	operator, err := parseBech32Address(params.Operator)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	if err := s.ledger.Approve(collection, caller, operator, params.ID); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleAssetsAssignContent(req *RPCRequest) (interface{}, *RPCError) {
	var params contentAssignParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	collection, err := parseBech32Address(params.Collection)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	metaHash, err := parseHash(params.MetaHash)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	if err := s.ledger.AssignContent(collection, caller, params.ID, metaHash); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleAssetsToken(req *RPCRequest) (interface{}, *RPCError) {
	var params tokenLookupParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	collection, err := parseBech32Address(params.Collection)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	token, ok := s.ledger.Token(collection, params.ID)
	if !ok {
		return nil, engineError(assets.ErrTokenNotFound)
	}
	return tokenToJSON(token), nil
}

type eventsLatestParams struct {
	Limit int `json:"limit"`
}

type eventsByTypeParams struct {
	Type  string `json:"type"`
	Limit int    `json:"limit"`
}

func (s *Server) handleEventsLatest(req *RPCRequest) (interface{}, *RPCError) {
	if s.events == nil {
		return nil, &RPCError{Code: codeNotFound, Message: "not_found", Data: "event index disabled"}
	}
	var params eventsLatestParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if params.Limit <= 0 {
		params.Limit = 50
	}
	entries, err := s.events.Latest(params.Limit)
	if err != nil {
		return nil, engineError(err)
	}
	return entries, nil
}

func (s *Server) handleEventsByType(req *RPCRequest) (interface{}, *RPCError) {
	if s.events == nil {
		return nil, &RPCError{Code: codeNotFound, Message: "not_found", Data: "event index disabled"}
	}
	var params eventsByTypeParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if strings.TrimSpace(params.Type) == "" {
		return nil, invalidParams("type must not be empty")
	}
	if params.Limit <= 0 {
		params.Limit = 50
	}
	entries, err := s.events.ByType(params.Type, params.Limit)
	if err != nil {
		return nil, engineError(err)
	}
	return entries, nil
}
