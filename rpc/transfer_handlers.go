package rpc

import (
	"encoding/hex"

	"cipherex/crypto"
	"cipherex/native/transfer"
)

type transferOpenParams struct {
	Collection string `json:"collection"`
	AssetID    uint64 `json:"assetId"`
	Caller     string `json:"caller"`
	To         string `json:"to,omitempty"`
	DataHex    string `json:"data,omitempty"`
	Callback   string `json:"callback,omitempty"`
}

type transferCompleteParams struct {
	Collection   string `json:"collection"`
	AssetID      uint64 `json:"assetId"`
	Caller       string `json:"caller"`
	To           string `json:"to"`
	PublicKeyHex string `json:"publicKey"`
	AuxHex       string `json:"aux,omitempty"`
}

type transferKeyParams struct {
	Collection   string `json:"collection"`
	AssetID      uint64 `json:"assetId"`
	Caller       string `json:"caller"`
	PublicKeyHex string `json:"publicKey"`
	Epoch        uint64 `json:"epoch"`
}

type transferSecretParams struct {
	Collection string `json:"collection"`
	AssetID    uint64 `json:"assetId"`
	Caller     string `json:"caller"`
	SecretHex  string `json:"encryptedSecret"`
}

type transferActorParams struct {
	Collection string `json:"collection"`
	AssetID    uint64 `json:"assetId"`
	Caller     string `json:"caller"`
}

type transferReportParams struct {
	Collection    string `json:"collection"`
	AssetID       uint64 `json:"assetId"`
	Caller        string `json:"caller"`
	PrivateKeyHex string `json:"privateKey"`
}

type transferDecisionParams struct {
	Collection string `json:"collection"`
	AssetID    uint64 `json:"assetId"`
	Caller     string `json:"caller"`
	Approved   bool   `json:"approved"`
}

type transferLookupParams struct {
	Collection string `json:"collection"`
	AssetID    uint64 `json:"assetId"`
}

type transferJSON struct {
	Collection     string `json:"collection"`
	AssetID        uint64 `json:"assetId"`
	Status         string `json:"status"`
	Initiator      string `json:"initiator"`
	From           string `json:"from"`
	To             string `json:"to,omitempty"`
	PublicKey      string `json:"publicKey,omitempty"`
	Callback       string `json:"callback,omitempty"`
	FraudReported  bool   `json:"fraudReported"`
	Epoch          uint64 `json:"epoch"`
	EpochTimestamp int64  `json:"epochTimestamp"`
	PublicKeySetAt int64  `json:"publicKeySetAt,omitempty"`
	SecretSetAt    int64  `json:"secretSetAt,omitempty"`
}

func recordJSON(r *transfer.Record) *transferJSON {
	out := &transferJSON{
		Collection:     crypto.MustNewAddress(r.Collection).String(),
		AssetID:        r.AssetID,
		Status:         r.Status().String(),
		Initiator:      crypto.MustNewAddress(r.Initiator).String(),
		From:           crypto.MustNewAddress(r.From).String(),
		Callback:       r.Callback,
		FraudReported:  r.FraudReported,
		Epoch:          r.EpochNumber,
		EpochTimestamp: r.EpochTimestamp,
		PublicKeySetAt: r.PublicKeySetAt,
		SecretSetAt:    r.SecretSetAt,
	}
	if r.ToSet {
		out.To = crypto.MustNewAddress(r.To).String()
	}
	if len(r.PublicKey) > 0 {
		out.PublicKey = hex.EncodeToString(r.PublicKey)
	}
	return out
}

func (s *Server) handleTransferInit(req *RPCRequest) (interface{}, *RPCError) {
	var params transferOpenParams
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
	to, err := parseBech32Address(params.To)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	data, err := parseHexBytes(params.DataHex)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	if err := s.transfer.InitTransfer(collection, params.AssetID, caller, to, data, params.Callback); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleTransferDraft(req *RPCRequest) (interface{}, *RPCError) {
	var params transferOpenParams
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
	if err := s.transfer.DraftTransfer(collection, params.AssetID, caller, params.Callback); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleTransferCompleteDraft(req *RPCRequest) (interface{}, *RPCError) {
	var params transferCompleteParams
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
	to, err := parseBech32Address(params.To)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	publicKey, err := parseHexBytes(params.PublicKeyHex)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	aux, err := parseHexBytes(params.AuxHex)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	if err := s.transfer.CompleteTransferDraft(collection, params.AssetID, caller, to, publicKey, aux); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleTransferSetPublicKey(req *RPCRequest) (interface{}, *RPCError) {
	var params transferKeyParams
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
	publicKey, err := parseHexBytes(params.PublicKeyHex)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	if err := s.transfer.SetTransferPublicKey(collection, params.AssetID, caller, publicKey, params.Epoch); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleTransferApprove(req *RPCRequest) (interface{}, *RPCError) {
	var params transferSecretParams
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
	secret, err := parseHexBytes(params.SecretHex)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	if err := s.transfer.ApproveTransfer(collection, params.AssetID, caller, secret); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleTransferFinalize(req *RPCRequest) (interface{}, *RPCError) {
	var params transferActorParams
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
	if err := s.transfer.FinalizeTransfer(collection, params.AssetID, caller); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleTransferReportFraud(req *RPCRequest) (interface{}, *RPCError) {
	var params transferReportParams
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
	privateKey, err := parseHexBytes(params.PrivateKeyHex)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	if err := s.transfer.ReportFraud(collection, params.AssetID, caller, privateKey); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleTransferApplyFraudDecision(req *RPCRequest) (interface{}, *RPCError) {
	var params transferDecisionParams
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
	if err := s.transfer.ApplyFraudDecision(collection, params.AssetID, caller, params.Approved); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleTransferCancel(req *RPCRequest) (interface{}, *RPCError) {
	var params transferActorParams
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
	if err := s.transfer.CancelTransfer(collection, params.AssetID, caller); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleTransferGet(req *RPCRequest) (interface{}, *RPCError) {
	var params transferLookupParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	collection, err := parseBech32Address(params.Collection)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	record, ok := s.transfer.Record(collection, params.AssetID)
	if !ok {
		return nil, engineError(transfer.ErrNotFound)
	}
	return recordJSON(record), nil
}

func (s *Server) handleTransferEpoch(req *RPCRequest) (interface{}, *RPCError) {
	var params transferLookupParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	collection, err := parseBech32Address(params.Collection)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	epoch, err := s.transfer.EpochNumber(collection, params.AssetID)
	if err != nil {
		return nil, engineError(err)
	}
	return map[string]uint64{"epoch": epoch}, nil
}
