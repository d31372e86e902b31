package rpc

import (
	"math/big"

	"cipherex/crypto"
	"cipherex/native/exchange"
)

type orderPlaceParams struct {
	Collection string `json:"collection"`
	AssetID    uint64 `json:"assetId"`
	Caller     string `json:"caller"`
	Price      string `json:"price"`
}

type orderBatchParams struct {
	Collection string   `json:"collection"`
	AssetIDs   []uint64 `json:"assetIds"`
	Caller     string   `json:"caller"`
	Prices     []string `json:"prices"`
}

type orderFulfillParams struct {
	Collection   string `json:"collection"`
	AssetID      uint64 `json:"assetId"`
	Caller       string `json:"caller"`
	PublicKeyHex string `json:"publicKey"`
	Value        string `json:"value"`
	SignatureHex string `json:"signature,omitempty"`
}

type orderActorParams struct {
	Collection string `json:"collection"`
	AssetID    uint64 `json:"assetId"`
	Caller     string `json:"caller"`
}

type orderLookupParams struct {
	Collection string `json:"collection"`
	AssetID    uint64 `json:"assetId"`
}

type orderJSON struct {
	Collection string `json:"collection"`
	AssetID    uint64 `json:"assetId"`
	Price      string `json:"price"`
	Initiator  string `json:"initiator"`
	Receiver   string `json:"receiver,omitempty"`
	Fulfilled  bool   `json:"fulfilled"`
	Paid       string `json:"paid,omitempty"`
}

func orderToJSON(o *exchange.Order) *orderJSON {
	out := &orderJSON{
		Collection: crypto.MustNewAddress(o.Collection).String(),
		AssetID:    o.AssetID,
		Price:      o.Price.String(),
		Initiator:  crypto.MustNewAddress(o.Initiator).String(),
		Fulfilled:  o.Fulfilled,
	}
	if o.Fulfilled {
		out.Receiver = crypto.MustNewAddress(o.Receiver).String()
		out.Paid = o.Paid.String()
	}
	return out
}

func (s *Server) handleExchangePlace(req *RPCRequest) (interface{}, *RPCError) {
	var params orderPlaceParams
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
	price, err := parsePositiveBigInt(params.Price)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	if err := s.exchange.PlaceOrder(collection, params.AssetID, caller, price); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleExchangePlaceBatch(req *RPCRequest) (interface{}, *RPCError) {
	var params orderBatchParams
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
	prices := make([]*big.Int, len(params.Prices))
	for i, raw := range params.Prices {
		price, err := parsePositiveBigInt(raw)
		if err != nil {
			return nil, invalidParams(err.Error())
		}
		prices[i] = price
	}
	if err := s.exchange.PlaceOrderBatch(collection, params.AssetIDs, caller, prices); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleExchangeFulfill(req *RPCRequest) (interface{}, *RPCError) {
	params, collection, caller, publicKey, value, rpcErr := s.fulfillParams(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.exchange.FulfillOrder(collection, params.AssetID, caller, publicKey, value); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleExchangeFulfillWhitelisted(req *RPCRequest) (interface{}, *RPCError) {
	params, collection, caller, publicKey, value, rpcErr := s.fulfillParams(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	signature, err := parseHexBytes(params.SignatureHex)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	if err := s.exchange.FulfillOrderWhitelisted(collection, params.AssetID, caller, publicKey, value, signature); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) fulfillParams(req *RPCRequest) (*orderFulfillParams, [20]byte, [20]byte, []byte, *big.Int, *RPCError) {
	var params orderFulfillParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, [20]byte{}, [20]byte{}, nil, nil, rpcErr
	}
	collection, err := parseBech32Address(params.Collection)
	if err != nil {
		return nil, [20]byte{}, [20]byte{}, nil, nil, invalidParams(err.Error())
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		return nil, [20]byte{}, [20]byte{}, nil, nil, invalidParams(err.Error())
	}
	publicKey, err := parseHexBytes(params.PublicKeyHex)
	if err != nil {
		return nil, [20]byte{}, [20]byte{}, nil, nil, invalidParams(err.Error())
	}
	value, err := parsePositiveBigInt(params.Value)
	if err != nil {
		return nil, [20]byte{}, [20]byte{}, nil, nil, invalidParams(err.Error())
	}
	return &params, collection, caller, publicKey, value, nil
}

func (s *Server) handleExchangeCancel(req *RPCRequest) (interface{}, *RPCError) {
	var params orderActorParams
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
	if err := s.exchange.CancelOrder(collection, params.AssetID, caller); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleExchangeGet(req *RPCRequest) (interface{}, *RPCError) {
	var params orderLookupParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	collection, err := parseBech32Address(params.Collection)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	order, ok := s.exchange.Order(collection, params.AssetID)
	if !ok {
		return nil, engineError(exchange.ErrNotFound)
	}
	return orderToJSON(order), nil
}
