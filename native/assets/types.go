package assets

// Collection groups tokens minted under one address-like identifier. The
// transfer engine resolves registries per collection.
type Collection struct {
	Address [20]byte
	Name    string
	Symbol  string
	Creator [20]byte
}

// Clone returns a copy safe to hand to callers.
func (c *Collection) Clone() *Collection {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Token is one uniquely identified asset. Approved is a single-slot operator
// grant cleared on every ownership change; ApprovedSet tags presence so the
// zero address never doubles as a flag. ContentAssigned records whether the
// blind-box content behind the token has been bound yet; the whitelist
// pricing tier only applies to first purchases.
type Token struct {
	Collection      [20]byte
	ID              uint64
	Owner           [20]byte
	Approved        [20]byte
	ApprovedSet     bool
	MetaHash        [32]byte
	MetaURI         string
	ContentAssigned bool
}

// Clone returns a copy safe to hand to callers.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}
