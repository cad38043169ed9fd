package exchange

// Transaction records one settled fill between a sell and a buy order. It
// is immutable once created. The zero value is the "no trade" sentinel
// settlement returns when nothing was exchanged.
type Transaction struct {
	SellOrderID uint64
	BuyOrderID  uint64
	Quantity    uint64
	Price       uint64
}

func (t Transaction) IsZero() bool {
	return t == Transaction{}
}
