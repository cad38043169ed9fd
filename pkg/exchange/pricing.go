package exchange

import (
	"github.com/shopspring/decimal"
)

// linePoint is one (quantity, price) sample on a side's demand or supply
// line.
type linePoint struct {
	qty   uint64
	price uint64
}

// updateMarketPrice refreshes the clearing-price estimate from the current
// books. The demand line runs through the best and worst live buy limits,
// the supply line through the best and worst live sell limits; the
// intersection's price coordinate, floored to an integer, becomes the new
// market price. Parallel lines, a negative intersection or a side without
// limit orders keep the previous price. Staleness between placements is
// accepted.
func (e *Engine) updateMarketPrice() {
	buyBest, buyWorst, ok := e.buy.LimitEndpoints()
	if !ok {
		return
	}
	sellBest, sellWorst, ok := e.sell.LimitEndpoints()
	if !ok {
		return
	}

	price, ok := intersectPrice(
		linePoint{buyBest.Quantity(), buyBest.LimitPrice()},
		linePoint{buyWorst.Quantity(), buyWorst.LimitPrice()},
		linePoint{sellBest.Quantity(), sellBest.LimitPrice()},
		linePoint{sellWorst.Quantity(), sellWorst.LimitPrice()},
	)
	if !ok {
		return
	}
	e.marketPrice.Store(price)
}

// intersectPrice solves the two lines p1-p2 and p3-p4 (x = quantity,
// y = price) and returns the floored price coordinate of their
// intersection. ok is false for parallel or coincident lines and for
// intersections below zero.
func intersectPrice(p1, p2, p3, p4 linePoint) (uint64, bool) {
	x1, y1 := decimal.NewFromUint64(p1.qty), decimal.NewFromUint64(p1.price)
	x2, y2 := decimal.NewFromUint64(p2.qty), decimal.NewFromUint64(p2.price)
	x3, y3 := decimal.NewFromUint64(p3.qty), decimal.NewFromUint64(p3.price)
	x4, y4 := decimal.NewFromUint64(p4.qty), decimal.NewFromUint64(p4.price)

	// a1*x + b1*y = c1
	a1 := y2.Sub(y1)
	b1 := x1.Sub(x2)
	c1 := a1.Mul(x1).Add(b1.Mul(y1))

	// a2*x + b2*y = c2
	a2 := y4.Sub(y3)
	b2 := x3.Sub(x4)
	c2 := a2.Mul(x3).Add(b2.Mul(y3))

	det := a1.Mul(b2).Sub(a2.Mul(b1))
	if det.IsZero() {
		return 0, false
	}

	y := a1.Mul(c2).Sub(a2.Mul(c1)).Div(det)
	if y.IsNegative() {
		return 0, false
	}
	return uint64(y.IntPart()), true
}
