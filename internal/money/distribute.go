package money

import "fmt"

// Distribute spreads total over amounts in proportion to each amount and
// returns the adjusted amounts. Each share is total*amount/net truncated
// toward zero; what truncation leaves over is handed out one minor unit at a
// time in slice order, so the adjusted amounts always sum to exactly
// sum(amounts)+total.
//
// Amounts must be non-negative with a positive sum; refunds cannot be mixed
// into the same distribution.
func Distribute(total int64, amounts []int64) ([]int64, error) {
	if len(amounts) == 0 {
		return nil, ErrNoItems
	}
	var net int64
	for i, a := range amounts {
		if a < 0 {
			return nil, fmt.Errorf("Distribute: item %d is %d: %w", i, a, ErrNegativeAmount)
		}
		net += a
	}
	if net == 0 {
		return nil, ErrZeroNet
	}

	out := make([]int64, len(amounts))
	remainder := total
	for i, a := range amounts {
		share := total * a / net
		out[i] = a + share
		remainder -= share
	}

	for i := 0; remainder != 0; i = (i + 1) % len(out) {
		if remainder > 0 {
			out[i]++
			remainder--
		} else {
			out[i]--
			remainder++
		}
	}

	var sum int64
	for _, v := range out {
		sum += v
	}
	if sum != net+total {
		panic(fmt.Sprintf("money.Distribute: distributed %d over %d, got %d", total, net, sum))
	}
	return out, nil
}

// Shares returns only the portion of total each amount receives.
func Shares(total int64, amounts []int64) ([]int64, error) {
	adjusted, err := Distribute(total, amounts)
	if err != nil {
		return nil, err
	}
	for i := range adjusted {
		adjusted[i] -= amounts[i]
	}
	return adjusted, nil
}
