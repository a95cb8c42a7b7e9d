package billing

// ResolveDeltas diffs a bill's previous lines against its target lines
// and returns the signed stock adjustment per product. Negative values
// consume stock, positive values restore it, so a brand-new bill passes
// nil previous lines and gets pure consumption back.
//
// Lines with quantity zero or below count as removed before the diff,
// duplicate rows for one product merge by summing quantities, and
// products whose net change is zero are omitted from the result.
func ResolveDeltas(previous, target []InvoiceLine) map[int64]int64 {
	prev := mergeQuantities(previous)
	next := mergeQuantities(target)

	deltas := make(map[int64]int64, len(prev)+len(next))
	for productID, qty := range next {
		if d := -(qty - prev[productID]); d != 0 {
			deltas[productID] = d
		}
	}
	for productID, qty := range prev {
		if _, ok := next[productID]; !ok {
			deltas[productID] = qty
		}
	}
	return deltas
}

func mergeQuantities(lines []InvoiceLine) map[int64]int64 {
	merged := make(map[int64]int64, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		merged[line.ProductID] += line.Quantity
	}
	return merged
}
