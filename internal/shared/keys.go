package shared

import "strconv"

// Redis keys are namespaced per order so one order never evicts another.

// OrderSummaryVersionKey holds the generation counter of an order's cached summary.
func OrderSummaryVersionKey(orderID int64) string {
	return "orders:summary:" + strconv.FormatInt(orderID, 10) + ":version"
}

// OrderSummaryKey addresses one generation of an order's cached summary.
func OrderSummaryKey(orderID, version int64) string {
	return "orders:summary:" + strconv.FormatInt(orderID, 10) + ":" + strconv.FormatInt(version, 10)
}

// OrderRecomputeLockKey guards a running recompute of an order.
func OrderRecomputeLockKey(orderID int64) string {
	return "sales:order:" + strconv.FormatInt(orderID, 10) + ":recompute:lock"
}
