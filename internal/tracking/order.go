// Package tracking recovers carrier tracking codes from order records whose
// shape is not known in advance, and builds the carrier page URL for a code.
package tracking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Order is one order record as returned by the order store. Only its
// identifier and tracking fields are ever read.
type Order map[string]any

// idFields are probed in order for the order identifier.
var idFields = []string{"id", "order_id", "orderId"}

// ID returns the order identifier rendered as a string, or "" when absent.
func (o Order) ID() string {
	for _, f := range idFields {
		if s := scalarString(o[f]); s != "" {
			return s
		}
	}
	return ""
}

// IDs returns every non-empty identifier field, in probe order.
func (o Order) IDs() []string {
	var ids []string
	for _, f := range idFields {
		if s := scalarString(o[f]); s != "" {
			ids = append(ids, s)
		}
	}
	return ids
}

// DecodeOrders decodes a JSON array of orders. Numbers are kept as
// json.Number so large identifiers survive unchanged.
func DecodeOrders(r io.Reader) ([]Order, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var orders []Order
	if err := dec.Decode(&orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return orders, nil
}

// DecodeOrder decodes one JSON object into an Order.
func DecodeOrder(data []byte) (Order, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var o Order
	if err := dec.Decode(&o); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return o, nil
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return ""
	}
}
