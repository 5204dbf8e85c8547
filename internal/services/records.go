package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"restodash/server/internal/models"
	"restodash/server/internal/store"
)

// Преобразование строк хранилища в модели и обратно.
// Все расхождения в именах полей (menuItemId / menu_item_id / ...) разбираются только здесь.

var errMissingID = errors.New("row has no id")

func orderFromRow(row store.Row) (models.Order, error) {
	id, ok := toInt64(row["id"])
	if !ok {
		return models.Order{}, errMissingID
	}
	o := models.Order{
		ID:                  id,
		TableNumber:         int(rowInt(row, "table_number")),
		ServerName:          rowString(row, "server_name"),
		GuestCount:          int(rowInt(row, "guest_count")),
		Status:              models.OrderStatus(rowString(row, "status")),
		Total:               rowFloat(row, "total"),
		SpecialInstructions: rowString(row, "special_instructions"),
		EstimatedPrepTime:   int(rowInt(row, "estimated_prep_time")),
		PaymentStatus:       models.PaymentStatus(rowString(row, "payment_status")),
		PaymentMethod:       rowString(row, "payment_method"),
		Tip:                 rowFloat(row, "tip"),
		PaidAt:              rowTimePtr(row, "paid_at"),
		Timestamp:           rowTime(row, "timestamp"),
		UpdatedAt:           rowTime(row, "updated_at"),
	}
	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = models.PaymentStatusUnpaid
	}

	items, err := decodeOrderItems(row["items"])
	if err != nil {
		o.Items = []models.OrderItem{}
		return o, &MalformedRecordError{Table: models.TableOrders, ID: id, Err: err}
	}
	o.Items = items
	return o, nil
}

func orderToRow(o models.Order) (store.Row, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return nil, err
	}
	row := store.Row{
		"id":                   o.ID,
		"table_number":         o.TableNumber,
		"server_name":          o.ServerName,
		"guest_count":          o.GuestCount,
		"items":                string(items),
		"status":               string(o.Status),
		"total":                o.Total,
		"special_instructions": o.SpecialInstructions,
		"estimated_prep_time":  o.EstimatedPrepTime,
		"payment_status":       string(o.PaymentStatus),
		"payment_method":       o.PaymentMethod,
		"tip":                  o.Tip,
		"timestamp":            o.Timestamp,
	}
	if o.PaidAt != nil {
		row["paid_at"] = *o.PaidAt
	}
	return row, nil
}

func kitchenOrderFromRow(row store.Row) (models.KitchenOrder, error) {
	id, ok := toInt64(row["id"])
	if !ok {
		return models.KitchenOrder{}, errMissingID
	}
	k := models.KitchenOrder{
		ID:                    id,
		OrderID:               rowInt(row, "order_id"),
		TableNumber:           int(rowInt(row, "table_number")),
		Status:                models.KitchenStatus(rowString(row, "status")),
		Priority:              models.Priority(rowString(row, "priority")),
		Notes:                 rowString(row, "notes"),
		EstimatedDeliveryTime: rowTime(row, "estimated_delivery_time"),
		CreatedAt:             rowTime(row, "created_at"),
		UpdatedAt:             rowTime(row, "updated_at"),
	}
	if _, ok := models.ParsePriority(string(k.Priority)); !ok {
		k.Priority = models.PriorityNormal
	}

	items, err := decodeKitchenItems(row["items"])
	if err != nil {
		k.Items = []models.KitchenOrderItem{}
		err = &MalformedRecordError{Table: models.TableKitchenOrders, ID: id, Err: err}
	} else {
		k.Items = items
	}

	// delivered/cancelled выставляются явно, остальное выводится из позиций
	if !k.Status.IsTerminal() {
		k.Status = models.AggregateStatus(k.Items)
	}
	return k, err
}

func kitchenOrderToRow(k models.KitchenOrder) (store.Row, error) {
	items, err := encodeKitchenItems(k.Items)
	if err != nil {
		return nil, err
	}
	row := store.Row{
		"order_id":                k.OrderID,
		"table_number":            k.TableNumber,
		"items":                   items,
		"status":                  string(k.Status),
		"priority":                string(k.Priority),
		"notes":                   k.Notes,
		"estimated_delivery_time": k.EstimatedDeliveryTime,
		"created_at":              k.CreatedAt,
	}
	if k.ID != 0 {
		row["id"] = k.ID
	}
	return row, nil
}

func encodeKitchenItems(items []models.KitchenOrderItem) (string, error) {
	if items == nil {
		items = []models.KitchenOrderItem{}
	}
	b, err := json.Marshal(items)
	return string(b), err
}

// itemsPayload достает сырой JSON из text/jsonb колонки или уже разобранного значения
func itemsPayload(raw any) ([]map[string]any, error) {
	var data []byte
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	case []map[string]any:
		return v, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for i, el := range v {
			m, ok := el.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("item %d is %T, not an object", i, el)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported items type %T", raw)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var out []map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeOrderItems(raw any) ([]models.OrderItem, error) {
	payload, err := itemsPayload(raw)
	if err != nil {
		return nil, err
	}
	items := make([]models.OrderItem, 0, len(payload))
	for _, m := range payload {
		id, _ := toInt64(pick(m, "id", "menuItemId", "menu_item_id"))
		qty, _ := toInt64(pick(m, "quantity", "qty"))
		items = append(items, models.OrderItem{
			ID:       id,
			Name:     toString(pick(m, "name")),
			Price:    toFloat(pick(m, "price")),
			Quantity: int(qty),
		})
	}
	return items, nil
}

func decodeKitchenItems(raw any) ([]models.KitchenOrderItem, error) {
	payload, err := itemsPayload(raw)
	if err != nil {
		return nil, err
	}
	items := make([]models.KitchenOrderItem, 0, len(payload))
	for i, m := range payload {
		id, ok := toInt64(pick(m, "id"))
		if !ok || id == 0 {
			id = int64(i + 1)
		}
		menuID, _ := toInt64(pick(m, "menuItemId", "menu_item_id", "menuItemID"))
		qty, ok := toInt64(pick(m, "quantity", "qty"))
		if !ok {
			qty = 1
		}
		status, ok := models.ParseKitchenStatus(toString(pick(m, "status")))
		if !ok {
			status = models.KitchenStatusPending
		}
		items = append(items, models.KitchenOrderItem{
			ID:             int(id),
			MenuItemID:     menuID,
			Name:           toString(pick(m, "name")),
			Quantity:       int(qty),
			Status:         status,
			CookingStation: toString(pick(m, "cookingStation", "cooking_station", "station")),
			AssignedChef:   toString(pick(m, "assignedChef", "assigned_chef")),
			Modifications:  toStrings(pick(m, "modifications")),
			AllergenAlert:  toBool(pick(m, "allergenAlert", "allergen_alert")),
			StartTime:      toTimePtr(pick(m, "startTime", "start_time")),
			CompletionTime: toTimePtr(pick(m, "completionTime", "completion_time")),
		})
	}
	return items, nil
}

func pick(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func rowString(row store.Row, key string) string { return toString(row[key]) }
func rowFloat(row store.Row, key string) float64 { return toFloat(row[key]) }
func rowTime(row store.Row, key string) time.Time {
	if t := toTimePtr(row[key]); t != nil {
		return *t
	}
	return time.Time{}
}
func rowTimePtr(row store.Row, key string) *time.Time { return toTimePtr(row[key]) }
func rowInt(row store.Row, key string) int64 {
	n, _ := toInt64(row[key])
	return n
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	case []byte:
		i, err := strconv.ParseInt(string(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

// toFloat понимает numeric, который драйвер отдает строкой
func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case decimal.Decimal:
		return n.InexactFloat64()
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		if d, err := decimal.NewFromString(strings.TrimSpace(n)); err == nil {
			return d.InexactFloat64()
		}
	case []byte:
		if d, err := decimal.NewFromString(string(n)); err == nil {
			return d.InexactFloat64()
		}
	}
	return 0
}

func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	}
	return false
}

func toTimePtr(v any) *time.Time {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case *time.Time:
		if x == nil {
			return nil
		}
		t = *x
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return nil
		}
		t = parsed
	default:
		return nil
	}
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

func toStrings(v any) []string {
	switch x := v.(type) {
	case []string:
		return append([]string(nil), x...)
	case []any:
		out := make([]string, 0, len(x))
		for _, el := range x {
			if s := toString(el); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if x == "" {
			return []string{}
		}
		return []string{x}
	}
	return []string{}
}
