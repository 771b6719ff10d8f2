package orders

const (
	TopicOrderCreated       = "shop.order.created"
	TopicOrderStatusChanged = "shop.order.status_changed"
	TopicOrderDeleted       = "shop.order.deleted"
	TopicStockLow           = "shop.product.stock_low"
)

// Partition key = order_id so all events of one order keep their order.
func PartitionKey(id string) []byte { return []byte(id) }
