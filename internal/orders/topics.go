package orders

const (
	TopicOrderEvents     = "order.events"
	TopicInventoryEvents = "inventory.events"
	TopicReservation     = "inventory.reservation"
	TopicRestock         = "inventory.restock"
)

// Partition key = order id, so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
