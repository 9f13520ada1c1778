package marketplace

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/renaultluk/sweat-coin/core/types"
)

const (
	EventTypeDatasetCreated   = "market.dataset.created"
	EventTypeDatasetPurchased = "market.dataset.purchased"
)

func newDatasetCreatedEvent(dataset *Dataset) *types.Event {
	return &types.Event{Type: EventTypeDatasetCreated, Attributes: map[string]string{
		"id":        strconv.FormatUint(dataset.ID, 10),
		"title":     dataset.Title,
		"price":     dataset.Price.String(),
		"userCount": strconv.FormatUint(dataset.UserCount, 10),
	}}
}

func newDatasetPurchasedEvent(buyer common.Address, dataset *Dataset, timestamp uint64) *types.Event {
	return &types.Event{Type: EventTypeDatasetPurchased, Attributes: map[string]string{
		"buyer":     buyer.Hex(),
		"id":        strconv.FormatUint(dataset.ID, 10),
		"price":     dataset.Price.String(),
		"timestamp": strconv.FormatUint(timestamp, 10),
	}}
}
