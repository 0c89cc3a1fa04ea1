package featureflag

type Flag string

const (
	FlagSilentStalePrune            Flag = "SILENT_STALE_PRUNE"
	FlagDisableItemEnteredBroadcast Flag = "DISABLE_ITEM_ENTERED_BROADCAST"
	FlagDisableItemExitedBroadcast  Flag = "DISABLE_ITEM_EXITED_BROADCAST"
	FlagDisableOccupancyBroadcast   Flag = "DISABLE_OCCUPANCY_BROADCAST"
)
