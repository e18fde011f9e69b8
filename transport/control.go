package transport

// Payload vocabulary of the power control channels (TagPowerSet,
// TagPowerQuery). A set carries [rail, level]; a query carries [rail]
// and is answered by a same-tag packet carrying [rail, level].
const (
	WireRail0P6   byte = 0
	WireRail1P2   byte = 1
	WireRailVBatt byte = 2
	WireRailGOC   byte = 3

	WireLevelOff  byte = 0
	WireLevelLow  byte = 1
	WireLevelMid  byte = 2
	WireLevelHigh byte = 3
)

// Payload vocabulary of the bus parameter channels (TagBusSet,
// TagBusQuery). A set carries [param, value...]; a query carries
// [param] and is answered by a same-tag packet echoing the parameter
// and its current value.
const (
	BusParamSnoop  byte = 0 // value: 0 off, 1 on
	BusParamAckAll byte = 1 // value: 0 off, 1 on
	BusParamMask   byte = 2 // value: [ones, zeros] don't-care mask
)
