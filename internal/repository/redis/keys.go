package redisrepo

import "fmt"

const ns = "tixreserve:v1"

func KeySeatCatalog(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:catalog", ns, eventID)
}

func KeyRateLimit(scope string) string {
	return fmt.Sprintf("%s:rl:%s", ns, scope)
}

func KeyIdemHold(eventID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:holds:%d:%s", ns, eventID, idemKey)
}

func ChannelSeatsChanged(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:seats:changed", ns, eventID)
}
