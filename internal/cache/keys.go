package cache

import "fmt"

func ResultKey(sessionID string) string {
	return fmt.Sprintf("aurasr:result:%s", sessionID)
}
