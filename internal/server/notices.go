package server

import (
	"fmt"
	"math/rand"
)

// NoticeFunc renders a join/leave notice for an identity. The default picks a
// random phrasing; tests pin it to a fixed one via SetNoticeFuncs.
type NoticeFunc func(username string) string

var joinPhrases = []string{
	"%s joined the room.",
	"%s just arrived.",
	"%s slipped in quietly.",
}

var leavePhrases = []string{
	"%s left the room.",
	"%s headed out.",
	"%s wandered off.",
}

func randomJoinNotice(username string) string {
	return fmt.Sprintf(joinPhrases[rand.Intn(len(joinPhrases))], username)
}

func randomLeaveNotice(username string) string {
	return fmt.Sprintf(leavePhrases[rand.Intn(len(leavePhrases))], username)
}
