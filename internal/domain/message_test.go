package domain

import (
	"testing"
	"time"
)

func TestConversationTurnSameAs(t *testing.T) {
	a := ConversationTurn{ID: "1", Role: RoleUser, Content: "hi", Timestamp: time.Now()}
	b := ConversationTurn{ID: "2", Role: RoleUser, Content: "hi", Timestamp: time.Now().Add(time.Hour)}
	c := ConversationTurn{ID: "3", Role: RoleAssistant, Content: "hi"}

	if !a.SameAs(b) {
		t.Error("turns with the same role and content should match")
	}
	if a.SameAs(c) {
		t.Error("turns with different roles should not match")
	}
}
