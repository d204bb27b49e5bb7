//go:generate go run go.uber.org/mock/mockgen -source=signaler.go -destination=../mocks/mock_signaler.go -package=mocks

package negotiation

import "github.com/BioHazard786/Warpcast/internal/protocol"

// Signaler delivers messages to the signaling server.
type Signaler interface {
	SendMessage(msg *protocol.Message)
}
