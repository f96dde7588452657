package robotics

import "sort"

const (
	defaultMaxTurns      = 6
	defaultPerAgentLimit = 4
)

// Bus is the bounded committee message queue: duplicate signals collapse on
// enqueue and each drain caps every recipient's inbox.
type Bus struct {
	maxTurns      int
	perAgentLimit int
	queue         []AgentMessage
	seen          map[string]bool
}

func NewBus(maxTurns, perAgentLimit int) *Bus {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	if perAgentLimit <= 0 {
		perAgentLimit = defaultPerAgentLimit
	}
	return &Bus{
		maxTurns:      maxTurns,
		perAgentLimit: perAgentLimit,
		seen:          map[string]bool{},
	}
}

// MaxTurns is the delivery-round budget enforced by the committee loop.
func (b *Bus) MaxTurns() int { return b.maxTurns }

// Enqueue adds a message once; duplicates of an already-seen dedupe key are
// dropped and reported as false.
func (b *Bus) Enqueue(message AgentMessage) bool {
	key := message.dedupeKey()
	if b.seen[key] {
		return false
	}
	b.seen[key] = true
	b.queue = append(b.queue, message)
	return true
}

// DequeueForAll drains one turn, grouping messages by recipient. Messages
// past a recipient's inbox cap are discarded for this turn.
func (b *Bus) DequeueForAll() map[string][]AgentMessage {
	grouped := map[string][]AgentMessage{}
	for _, message := range b.queue {
		inbox := grouped[message.To]
		if len(inbox) >= b.perAgentLimit {
			continue
		}
		grouped[message.To] = append(inbox, message)
	}
	b.queue = b.queue[:0]
	return grouped
}

// Len reports queued, undelivered messages.
func (b *Bus) Len() int { return len(b.queue) }

// Recipients returns the grouped keys in stable order.
func Recipients(grouped map[string][]AgentMessage) []string {
	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
