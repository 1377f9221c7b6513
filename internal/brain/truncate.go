package brain

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
)

// DefaultContextBudget is the estimated token budget of a model request.
const DefaultContextBudget = 80000

// minTurns is the floor truncation never goes below.
const minTurns = 3

// EstimateTokens approximates the token count of a payload of n bytes.
func EstimateTokens(n int) int {
	return int(math.Ceil(float64(n) / 3.5))
}

// EstimateConversation estimates the tokens of the serialized conversation.
func EstimateConversation(conv Conversation) int {
	sizes := turnSizes(conv)
	return EstimateTokens(totalSize(sizes))
}

// Truncate evicts the oldest turns after the first until the conversation
// fits budget tokens or only three turns remain. The first turn and the last
// two turns are never removed. An assistant turn is removed together with the
// tool_results turn answering it; when that pair would cross the floor,
// truncation stops over budget rather than orphan the results.
func Truncate(conv Conversation, budget int) Conversation {
	sizes := turnSizes(conv)
	total := totalSize(sizes)
	if EstimateTokens(total) <= budget || len(conv) <= minTurns {
		return conv
	}

	out := conv.Clone()
	removed := 0
	for EstimateTokens(total) > budget && len(out) > minTurns {
		n := 1
		if out[2].Role == RoleToolResults {
			n = 2
		}
		if len(out)-n < minTurns {
			break
		}
		for ; n > 0; n-- {
			total -= sizes[1] + 1
			out = append(out[:1], out[2:]...)
			sizes = append(sizes[:1], sizes[2:]...)
			removed++
		}
	}

	slog.Debug("brain: context truncated", "removed", removed, "turns", len(out), "tokens", EstimateTokens(total))
	return out
}

// turnSizes is the serialized length of each turn.
func turnSizes(conv Conversation) []int {
	sizes := make([]int, len(conv))
	for i, t := range conv {
		b, err := json.Marshal(t)
		if err != nil {
			b = []byte(fmt.Sprint(t))
		}
		sizes[i] = len(b)
	}
	return sizes
}

// totalSize is the length of the conversation serialized as one JSON array.
func totalSize(sizes []int) int {
	if len(sizes) == 0 {
		return 2
	}
	n := 2 + len(sizes) - 1
	for _, s := range sizes {
		n += s
	}
	return n
}
