package conversation

import "encoding/json"

// contextBudgetRatio reserves headroom for the model response: only 80%
// of the context window is spent on history.
const contextBudgetRatio = 0.8

// charsPerToken is the 4-chars-per-token approximation used to size
// messages against a token budget.
const charsPerToken = 4

// Truncate trims messages so their serialized size fits within maxTokens
// of context. The system message is always kept, then messages are taken
// newest first until the budget is reached; the most recent non-system
// message is included even when it alone exceeds the budget. The
// returned slice is in chronological order.
//
// Tool-call/result pairs are not kept together; a dropped assistant
// tool-call message can leave its tool result orphaned, matching the
// size-bounded strategy this store has always used.
func Truncate(messages []Message, maxTokens int) []Message {
	if len(messages) == 0 {
		return messages
	}

	targetChars := int(float64(maxTokens) * contextBudgetRatio * charsPerToken)

	var systemMsg *Message
	other := make([]Message, 0, len(messages))
	for i := range messages {
		if messages[i].Role == "system" {
			systemMsg = &messages[i]
		} else {
			other = append(other, messages[i])
		}
	}

	currentChars := 0
	result := make([]Message, 0, len(messages))
	if systemMsg != nil {
		result = append(result, *systemMsg)
		currentChars = messageChars(*systemMsg)
	}

	included := 0
	for i := len(other) - 1; i >= 0; i-- {
		msgChars := messageChars(other[i])
		if currentChars+msgChars > targetChars && included > 0 {
			break
		}
		included++
		currentChars += msgChars
	}

	result = append(result, other[len(other)-included:]...)
	return result
}

func messageChars(m Message) int {
	data, err := json.Marshal(m)
	if err != nil {
		return 0
	}
	return len(data)
}
