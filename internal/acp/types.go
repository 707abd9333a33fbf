package acp

// StopReason represents why an agent stopped processing a prompt turn.
// Aligned with ACP's StopReason enum.
type StopReason string

const (
	// StopReasonEndTurn indicates the agent finished its turn. For a script
	// turn this means the script ran to completion, successfully or not.
	StopReasonEndTurn StopReason = "end_turn"

	// StopReasonMaxTokens indicates the maximum token limit was reached.
	StopReasonMaxTokens StopReason = "max_tokens"

	// StopReasonMaxTurnRequests indicates the maximum number of requests in
	// a single turn was exceeded.
	StopReasonMaxTurnRequests StopReason = "max_turn_requests"

	// StopReasonRefusal indicates the agent declined to process the request.
	StopReasonRefusal StopReason = "refusal"

	// StopReasonCancelled indicates the turn was cancelled by the client.
	// This is returned when a session/cancel notification interrupts a
	// running prompt.
	StopReasonCancelled StopReason = "cancelled"
)
