package reconcile

import (
	"context"
	"os"
	"sync"
	"testing"
)

// scriptedAgent replays canned responses. Statuses are consumed in order and
// the last one repeats.
type scriptedAgent struct {
	mu sync.Mutex

	submitBody []byte
	submitErrs []error
	statuses   []string
	statusErrs map[int]error
	messages   []byte
	messageErr error

	submitCalls  int
	statusCalls  int
	messageCalls int
	lastAgentID  string
	lastMessage  string
}

func (a *scriptedAgent) Submit(_ context.Context, agentID, message string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submitCalls++
	a.lastAgentID = agentID
	a.lastMessage = message
	if a.submitCalls <= len(a.submitErrs) && a.submitErrs[a.submitCalls-1] != nil {
		return nil, a.submitErrs[a.submitCalls-1]
	}
	return a.submitBody, nil
}

func (a *scriptedAgent) RunStatus(_ context.Context, _ string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statusCalls++
	if err, ok := a.statusErrs[a.statusCalls]; ok {
		return "", err
	}
	if len(a.statuses) == 0 {
		return "running", nil
	}
	i := min(a.statusCalls, len(a.statuses)) - 1
	return a.statuses[i], nil
}

func (a *scriptedAgent) RunMessages(_ context.Context, _ string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messageCalls++
	if a.messageErr != nil {
		err := a.messageErr
		a.messageErr = nil
		return nil, err
	}
	return a.messages, nil
}

func (a *scriptedAgent) calls() (submit, status, messages int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.submitCalls, a.statusCalls, a.messageCalls
}

func loadFixture(t *testing.T) string {
	t.Helper()
	raw, err := os.ReadFile("../analysis/testdata/cftr_analysis.json")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(raw)
}

func assistantEnvelope(payload string) []byte {
	return []byte(`{"messages": [{"message_type": "reasoning_message", "reasoning": "thinking"}, {"message_type": "assistant_message", "content": ` + quoted(payload) + `}]}`)
}
