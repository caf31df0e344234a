package ace

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/XiaoConstantine/ace-go/pkg/llm"
)

// mockGateway replays scripted responses in call order. When block is set,
// calls whose prompt contains blockOn park on the channel until it closes.
type mockGateway struct {
	mu        sync.Mutex
	responses []string
	calls     int
	err       error
	prompts   [][]llm.Message
	block     chan struct{}
	blockOn   string
}

func (m *mockGateway) Chat(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, messages)
	m.calls++

	var response string
	err := m.err
	if err == nil {
		if len(m.responses) == 0 {
			err = fmt.Errorf("mock gateway exhausted after %d calls", m.calls)
		} else {
			response = m.responses[0]
			m.responses = m.responses[1:]
		}
	}
	block := m.block
	m.mu.Unlock()

	if block != nil && m.blockOn != "" {
		for _, msg := range messages {
			if strings.Contains(msg.Content, m.blockOn) {
				<-block
				break
			}
		}
	}
	return response, err
}

func (m *mockGateway) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockGateway) prompt(i int) []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prompts[i]
}

// embeddingGateway adds a scripted embedding capability.
type embeddingGateway struct {
	mockGateway
	vector    []float64
	embedErr  error
	embedded  []string
	embedMu   sync.Mutex
	embedHits int
}

func (m *embeddingGateway) Embed(ctx context.Context, text string) ([]float64, error) {
	m.embedMu.Lock()
	defer m.embedMu.Unlock()
	m.embedHits++
	m.embedded = append(m.embedded, text)
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return append([]float64(nil), m.vector...), nil
}
