// Package intent routes user utterances into a closed label set.
//
// Classification is a single cheap model call with a fixed instruction. It
// can only ever widen behavior, never block it: any failure or unexpected
// output falls back to DomainQuery, so a misbehaving classifier degrades to
// "always retrieve" rather than to lost answers.
package intent

import (
	"context"
	"strings"

	"github.com/campusqa/campusqa/internal/clova"
	"github.com/campusqa/campusqa/internal/log"
)

// Label is a routing decision.
type Label string

const (
	// DomainQuery routes through syllabus retrieval.
	DomainQuery Label = "domain_query"

	// CasualChat skips retrieval and answers conversationally.
	CasualChat Label = "casual_chat"
)

// classifyPrompt instructs the model to emit exactly one label.
const classifyPrompt = `다음 사용자 메시지를 분류하세요.

- 수업, 강의, 교수, 과제, 시험, 학사 정보에 대한 질문이면: domain_query
- 인사, 잡담, 감사 표현 등 일반 대화면: casual_chat

다른 설명 없이 분류 결과만 한 단어로 답하세요.`

// Completer is the single model operation the classifier needs.
type Completer interface {
	Complete(ctx context.Context, req clova.Request) (*clova.Completion, error)
}

// Classifier labels utterances using the completion model.
type Classifier struct {
	completer Completer
	logger    log.Logger
}

// NewClassifier creates a Classifier. logger may be nil.
func NewClassifier(completer Completer, logger log.Logger) *Classifier {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Classifier{completer: completer, logger: logger}
}

// Classify returns the routing label for utterance. Never returns an error:
// classification failures and off-label outputs both fall back to
// DomainQuery.
func (c *Classifier) Classify(ctx context.Context, utterance string) Label {
	completion, err := c.completer.Complete(ctx, clova.Request{
		Messages: []clova.Message{
			{Role: clova.RoleSystem, Content: classifyPrompt},
			{Role: clova.RoleUser, Content: utterance},
		},
		MaxTokens: 10,
	})
	if err != nil {
		c.logger.Warn("intent classification failed, falling back to domain_query", "error", err)
		return DomainQuery
	}

	label := strings.ToLower(strings.TrimSpace(completion.Content))
	switch {
	case strings.Contains(label, string(CasualChat)):
		return CasualChat
	case strings.Contains(label, string(DomainQuery)):
		return DomainQuery
	default:
		c.logger.Debug("unrecognized intent label, falling back to domain_query", "label", label)
		return DomainQuery
	}
}
