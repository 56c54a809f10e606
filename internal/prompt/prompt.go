// Package prompt assembles the message lists sent to the completion model.
//
// All user-facing text is Korean. Assembly is pure: no I/O, no model calls,
// which keeps every shape testable without fakes.
package prompt

import (
	"fmt"
	"strings"

	"github.com/campusqa/campusqa/internal/clova"
	"github.com/campusqa/campusqa/internal/conversation"
	"github.com/campusqa/campusqa/internal/syllabus"
)

// HistoryWindow is how many persisted messages precede the current
// utterance in the prompt. The window is fetched before the user message is
// inserted, so the current utterance never appears twice.
const HistoryWindow = 3

// NoResultsAnswer is the canned reply when retrieval finds nothing. The
// turn skips generation entirely in that case.
const NoResultsAnswer = "죄송합니다. 관련 수업 정보를 찾을 수 없습니다. 다른 방식으로 질문해주시겠어요?"

// domainSystemPrompt grounds answers strictly in retrieved syllabus text.
const domainSystemPrompt = `당신은 수업계획서 기반 학습 지원 챗봇입니다.
주어진 수업계획서 정보를 바탕으로 학생들의 질문에 정확하고 친절하게 답변해주세요.

답변 시 다음을 지켜주세요:
1. 주어진 컨텍스트 정보를 기반으로만 답변하세요.
2. 확실하지 않은 정보는 추측하지 말고, "제공된 수업계획서에는 해당 정보가 없습니다"라고 답변하세요.
3. 강의명과 교수명을 명확히 언급하세요.
4. 한국어로 자연스럽고 친절하게 답변하세요.`

// casualSystemPrompt handles greetings and small talk without retrieval.
const casualSystemPrompt = `당신은 수업계획서 기반 학습 지원 챗봇입니다.
지금은 일상적인 대화 중입니다. 한국어로 자연스럽고 친절하게 답변해주세요.
수업 관련 질문이 오면 도와줄 수 있다고 안내해도 좋습니다.`

// Domain builds the message list for a syllabus-grounded answer. history
// must already be limited to the window and ordered oldest first; results
// must be non-empty.
func Domain(history []*conversation.Message, results []syllabus.Result, query string) []clova.Message {
	blocks := make([]string, 0, len(results))
	for i, r := range results {
		blocks = append(blocks, fmt.Sprintf("[관련 정보 %d]\n%s", i+1, r.Content))
	}
	contextText := strings.Join(blocks, "\n\n")

	userContent := fmt.Sprintf(`다음은 수업계획서에서 검색된 관련 정보입니다:

%s

질문: %s

위 정보를 바탕으로 질문에 답변해주세요.`, contextText, query)

	messages := make([]clova.Message, 0, len(history)+2)
	messages = append(messages, clova.Message{Role: clova.RoleSystem, Content: domainSystemPrompt})
	messages = append(messages, historyMessages(history)...)
	messages = append(messages, clova.Message{Role: clova.RoleUser, Content: userContent})
	return messages
}

// Casual builds the message list for small talk.
func Casual(history []*conversation.Message, query string) []clova.Message {
	messages := make([]clova.Message, 0, len(history)+2)
	messages = append(messages, clova.Message{Role: clova.RoleSystem, Content: casualSystemPrompt})
	messages = append(messages, historyMessages(history)...)
	messages = append(messages, clova.Message{Role: clova.RoleUser, Content: query})
	return messages
}

// Title builds the single-message summarization prompt for title
// generation. messages is the full conversation so far, oldest first.
func Title(messages []*conversation.Message) []clova.Message {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		speaker := "사용자"
		if msg.Role == conversation.RoleAssistant {
			speaker = "AI"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, msg.Content))
	}

	content := fmt.Sprintf(`다음 대화 내용을 보고 간결한 제목을 30자 이내로 생성해주세요.
제목만 출력하고 다른 설명은 하지 마세요.

대화 내용:
%s

제목:`, strings.Join(lines, "\n"))

	return []clova.Message{{Role: clova.RoleUser, Content: content}}
}

// Sources converts retrieval results into the citation metadata persisted
// with the assistant message. Previews are cut at 200 runes.
func Sources(results []syllabus.Result) []conversation.Source {
	sources := make([]conversation.Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, conversation.Source{
			CourseName:     r.CourseName,
			Professor:      r.Professor,
			Section:        r.Section,
			ContentPreview: Truncate(r.Content, 200),
		})
	}
	return sources
}

// Truncate cuts s at limit runes, appending "..." when it was longer.
// Counting runes keeps Korean text intact at the boundary.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func historyMessages(history []*conversation.Message) []clova.Message {
	out := make([]clova.Message, 0, len(history))
	for _, msg := range history {
		out = append(out, clova.Message{Role: msg.Role, Content: msg.Content})
	}
	return out
}
