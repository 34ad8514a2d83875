package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "embed"

	"github.com/spigell/profile-evaluator/internal/history"
)

// Evaluation roles accepted by BuildEvaluation.
const (
	RoleJudge   = "judge"
	RoleSpeaker = "speaker"
)

// ErrUnknownRole is returned for a role without a rubric template. Callers
// map it to a client error.
var ErrUnknownRole = errors.New("unknown evaluation role")

//go:embed templates/judge.md
var judgeTemplate string

//go:embed templates/speaker.md
var speakerTemplate string

const chatPreamble = "You are a helpful chatbot. Respond in plain text only, without any markdown formatting. Keep responses clear and conversational.\n"

// Knowledge is optional background material injected into chat prompts when
// the message mentions one of its keywords.
type Knowledge struct {
	Text     string
	Keywords []string
}

// Matches reports whether the message should trigger knowledge injection.
func (k Knowledge) Matches(message string) bool {
	if strings.TrimSpace(k.Text) == "" {
		return false
	}

	lower := strings.ToLower(message)
	for _, keyword := range k.Keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" {
			continue
		}
		if strings.Contains(lower, keyword) {
			return true
		}
	}

	return false
}

// BuildEvaluation assembles the rubric prompt for the given role. The profile
// text is wrapped in a small JSON envelope so stray formatting in the source
// document does not read as prompt structure.
func BuildEvaluation(role, profileText string) (string, error) {
	var template string
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleJudge:
		template = judgeTemplate
	case RoleSpeaker:
		template = speakerTemplate
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	profileText = strings.ReplaceAll(profileText, "\n", " ")

	payload, err := json.Marshal(map[string]string{"profile": profileText})
	if err != nil {
		return "", fmt.Errorf("marshal profile payload: %w", err)
	}

	return strings.ReplaceAll(template, "{{PROFILE_JSON}}", string(payload)), nil
}

// BuildChat assembles a conversational prompt: preamble, optional knowledge
// block, prior turns oldest-first, then the new message.
func BuildChat(message string, turns []history.Turn, knowledge string) string {
	var builder strings.Builder
	builder.WriteString(chatPreamble)

	if knowledge = strings.TrimSpace(knowledge); knowledge != "" {
		builder.WriteString("You have the following information:\n")
		builder.WriteString(knowledge)
		builder.WriteString("\nUse this information if relevant to the user's query.\n")
	}

	if len(turns) > 0 {
		builder.WriteString("Here is the conversation history:\n")
		for _, turn := range turns {
			builder.WriteString("User: ")
			builder.WriteString(turn.User)
			builder.WriteString("\nChatbot: ")
			builder.WriteString(turn.Bot)
			builder.WriteString("\n")
		}
	}

	builder.WriteString("User: ")
	builder.WriteString(message)
	builder.WriteString("\nChatbot:")

	return builder.String()
}
