package chat

import "github.com/m-mizutani/knowbot/pkg/model"

type heroCard struct {
	Text    string       `json:"text,omitempty"`
	Buttons []cardAction `json:"buttons,omitempty"`
}

type cardAction struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// reasoningCard renders the backend's reasoning as an Adaptive Card with a
// collapsed section the user can expand.
func reasoningCard(reasoning string) model.Attachment {
	return model.Attachment{
		ContentType: model.ContentTypeAdaptiveCard,
		Content: map[string]any{
			"type":    "AdaptiveCard",
			"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
			"version": "1.5",
			"body": []any{
				map[string]any{
					"type":      "Container",
					"id":        "reasoning",
					"isVisible": false,
					"items": []any{
						map[string]any{
							"type":     "TextBlock",
							"text":     reasoning,
							"wrap":     true,
							"isSubtle": true,
							"size":     "Small",
						},
					},
				},
			},
			"actions": []any{
				map[string]any{
					"type":           "Action.ToggleVisibility",
					"title":          "Show reasoning",
					"targetElements": []string{"reasoning"},
				},
			},
		},
	}
}

func followupCard(questions []string) model.Attachment {
	card := heroCard{Text: "**You might also want to ask:**"}
	for _, q := range questions {
		card.Buttons = append(card.Buttons, cardAction{Type: "imBack", Title: q, Value: q})
	}
	return model.Attachment{ContentType: model.ContentTypeHeroCard, Content: card}
}
