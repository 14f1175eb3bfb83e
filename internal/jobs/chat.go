package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/mpataki/trek/internal/models"
	"github.com/mpataki/trek/internal/storage"
)

var (
	ErrMissingChatFields = errors.New("planId and message are required")
	ErrPlanNotFound      = errors.New("plan not found")
	ErrChatUnavailable   = errors.New("chat requires a generator")
	ErrInvalidPatch      = errors.New("generated patch could not be applied")
)

const (
	InteractionQuestion     = "question"
	InteractionModification = "modification"
)

type ChatRequest struct {
	PlanID      string       `json:"planId"`
	Message     string       `json:"message"`
	CurrentPlan *models.Plan `json:"currentPlan,omitempty"`
}

type ChatReply struct {
	Response        string       `json:"response"`
	Suggestions     []string     `json:"suggestions"`
	InteractionType string       `json:"interactionType"`
	UpdatedPlan     *models.Plan `json:"updatedPlan"`
}

// chatDecision is what the model answers with. Patch is an RFC 6902
// document against the plan's itinerary.
type chatDecision struct {
	InteractionType   string          `json:"interaction_type"`
	Patch             json.RawMessage `json:"patch"`
	AssistantResponse string          `json:"assistant_response"`
	Suggestions       []string        `json:"suggestions"`
}

var chatSchema = map[string]any{
	"type":     "OBJECT",
	"required": []string{"interaction_type", "patch", "assistant_response", "suggestions"},
	"properties": map[string]any{
		"interaction_type": map[string]any{
			"type": "STRING",
			"enum": []string{InteractionQuestion, InteractionModification},
		},
		"patch": map[string]any{
			"type": "ARRAY",
			"items": map[string]any{
				"type":     "OBJECT",
				"required": []string{"op", "path"},
				"properties": map[string]any{
					"op":    map[string]any{"type": "STRING", "enum": []string{"add", "remove", "replace", "move", "copy", "test"}},
					"path":  map[string]any{"type": "STRING"},
					"from":  map[string]any{"type": "STRING"},
					"value": map[string]any{"type": "STRING"},
				},
			},
		},
		"assistant_response": map[string]any{"type": "STRING"},
		"suggestions":        map[string]any{"type": "ARRAY", "items": map[string]any{"type": "STRING"}},
	},
}

// chatPlanKey accepts either a full plan key or a job id.
func chatPlanKey(planID string) string {
	if storage.IsPlanKey(planID) {
		return planID
	}
	return storage.PlanKey(planID)
}

func hasItinerary(p *models.Plan) bool {
	return p != nil && (p.Itinerary.Destination != "" || len(p.Itinerary.Schedule) > 0)
}

// Chat answers a question about a cached plan or applies the change the
// message asks for. A CurrentPlan seeds the cache when the plan is missing
// or has no itinerary yet. Both sides of the exchange are appended to the
// plan's conversation.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	if strings.TrimSpace(req.PlanID) == "" || strings.TrimSpace(req.Message) == "" {
		return nil, ErrMissingChatFields
	}
	if s.Generator == nil {
		return nil, ErrChatUnavailable
	}

	key := chatPlanKey(req.PlanID)
	log := s.logger.With("plan_key", key)

	var plan models.Plan
	cached := s.cache.Get(ctx, key, &plan)
	if hasItinerary(req.CurrentPlan) && (!cached || !hasItinerary(&plan)) {
		plan = *req.CurrentPlan
		if err := s.cache.Set(ctx, key, plan, s.cfg.TTL); err != nil {
			return nil, fmt.Errorf("failed to seed plan: %w", err)
		}
		log.Info("seeded plan for chat")
		cached = true
	}
	if !cached {
		return nil, ErrPlanNotFound
	}

	var d chatDecision
	if err := s.Generator.GenerateJSON(ctx, chatPrompt(plan.Itinerary, req.Message), chatSchema, &d); err != nil {
		return nil, fmt.Errorf("chat generation failed: %w", err)
	}

	reply := &ChatReply{
		Response:        d.AssistantResponse,
		Suggestions:     d.Suggestions,
		InteractionType: d.InteractionType,
	}
	if reply.Response == "" {
		reply.Response = "I understand your request."
	}
	if reply.InteractionType == "" {
		reply.InteractionType = InteractionQuestion
	}
	if reply.Suggestions == nil {
		reply.Suggestions = []string{}
	}

	patched, err := applyItineraryPatch(plan.Itinerary, d.Patch)
	if err != nil {
		return nil, err
	}
	if patched != nil {
		plan.Itinerary = *patched
		if err := s.cache.Set(ctx, key, plan, s.cfg.TTL); err != nil {
			return nil, fmt.Errorf("failed to store updated plan: %w", err)
		}
		reply.UpdatedPlan = &plan
		log.Info("plan updated from chat")
	}

	now := s.now()
	chatKey := storage.ChatKeyFor(key)
	for _, turn := range []models.ChatTurn{
		{Role: models.ChatRoleUser, Content: req.Message, Timestamp: now},
		{Role: models.ChatRoleAssistant, Content: reply.Response, InteractionType: reply.InteractionType, Timestamp: now},
	} {
		if err := s.cache.PushToList(ctx, chatKey, turn); err != nil {
			log.Warn("failed to record chat turn", "error", err)
		}
	}
	return reply, nil
}

// ChatHistory returns the conversation for a plan, most recent first.
func (s *Service) ChatHistory(ctx context.Context, planID string) ([]models.ChatTurn, error) {
	if strings.TrimSpace(planID) == "" {
		return nil, ErrMissingChatFields
	}
	raw := s.cache.GetList(ctx, storage.ChatKeyFor(chatPlanKey(planID)), 0, -1)
	turns := make([]models.ChatTurn, 0, len(raw))
	for _, r := range raw {
		var t models.ChatTurn
		if err := json.Unmarshal(r, &t); err != nil {
			s.logger.Warn("skipping unreadable chat turn", "plan_id", planID, "error", err)
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// applyItineraryPatch returns nil when patch has no operations.
func applyItineraryPatch(it models.PlanItinerary, raw json.RawMessage) (*models.PlanItinerary, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	patch, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	if len(patch) == 0 {
		return nil, nil
	}

	doc, err := json.Marshal(it)
	if err != nil {
		return nil, err
	}
	out, err := patch.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	var next models.PlanItinerary
	if err := json.Unmarshal(out, &next); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	return &next, nil
}

func chatPrompt(it models.PlanItinerary, message string) string {
	data, _ := json.MarshalIndent(it, "", "  ")
	return strings.TrimSpace(fmt.Sprintf(`
You are a travel concierge helping a traveller with their existing itinerary. You can answer
questions about it and change it when explicitly asked.

Decide whether the message is a QUESTION (asking for information about the itinerary) or a
MODIFICATION (asking to change, add, remove or adjust something).

For questions, answer with specific details from the itinerary and return an empty patch.
For modifications, return RFC 6902 JSON Patch operations against the itinerary document below
and explain what changed.

Always include a natural-language response and a few follow-up suggestions.

### Current Itinerary
%s

### User Message
%q
`, data, message))
}
