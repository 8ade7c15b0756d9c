package handlers

import (
	"net/http"

	"speakwise/internal/script"
)

// ScriptHandler exposes the loaded script catalog.
type ScriptHandler struct {
	catalog *script.Catalog
}

// NewScriptHandler creates a new script handler.
func NewScriptHandler(catalog *script.Catalog) *ScriptHandler {
	return &ScriptHandler{catalog: catalog}
}

type scriptSummary struct {
	ID               string `json:"id"`
	UnitID           string `json:"unit_id"`
	TopicID          string `json:"topic_id"`
	Title            string `json:"title"`
	Steps            int    `json:"steps"`
	WordCount        int    `json:"word_count"`
	EstimatedSeconds int    `json:"estimated_seconds"`
}

type stepDetail struct {
	ID             string   `json:"id"`
	Kind           string   `json:"kind"`
	PromptText     string   `json:"prompt_text"`
	MultipleChoice bool     `json:"multiple_choice"`
	Choices        []string `json:"choices,omitempty"`
	MaxAttempts    int      `json:"max_attempts,omitempty"`
	MaxReplays     int      `json:"max_replays,omitempty"`
}

type scriptDetail struct {
	scriptSummary
	Steps []stepDetail `json:"step_list"`
}

// List returns summaries for every loaded script.
func (h *ScriptHandler) List(w http.ResponseWriter, r *http.Request) {
	scripts := h.catalog.List()
	summaries := make([]scriptSummary, 0, len(scripts))
	for _, sc := range scripts {
		summaries = append(summaries, summarize(sc))
	}
	respondWithJSON(w, http.StatusOK, summaries)
}

// Get returns one script with its step outline. Expected responses are
// never included: the learner sees them only at reveal time.
func (h *ScriptHandler) Get(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.catalog.Get(r.PathValue("id"))
	if !ok {
		respondWithError(w, http.StatusNotFound, "script not found", "", nil)
		return
	}

	steps := make([]stepDetail, 0, sc.Len())
	for _, st := range sc.Steps() {
		detail := stepDetail{
			ID:             st.ID,
			Kind:           string(st.Kind),
			PromptText:     st.PromptText,
			MultipleChoice: st.MultipleChoice(),
			MaxAttempts:    st.MaxAttempts,
			MaxReplays:     st.MaxReplays,
		}
		if st.MultipleChoice() {
			for _, c := range script.ShuffledChoices(st) {
				detail.Choices = append(detail.Choices, c.Text)
			}
		}
		steps = append(steps, detail)
	}

	respondWithJSON(w, http.StatusOK, scriptDetail{
		scriptSummary: summarize(sc),
		Steps:         steps,
	})
}

func summarize(sc *script.Script) scriptSummary {
	return scriptSummary{
		ID:               sc.ID,
		UnitID:           sc.UnitID,
		TopicID:          sc.TopicID,
		Title:            sc.Title,
		Steps:            sc.Len(),
		WordCount:        sc.WordCount(),
		EstimatedSeconds: sc.EstimatedSeconds(),
	}
}
